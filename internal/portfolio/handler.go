package portfolio

import (
	"net/http"

	"lv-tradedesk/internal/httputil"

	"go.uber.org/zap"
)

type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request, userID string) {
	sum, err := h.svc.Summary(r.Context(), userID, httputil.AccountID(r))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sum)
}

func (h *Handler) Risk(w http.ResponseWriter, r *http.Request, userID string) {
	m, err := h.svc.Risk(r.Context(), userID, httputil.AccountID(r))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}
