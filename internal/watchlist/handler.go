package watchlist

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

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	list, err := h.svc.List(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Symbol string `json:"symbol" validate:"required"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	it, err := h.svc.Add(r.Context(), userID, req.Symbol)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, it)
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request, userID, symbol string) {
	if err := h.svc.Remove(r.Context(), userID, symbol); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
