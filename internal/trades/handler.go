package trades

import (
	"net/http"

	"lv-tradedesk/internal/httputil"
	"lv-tradedesk/internal/model"

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
	list, err := h.svc.ListForUser(r.Context(), userID, httputil.AccountID(r), httputil.PageFromQuery(r, 50, 500))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []model.Trade{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}
