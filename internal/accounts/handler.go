package accounts

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
	accounts, err := h.svc.List(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	httputil.WriteJSON(w, http.StatusOK, accounts)
}

func (h *Handler) UpdateLeverage(w http.ResponseWriter, r *http.Request, userID, accountID string) {
	var req struct {
		Leverage int `json:"leverage" validate:"required,gte=1"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	acc, err := h.svc.UpdateLeverage(r.Context(), userID, accountID, req.Leverage)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acc)
}
