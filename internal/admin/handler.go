package admin

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

func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Users(r.Context(), httputil.PageFromQuery(r, 50, 500))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []model.User{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) SetAccountStatus(w http.ResponseWriter, r *http.Request, actorID, accountID string) {
	var req statusRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	acc, err := h.svc.SetAccountStatus(r.Context(), actorID, accountID, req.Status)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acc)
}

func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := httputil.PageFromQuery(r, 100, 500)
	list, err := h.svc.AuditTrail(r.Context(), q.Get("resource"), q.Get("resource_id"), page.Limit)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []model.AuditLog{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}
