package kyc

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

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request, userID string) {
	var req Submission
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	v, err := h.svc.Submit(r.Context(), userID, req)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, v)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request, userID string) {
	v, err := h.svc.Status(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Queue(r.Context(), httputil.PageFromQuery(r, 50, 500))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []model.KYCVerification{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request, reviewerID, id string) {
	v, err := h.svc.Approve(r.Context(), reviewerID, id)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request, reviewerID, id string) {
	var req rejectRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	v, err := h.svc.Reject(r.Context(), reviewerID, id, req.Reason)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}
