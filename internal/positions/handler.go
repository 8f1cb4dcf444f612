package positions

import (
	"net/http"
	"strings"

	"lv-tradedesk/internal/httputil"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
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
	status := types.PositionStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	list, err := h.svc.ListForUser(r.Context(), userID, httputil.AccountID(r), status)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []model.Position{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request, userID, positionID string) {
	p, err := h.svc.CloseForUser(r.Context(), userID, positionID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

type protectionRequest struct {
	StopLoss   *decimal.Decimal `json:"stop_loss"`
	TakeProfit *decimal.Decimal `json:"take_profit"`
}

func (h *Handler) UpdateProtection(w http.ResponseWriter, r *http.Request, userID, positionID string) {
	var req protectionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	p, err := h.svc.UpdateProtection(r.Context(), userID, positionID, Protection{StopLoss: req.StopLoss, TakeProfit: req.TakeProfit})
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}
