package orders

import (
	"net/http"
	"strings"

	"lv-tradedesk/internal/apperr"
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

type placeOrderRequest struct {
	Symbol      string           `json:"symbol" validate:"required"`
	Side        string           `json:"side" validate:"required"`
	Type        string           `json:"type" validate:"required"`
	Qty         decimal.Decimal  `json:"qty"`
	LimitPrice  *decimal.Decimal `json:"limit_price"`
	StopPrice   *decimal.Decimal `json:"stop_price"`
	StopLoss    *decimal.Decimal `json:"stop_loss"`
	TakeProfit  *decimal.Decimal `json:"take_profit"`
	TimeInForce string           `json:"time_in_force"`
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request, userID string) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	o, err := h.svc.Place(r.Context(), PlaceOrderRequest{
		UserID:      userID,
		AccountID:   httputil.AccountID(r),
		Symbol:      req.Symbol,
		Side:        types.OrderSide(strings.ToLower(req.Side)),
		Type:        types.OrderType(strings.ToLower(req.Type)),
		Qty:         req.Qty,
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopPrice,
		StopLoss:    req.StopLoss,
		TakeProfit:  req.TakeProfit,
		TimeInForce: types.TimeInForce(strings.ToLower(req.TimeInForce)),
	})
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, o)
}

// parseStatus accepts an empty filter or a known order status.
func parseStatus(raw string) (types.OrderStatus, error) {
	st := types.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch st {
	case "", types.OrderStatusPending, types.OrderStatusOpen, types.OrderStatusPartiallyFilled,
		types.OrderStatusFilled, types.OrderStatusCancelled, types.OrderStatusRejected, types.OrderStatusExpired:
		return st, nil
	}
	return "", apperr.Validation("invalid status filter", map[string]string{"status": "unknown order status"})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	status, err := parseStatus(r.URL.Query().Get("status"))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	list, err := h.svc.List(r.Context(), userID, httputil.AccountID(r), status, httputil.PageFromQuery(r, 50, 500))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []model.Order{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

// ListAll serves the admin order listing.
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	status, err := parseStatus(r.URL.Query().Get("status"))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	list, err := h.svc.ListAll(r.Context(), status, httputil.PageFromQuery(r, 100, 1000))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []model.Order{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, userID, orderID string) {
	o, err := h.svc.Get(r.Context(), userID, orderID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, userID, orderID string) {
	o, err := h.svc.Cancel(r.Context(), userID, orderID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}
