package model

import (
	"time"

	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	AccountID    string            `json:"account_id"`
	Symbol       string            `json:"symbol"`
	Side         types.OrderSide   `json:"side"`
	Type         types.OrderType   `json:"type"`
	Qty          decimal.Decimal   `json:"qty"`
	FilledQty    decimal.Decimal   `json:"filled_qty"`
	LimitPrice   *decimal.Decimal  `json:"limit_price,omitempty"`
	StopPrice    *decimal.Decimal  `json:"stop_price,omitempty"`
	StopLoss     *decimal.Decimal  `json:"stop_loss,omitempty"`
	TakeProfit   *decimal.Decimal  `json:"take_profit,omitempty"`
	TimeInForce  types.TimeInForce `json:"time_in_force"`
	Status       types.OrderStatus `json:"status"`
	FillPrice    *decimal.Decimal  `json:"fill_price,omitempty"`
	Commission   decimal.Decimal   `json:"commission"`
	RejectReason string            `json:"reject_reason,omitempty"`
	PositionID   string            `json:"position_id,omitempty"`
	RealizedPnL  *decimal.Decimal  `json:"realized_pnl,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	FilledAt     *time.Time        `json:"filled_at,omitempty"`
	CancelledAt  *time.Time        `json:"cancelled_at,omitempty"`
}

// Trade is an immutable fill record. OrderID is empty for closes that did
// not go through an order (stop-loss, take-profit, liquidation, user close).
type Trade struct {
	ID          string           `json:"id"`
	AccountID   string           `json:"account_id"`
	OrderID     string           `json:"order_id,omitempty"`
	PositionID  string           `json:"position_id"`
	Symbol      string           `json:"symbol"`
	Side        types.OrderSide  `json:"side"`
	Qty         decimal.Decimal  `json:"qty"`
	Price       decimal.Decimal  `json:"price"`
	Commission  decimal.Decimal  `json:"commission"`
	RealizedPnL *decimal.Decimal `json:"realized_pnl,omitempty"`
	ExecutedAt  time.Time        `json:"executed_at"`
}

// Notional is qty × price of the fill.
func (t Trade) Notional() decimal.Decimal {
	return t.Qty.Mul(t.Price)
}
