package model

import (
	"time"

	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
)

type Position struct {
	ID            string               `json:"id"`
	AccountID     string               `json:"account_id"`
	Symbol        string               `json:"symbol"`
	Side          types.PositionSide   `json:"side"`
	Qty           decimal.Decimal      `json:"qty"`
	AvgPrice      decimal.Decimal      `json:"avg_price"`
	CurrentPrice  decimal.Decimal      `json:"current_price"`
	UnrealizedPnL decimal.Decimal      `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal      `json:"realized_pnl"`
	Leverage      int                  `json:"leverage"`
	StopLoss      *decimal.Decimal     `json:"stop_loss,omitempty"`
	TakeProfit    *decimal.Decimal     `json:"take_profit,omitempty"`
	RiskPercent   types.Ratio          `json:"risk_percent"`
	Status        types.PositionStatus `json:"status"`
	CloseReason   types.CloseReason    `json:"close_reason,omitempty"`
	Version       int64                `json:"version"`
	OpenedAt      time.Time            `json:"opened_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	ClosedAt      *time.Time           `json:"closed_at,omitempty"`
}

func (p Position) IsOpen() bool {
	return p.Status == types.PositionStatusOpen
}

// Notional is qty × current price.
func (p Position) Notional() decimal.Decimal {
	return p.Qty.Mul(p.CurrentPrice)
}
