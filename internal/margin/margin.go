package margin

import (
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
)

var (
	hundred         = decimal.NewFromInt(100)
	maintenanceRate = decimal.NewFromFloat(0.5)
)

type Snapshot struct {
	Balance           decimal.Decimal `json:"balance"`
	UnrealizedPnL     decimal.Decimal `json:"unrealized_pnl"`
	Equity            decimal.Decimal `json:"equity"`
	UsedMargin        decimal.Decimal `json:"used_margin"`
	FreeMargin        decimal.Decimal `json:"free_margin"`
	InitialMargin     decimal.Decimal `json:"initial_margin"`
	MaintenanceMargin decimal.Decimal `json:"maintenance_margin"`
	MarginLevel       types.Ratio     `json:"margin_level"`
	OpenPositions     int             `json:"open_positions"`
}

// Calculate derives the margin snapshot of an account from its positions.
// Closed positions are ignored. A position without a usable price or
// quantity adds nothing to used margin. Leverage falls back from the
// position to defaultLeverage and then to 1.
func Calculate(positions []model.Position, balance decimal.Decimal, defaultLeverage int) Snapshot {
	if defaultLeverage <= 0 {
		defaultLeverage = 1
	}
	s := Snapshot{Balance: balance}
	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		s.OpenPositions++
		s.UnrealizedPnL = s.UnrealizedPnL.Add(p.UnrealizedPnL)
		if !p.CurrentPrice.IsPositive() || !p.Qty.IsPositive() {
			continue
		}
		lev := p.Leverage
		if lev <= 0 {
			lev = defaultLeverage
		}
		s.UsedMargin = s.UsedMargin.Add(p.Notional().Div(decimal.NewFromInt(int64(lev))))
	}
	s.Equity = balance.Add(s.UnrealizedPnL)
	s.FreeMargin = s.Equity.Sub(s.UsedMargin)
	s.InitialMargin = s.UsedMargin
	s.MaintenanceMargin = s.UsedMargin.Mul(maintenanceRate)
	s.MarginLevel = Level(s.Equity, s.UsedMargin)
	return s
}

// Level is equity / used × 100, or +Inf when nothing is used.
func Level(equity, used decimal.Decimal) types.Ratio {
	if !used.IsPositive() {
		return types.Inf()
	}
	return types.Ratio(equity.Div(used).Mul(hundred).InexactFloat64())
}

// RequiredTopUp is maintenance margin minus equity. It is negative when
// equity already covers maintenance.
func (s Snapshot) RequiredTopUp() decimal.Decimal {
	return s.MaintenanceMargin.Sub(s.Equity)
}

// TopUpToHealthy is the deposit that lifts the margin level back to the
// policy's margin call threshold.
func (s Snapshot) TopUpToHealthy(p Policy) decimal.Decimal {
	target := s.UsedMargin.Mul(decimal.NewFromFloat(p.MarginCallLevel)).Div(hundred)
	need := target.Sub(s.Equity)
	if need.IsNegative() {
		return decimal.Zero
	}
	return need
}

// BuyingPower is the notional that free margin can carry at leverage.
func (s Snapshot) BuyingPower(leverage int) decimal.Decimal {
	if leverage <= 0 {
		leverage = 1
	}
	if !s.FreeMargin.IsPositive() {
		return decimal.Zero
	}
	return s.FreeMargin.Mul(decimal.NewFromInt(int64(leverage)))
}

// Required is the margin a new exposure of notional consumes.
func Required(notional decimal.Decimal, leverage int) decimal.Decimal {
	if leverage <= 0 {
		leverage = 1
	}
	return notional.Div(decimal.NewFromInt(int64(leverage)))
}
