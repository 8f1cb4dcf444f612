package risk

import (
	"math"
	"sort"

	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
)

type Metrics struct {
	TotalExposure decimal.Decimal `json:"total_exposure"`
	WinRate       types.Ratio     `json:"win_rate"`
	ProfitFactor  types.Ratio     `json:"profit_factor"`
	MaxDrawdown   decimal.Decimal `json:"max_drawdown"`
	SharpeRatio   types.Ratio     `json:"sharpe_ratio"`
	GrossProfit   decimal.Decimal `json:"gross_profit"`
	GrossLoss     decimal.Decimal `json:"gross_loss"`
	ClosedTrades  int             `json:"closed_trades"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
}

// Aggregate computes portfolio risk metrics. Exposure comes from open
// positions; the trade statistics only use trades that carry a realized
// P&L, walked in execution order.
func Aggregate(positions []model.Position, trades []model.Trade) Metrics {
	var m Metrics
	for _, p := range positions {
		if p.IsOpen() {
			m.TotalExposure = m.TotalExposure.Add(p.Notional())
		}
	}

	realized := make([]model.Trade, 0, len(trades))
	for _, t := range trades {
		if t.RealizedPnL != nil {
			realized = append(realized, t)
		}
	}
	sort.SliceStable(realized, func(i, j int) bool {
		return realized[i].ExecutedAt.Before(realized[j].ExecutedAt)
	})
	m.ClosedTrades = len(realized)
	if m.ClosedTrades == 0 {
		return m
	}

	pnls := make([]float64, 0, len(realized))
	var cum, peak decimal.Decimal
	for _, t := range realized {
		pnl := *t.RealizedPnL
		switch {
		case pnl.IsPositive():
			m.Wins++
			m.GrossProfit = m.GrossProfit.Add(pnl)
		case pnl.IsNegative():
			m.Losses++
			m.GrossLoss = m.GrossLoss.Add(pnl.Abs())
		}
		cum = cum.Add(pnl)
		if cum.GreaterThan(peak) {
			peak = cum
		}
		if dd := peak.Sub(cum); dd.GreaterThan(m.MaxDrawdown) {
			m.MaxDrawdown = dd
		}
		pnls = append(pnls, pnl.InexactFloat64())
	}

	m.WinRate = types.Ratio(float64(m.Wins) / float64(m.ClosedTrades) * 100)
	m.ProfitFactor = profitFactor(m.GrossProfit, m.GrossLoss)
	m.SharpeRatio = sharpe(pnls)
	return m
}

func profitFactor(profit, loss decimal.Decimal) types.Ratio {
	if !profit.IsPositive() {
		return 0
	}
	if loss.IsZero() {
		return types.Inf()
	}
	return types.Ratio(profit.Div(loss).InexactFloat64())
}

// sharpe is mean / population standard deviation, 0 when flat.
func sharpe(xs []float64) types.Ratio {
	n := float64(len(xs))
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / n
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	std := math.Sqrt(sq / n)
	if std == 0 {
		return 0
	}
	return types.Ratio(mean / std)
}
