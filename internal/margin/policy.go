package margin

import "lv-tradedesk/internal/types"

type Health string

const (
	HealthHealthy     Health = "healthy"
	HealthMarginCall  Health = "margin_call"
	HealthLiquidation Health = "liquidation"
)

// Policy holds the margin level thresholds, in percent.
type Policy struct {
	LiquidationLevel float64
	MarginCallLevel  float64
}

func DefaultPolicy() Policy {
	return Policy{LiquidationLevel: 50, MarginCallLevel: 120}
}

// Classify maps a margin level to an account health state. Liquidation
// wins over margin call; a level equal to MarginCallLevel is healthy.
func (p Policy) Classify(level types.Ratio) Health {
	if level.IsInf() {
		return HealthHealthy
	}
	l := level.Float64()
	switch {
	case l < p.LiquidationLevel:
		return HealthLiquidation
	case l < p.MarginCallLevel:
		return HealthMarginCall
	}
	return HealthHealthy
}
