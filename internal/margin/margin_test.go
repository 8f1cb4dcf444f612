package margin

import (
	"testing"

	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openPos(qty, avg, price string, lev int) model.Position {
	q, a, p := d(qty), d(avg), d(price)
	return model.Position{
		Side:          types.PositionSideLong,
		Qty:           q,
		AvgPrice:      a,
		CurrentPrice:  p,
		UnrealizedPnL: p.Sub(a).Mul(q),
		Leverage:      lev,
		Status:        types.PositionStatusOpen,
	}
}

func TestCalculateExampleAccount(t *testing.T) {
	s := Calculate([]model.Position{openPos("50", "180.50", "233.16", 0)}, d("50000"), 1)

	assert.True(t, s.UnrealizedPnL.Equal(d("2633")), s.UnrealizedPnL.String())
	assert.True(t, s.Equity.Equal(d("52633")), s.Equity.String())
	assert.True(t, s.UsedMargin.Equal(d("11658")), s.UsedMargin.String())
	assert.True(t, s.FreeMargin.Equal(d("40975")), s.FreeMargin.String())
	assert.True(t, s.InitialMargin.Equal(s.UsedMargin))
	assert.True(t, s.MaintenanceMargin.Equal(d("5829")))
	assert.Equal(t, 1, s.OpenPositions)
}

func TestCalculateNoPositionsIsInfinite(t *testing.T) {
	s := Calculate(nil, d("1000"), 10)
	assert.True(t, s.MarginLevel.IsInf())
	assert.True(t, s.UsedMargin.IsZero())
	assert.True(t, s.Equity.Equal(d("1000")))
	assert.Equal(t, HealthHealthy, DefaultPolicy().Classify(s.MarginLevel))
}

func TestCalculateLeverageFallback(t *testing.T) {
	tests := []struct {
		name       string
		posLev     int
		defaultLev int
		want       string
	}{
		{name: "position leverage wins", posLev: 4, defaultLev: 2, want: "250"},
		{name: "default when unset", posLev: 0, defaultLev: 2, want: "500"},
		{name: "one when both unset", posLev: 0, defaultLev: 0, want: "1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Calculate([]model.Position{openPos("10", "100", "100", tt.posLev)}, d("5000"), tt.defaultLev)
			assert.True(t, s.UsedMargin.Equal(d(tt.want)), s.UsedMargin.String())
		})
	}
}

func TestCalculateSkipsMalformedAndClosed(t *testing.T) {
	noPrice := openPos("10", "100", "0", 1)
	noPrice.UnrealizedPnL = decimal.Zero
	closed := openPos("10", "100", "120", 1)
	closed.Status = types.PositionStatusClosed

	s := Calculate([]model.Position{noPrice, closed}, d("1000"), 1)
	assert.True(t, s.UsedMargin.IsZero())
	assert.True(t, s.Equity.Equal(d("1000")))
	assert.Equal(t, 1, s.OpenPositions)
}

func TestClassifyBoundaries(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		level types.Ratio
		want  Health
	}{
		{level: 200, want: HealthHealthy},
		{level: 120, want: HealthHealthy},
		{level: 119.99, want: HealthMarginCall},
		{level: 50, want: HealthMarginCall},
		{level: 49.99, want: HealthLiquidation},
		{level: -10, want: HealthLiquidation},
		{level: types.Inf(), want: HealthHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, p.Classify(tt.level))
		})
	}
}

func TestLevelExample(t *testing.T) {
	lvl := Level(d("12000"), d("10000"))
	assert.InDelta(t, 120.0, lvl.Float64(), 1e-9)
	assert.Equal(t, HealthHealthy, DefaultPolicy().Classify(lvl))
}

func TestTopUps(t *testing.T) {
	s := Snapshot{UsedMargin: d("10000"), Equity: d("4000"), MaintenanceMargin: d("5000")}
	assert.True(t, s.RequiredTopUp().Equal(d("1000")))
	assert.True(t, s.TopUpToHealthy(DefaultPolicy()).Equal(d("8000")))

	healthy := Snapshot{UsedMargin: d("10000"), Equity: d("15000"), MaintenanceMargin: d("5000")}
	assert.True(t, healthy.TopUpToHealthy(DefaultPolicy()).IsZero())
}

func TestBuyingPower(t *testing.T) {
	assert.True(t, Snapshot{FreeMargin: d("5000")}.BuyingPower(1).Equal(d("5000")))
	assert.True(t, Snapshot{FreeMargin: d("5000")}.BuyingPower(4).Equal(d("20000")))
	assert.True(t, Snapshot{FreeMargin: d("-10")}.BuyingPower(4).IsZero())
	assert.True(t, Required(d("2331.60"), 2).Equal(d("1165.8")))
}
