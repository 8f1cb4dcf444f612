package orders

import (
	"time"

	"lv-tradedesk/internal/margin"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
)

// Marketable reports whether o may execute at price.
func Marketable(o model.Order, price decimal.Decimal) bool {
	switch o.Type {
	case types.OrderTypeMarket:
		return true
	case types.OrderTypeLimit:
		return limitOK(o, price)
	case types.OrderTypeStop:
		return stopTriggered(o, price)
	case types.OrderTypeStopLimit:
		return stopTriggered(o, price) && limitOK(o, price)
	}
	return false
}

func limitOK(o model.Order, price decimal.Decimal) bool {
	if o.LimitPrice == nil {
		return false
	}
	if o.Side == types.OrderSideBuy {
		return price.LessThanOrEqual(*o.LimitPrice)
	}
	return price.GreaterThanOrEqual(*o.LimitPrice)
}

func stopTriggered(o model.Order, price decimal.Decimal) bool {
	if o.StopPrice == nil {
		return false
	}
	if o.Side == types.OrderSideBuy {
		return price.GreaterThanOrEqual(*o.StopPrice)
	}
	return price.LessThanOrEqual(*o.StopPrice)
}

// ReferencePrice is the price margin is checked against: the limit for
// limit-style orders, otherwise the quote.
func ReferencePrice(o model.Order, quote decimal.Decimal) decimal.Decimal {
	if o.LimitPrice != nil && (o.Type == types.OrderTypeLimit || o.Type == types.OrderTypeStopLimit) {
		return *o.LimitPrice
	}
	return quote
}

// OpeningQty is the part of an order that adds exposure. Quantity that
// offsets an opposite open position needs no margin.
func OpeningQty(o model.Order, existing *model.Position) decimal.Decimal {
	if existing == nil || !existing.IsOpen() || existing.Side == types.SideFor(o.Side) {
		return o.Qty
	}
	return decimal.Max(o.Qty.Sub(existing.Qty), decimal.Zero)
}

// Commission charged on a fill, rounded to 8 places.
func Commission(notional, rate decimal.Decimal) decimal.Decimal {
	return notional.Mul(rate).Round(8)
}

// BalanceDelta is the cash effect of a fill. Exposure is carried as used
// margin, so the balance only moves by the P&L the fill realized and the
// commission it paid.
func BalanceDelta(realized *decimal.Decimal, commission decimal.Decimal) decimal.Decimal {
	delta := commission.Neg()
	if realized != nil {
		delta = delta.Add(*realized)
	}
	return delta
}

// Admit reports whether an account can take a fill that opens notional at
// leverage and pays commission. The new margin and the commission must fit
// in free margin, and the account must still be healthy afterwards. Fills
// that open nothing are always admitted.
func Admit(snap margin.Snapshot, notional decimal.Decimal, leverage int, commission decimal.Decimal, policy margin.Policy) bool {
	if !notional.IsPositive() {
		return true
	}
	required := margin.Required(notional, leverage)
	if required.Add(commission).GreaterThan(snap.FreeMargin) {
		return false
	}
	level := margin.Level(snap.Equity.Sub(commission), snap.UsedMargin.Add(required))
	return policy.Classify(level) == margin.HealthHealthy
}

// DayExpired reports whether a DAY order belongs to an earlier UTC day.
func DayExpired(o model.Order, now time.Time) bool {
	if o.TimeInForce != types.TimeInForceDay {
		return false
	}
	y1, m1, d1 := o.CreatedAt.UTC().Date()
	y2, m2, d2 := now.UTC().Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

// Immediate reports whether an unfilled remainder must expire at once.
func Immediate(tif types.TimeInForce) bool {
	return tif == types.TimeInForceIOC || tif == types.TimeInForceFOK
}
