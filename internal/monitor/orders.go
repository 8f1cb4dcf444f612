package monitor

import (
	"context"
	"fmt"
	"time"

	"lv-tradedesk/internal/metrics"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/orders"
	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderSource interface {
	ListByStatus(ctx context.Context, status types.OrderStatus, before time.Time) ([]model.Order, error)
	ListUnsettled(ctx context.Context, before time.Time) ([]model.Order, error)
}

// OrderQueue is the order service side used by the sweep.
type OrderQueue interface {
	Submit(ctx context.Context, o model.Order)
	Expire(ctx context.Context, orderID, reason string) (model.Order, error)
}

type OrderDeps struct {
	Orders OrderSource
	Queue  OrderQueue
	Prices Pricer
	// StaleAfter is how long a pending order, or a fill whose run has not
	// finished, may sit before the sweep submits it again.
	StaleAfter time.Duration
	Metrics    *metrics.Metrics
	Log        *zap.Logger
}

// OrderMonitor expires DAY orders at the UTC day boundary and resubmits
// resting orders that became marketable. It also recovers pending orders
// whose job never ran and fills whose run gave up before settling.
type OrderMonitor struct {
	OrderDeps
	now func() time.Time
}

func NewOrderMonitor(d OrderDeps) *OrderMonitor {
	if d.StaleAfter <= 0 {
		d.StaleAfter = time.Minute
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &OrderMonitor{OrderDeps: d, now: func() time.Time { return time.Now().UTC() }}
}

func (m *OrderMonitor) Execute(ctx context.Context) error {
	defer m.Metrics.ObserveSweep("orders", time.Now())
	now := m.now()

	resting, err := m.Orders.ListByStatus(ctx, types.OrderStatusOpen, now)
	if err != nil {
		return fmt.Errorf("list open orders: %w", err)
	}
	quotes := make(map[string]priceResult)
	for _, o := range resting {
		if orders.DayExpired(o, now) {
			if _, err := m.Queue.Expire(ctx, o.ID, "day order expired"); err != nil {
				m.Log.Warn("expire order failed", zap.String("order_id", o.ID), zap.Error(err))
			}
			continue
		}
		q, ok := quotes[o.Symbol]
		if !ok {
			q.price, q.err = m.Prices.Price(ctx, o.Symbol)
			quotes[o.Symbol] = q
		}
		if q.err != nil {
			continue
		}
		if orders.Marketable(o, q.price) {
			m.Queue.Submit(ctx, o)
		}
	}

	stale, err := m.Orders.ListByStatus(ctx, types.OrderStatusPending, now.Add(-m.StaleAfter))
	if err != nil {
		return fmt.Errorf("list pending orders: %w", err)
	}
	for _, o := range stale {
		m.Log.Info("resubmitting stale order", zap.String("order_id", o.ID))
		m.Queue.Submit(ctx, o)
	}

	unsettled, err := m.Orders.ListUnsettled(ctx, now.Add(-m.StaleAfter))
	if err != nil {
		return fmt.Errorf("list unsettled orders: %w", err)
	}
	for _, o := range unsettled {
		m.Log.Warn("resubmitting unsettled fill", zap.String("order_id", o.ID))
		m.Queue.Submit(ctx, o)
	}
	return nil
}

type priceResult struct {
	price decimal.Decimal
	err   error
}
