package orders

import (
	"context"
	"fmt"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/audit"
	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/httputil"
	"lv-tradedesk/internal/metrics"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/notify"
	"lv-tradedesk/internal/types"
	"lv-tradedesk/internal/workflow"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AccountResolver interface {
	Resolve(ctx context.Context, userID, requestedAccountID string) (model.Account, error)
	ResolveActive(ctx context.Context, userID, requestedAccountID string) (model.Account, error)
}

// Submitter queues a job without waiting for room.
type Submitter interface {
	TrySubmit(job workflow.Job) error
}

type ServiceDeps struct {
	Tx        db.Transactor
	Orders    Repository
	Accounts  AccountResolver
	Processor *Processor
	Pool      Submitter
	Audit     audit.Auditor
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	Symbols   []string
}

type Service struct {
	ServiceDeps
	symbols map[string]struct{}
}

func NewService(d ServiceDeps) *Service {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	s := &Service{ServiceDeps: d, symbols: make(map[string]struct{}, len(d.Symbols))}
	for _, sym := range d.Symbols {
		s.symbols[types.NormalizeSymbol(sym)] = struct{}{}
	}
	return s
}

type PlaceOrderRequest struct {
	UserID      string
	AccountID   string
	Symbol      string
	Side        types.OrderSide
	Type        types.OrderType
	Qty         decimal.Decimal
	LimitPrice  *decimal.Decimal
	StopPrice   *decimal.Decimal
	StopLoss    *decimal.Decimal
	TakeProfit  *decimal.Decimal
	TimeInForce types.TimeInForce
}

func (s *Service) validate(req *PlaceOrderRequest) error {
	fields := map[string]string{}
	req.Symbol = types.NormalizeSymbol(req.Symbol)
	if !types.ValidSymbol(req.Symbol) {
		fields["symbol"] = "invalid symbol"
	} else if _, ok := s.symbols[req.Symbol]; len(s.symbols) > 0 && !ok {
		fields["symbol"] = "symbol is not tradable"
	}
	if req.Side != types.OrderSideBuy && req.Side != types.OrderSideSell {
		fields["side"] = "must be buy or sell"
	}
	if !req.Qty.IsPositive() {
		fields["qty"] = "must be positive"
	}
	if req.TimeInForce == "" {
		req.TimeInForce = types.TimeInForceGTC
	}
	switch req.TimeInForce {
	case types.TimeInForceGTC, types.TimeInForceDay, types.TimeInForceIOC, types.TimeInForceFOK:
	default:
		fields["time_in_force"] = "must be one of: gtc day ioc fok"
	}
	needLimit, needStop := false, false
	switch req.Type {
	case types.OrderTypeMarket:
	case types.OrderTypeLimit:
		needLimit = true
	case types.OrderTypeStop:
		needStop = true
	case types.OrderTypeStopLimit:
		needLimit, needStop = true, true
	default:
		fields["type"] = "must be one of: market limit stop stop_limit"
	}
	checkPrice(fields, "limit_price", req.LimitPrice, needLimit)
	checkPrice(fields, "stop_price", req.StopPrice, needStop)
	checkPrice(fields, "stop_loss", req.StopLoss, false)
	checkPrice(fields, "take_profit", req.TakeProfit, false)
	if len(fields) > 0 {
		return apperr.Validation("invalid order", fields)
	}
	return nil
}

func checkPrice(fields map[string]string, name string, v *decimal.Decimal, required bool) {
	switch {
	case v == nil && required:
		fields[name] = "is required for this order type"
	case v != nil && !required && (name == "limit_price" || name == "stop_price"):
		fields[name] = "is not allowed for this order type"
	case v != nil && !v.IsPositive():
		fields[name] = "must be positive"
	}
}

// Place records a pending order and hands it to the lifecycle workflow.
func (s *Service) Place(ctx context.Context, req PlaceOrderRequest) (model.Order, error) {
	if err := s.validate(&req); err != nil {
		return model.Order{}, err
	}
	var order model.Order
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		acc, err := s.Accounts.ResolveActive(ctx, req.UserID, req.AccountID)
		if err != nil {
			return err
		}
		order, err = s.Orders.Insert(ctx, model.Order{
			UserID:      req.UserID,
			AccountID:   acc.ID,
			Symbol:      req.Symbol,
			Side:        req.Side,
			Type:        req.Type,
			Qty:         req.Qty,
			LimitPrice:  req.LimitPrice,
			StopPrice:   req.StopPrice,
			StopLoss:    req.StopLoss,
			TakeProfit:  req.TakeProfit,
			TimeInForce: req.TimeInForce,
		})
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return s.Audit.Record(ctx, audit.Entry{
			ActorID: req.UserID, Action: "order.place", Resource: "orders", ResourceID: order.ID,
			Changes: order,
		})
	})
	if err != nil {
		return model.Order{}, err
	}
	s.Submit(ctx, order)
	return order, nil
}

// Submit queues the lifecycle job for an order. A failed submit is only
// logged; the order sweep picks the order up again.
func (s *Service) Submit(ctx context.Context, o model.Order) {
	if s.Pool == nil || s.Processor == nil {
		return
	}
	id := o.ID
	err := s.Pool.TrySubmit(workflow.Job{
		Key:  o.AccountID,
		Name: RunID(id),
		Run:  func(ctx context.Context) error { return s.Processor.Process(ctx, id) },
	})
	if err != nil {
		s.Log.Warn("order submit failed", zap.String("order_id", id), zap.Error(err))
	}
}

func (s *Service) Cancel(ctx context.Context, userID, orderID string) (model.Order, error) {
	var out model.Order
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return apperr.NotFound("order")
		}
		if !o.Status.Cancellable() {
			return apperr.ErrOrderNotCancellable
		}
		out, err = s.Orders.Transition(ctx, o.ID, []types.OrderStatus{types.OrderStatusOpen, types.OrderStatusPartiallyFilled}, types.OrderStatusCancelled, "")
		if err != nil {
			if apperr.KindOf(err) == apperr.KindConflict {
				return apperr.ErrOrderNotCancellable
			}
			return err
		}
		return s.Audit.Record(ctx, audit.Entry{
			ActorID: userID, Action: "order.cancel", Resource: "orders", ResourceID: o.ID,
			Changes: map[string]any{"from": o.Status, "to": out.Status},
		})
	})
	if err != nil {
		return model.Order{}, err
	}
	s.Metrics.OrderOutcome(string(out.Status))
	s.Notifier.Notify(ctx, notify.Event{Type: notify.EventOrderCancelled, UserID: out.UserID, Data: out})
	return out, nil
}

// Expire ends a resting order whose time in force has run out.
func (s *Service) Expire(ctx context.Context, orderID, reason string) (model.Order, error) {
	var out model.Order
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.Orders.Transition(ctx, orderID, []types.OrderStatus{types.OrderStatusOpen, types.OrderStatusPartiallyFilled}, types.OrderStatusExpired, reason)
		if err != nil {
			return err
		}
		return s.Audit.Record(ctx, audit.Entry{
			ActorID: audit.SystemActor, Action: "order.expire", Resource: "orders", ResourceID: orderID,
			Changes: map[string]any{"reason": reason},
		})
	})
	if err != nil {
		return model.Order{}, err
	}
	s.Metrics.OrderOutcome(string(out.Status))
	s.Notifier.Notify(ctx, notify.Event{Type: notify.EventOrderExpired, UserID: out.UserID, Data: out})
	return out, nil
}

func (s *Service) List(ctx context.Context, userID, accountID string, status types.OrderStatus, page httputil.Page) ([]model.Order, error) {
	acc, err := s.Accounts.Resolve(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	return s.Orders.List(ctx, Filter{AccountID: acc.ID, Status: status, Limit: page.Limit, Offset: page.Offset})
}

// ListAll is the unscoped listing used by administrators.
func (s *Service) ListAll(ctx context.Context, status types.OrderStatus, page httputil.Page) ([]model.Order, error) {
	return s.Orders.List(ctx, Filter{Status: status, Limit: page.Limit, Offset: page.Offset})
}

func (s *Service) Get(ctx context.Context, userID, orderID string) (model.Order, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return o, err
	}
	if o.UserID != userID {
		return model.Order{}, apperr.NotFound("order")
	}
	return o, nil
}
