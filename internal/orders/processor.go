package orders

import (
	"context"
	"fmt"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/audit"
	"lv-tradedesk/internal/margin"
	"lv-tradedesk/internal/metrics"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/notify"
	"lv-tradedesk/internal/positions"
	"lv-tradedesk/internal/types"
	"lv-tradedesk/internal/workflow"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	StepLoad        = "load"
	StepMarginCheck = "margin_check"
	StepExecute     = "execute"
	StepPosition    = "position"
	StepTrade       = "trade"
	StepBalance     = "balance"
	StepNotify      = "notify"
)

type Repository interface {
	Insert(ctx context.Context, o model.Order) (model.Order, error)
	Get(ctx context.Context, id string) (model.Order, error)
	GetForUpdate(ctx context.Context, id string) (model.Order, error)
	List(ctx context.Context, f Filter) ([]model.Order, error)
	ListByStatus(ctx context.Context, status types.OrderStatus, before time.Time) ([]model.Order, error)
	Transition(ctx context.Context, id string, from []types.OrderStatus, to types.OrderStatus, reason string) (model.Order, error)
	MarkFilled(ctx context.Context, id string, price, commission decimal.Decimal, at time.Time) (model.Order, error)
	SetOutcome(ctx context.Context, id, positionID string, realized *decimal.Decimal) error
}

type AccountStore interface {
	Get(ctx context.Context, id string) (model.Account, error)
	AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (model.Account, error)
}

type Ledger interface {
	Apply(ctx context.Context, f positions.Fill) (positions.NetResult, error)
	ListOpenForAccount(ctx context.Context, accountID string) ([]model.Position, error)
}

type TradeRecorder interface {
	Insert(ctx context.Context, t model.Trade) (model.Trade, error)
}

type Pricer interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type Runner interface {
	Run(ctx context.Context, runID string, steps []workflow.Step) error
}

type CheckpointResetter interface {
	Reset(ctx context.Context, runID string) error
}

type ProcessorDeps struct {
	Orders         Repository
	Accounts       AccountStore
	Ledger         Ledger
	Trades         TradeRecorder
	Prices         Pricer
	Runner         Runner
	Checkpoints    CheckpointResetter
	Audit          audit.Auditor
	Notifier       notify.Notifier
	Metrics        *metrics.Metrics
	Log            *zap.Logger
	CommissionRate decimal.Decimal
	Policy         margin.Policy
}

// Processor drives an order from pending to a terminal or resting state.
type Processor struct {
	ProcessorDeps
	now func() time.Time
}

func NewProcessor(d ProcessorDeps) *Processor {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Policy == (margin.Policy{}) {
		d.Policy = margin.DefaultPolicy()
	}
	return &Processor{ProcessorDeps: d, now: func() time.Time { return time.Now().UTC() }}
}

func RunID(orderID string) string { return "order:" + orderID }

// Process runs the order workflow. Completed steps are skipped, so calling
// it again for a filled order changes nothing. A resting order is re-armed
// so it is checked against the current quote and margin.
func (p *Processor) Process(ctx context.Context, orderID string) error {
	o, err := p.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == types.OrderStatusOpen || o.Status == types.OrderStatusPartiallyFilled {
		if err := p.Checkpoints.Reset(ctx, RunID(orderID)); err != nil {
			return fmt.Errorf("reset order run: %w", err)
		}
	}
	return p.Runner.Run(ctx, RunID(orderID), p.steps(orderID))
}

func (p *Processor) steps(orderID string) []workflow.Step {
	return []workflow.Step{
		{Name: StepLoad, Run: func(ctx context.Context) error { return p.load(ctx, orderID) }},
		{Name: StepMarginCheck, Run: func(ctx context.Context) error { return p.marginCheck(ctx, orderID) }},
		{Name: StepExecute, Run: func(ctx context.Context) error { return p.execute(ctx, orderID) }},
		{Name: StepPosition, Run: func(ctx context.Context) error { return p.position(ctx, orderID) }},
		{Name: StepTrade, Run: func(ctx context.Context) error { return p.trade(ctx, orderID) }},
		{Name: StepBalance, Run: func(ctx context.Context) error { return p.balance(ctx, orderID) }},
		{Name: StepNotify, Run: func(ctx context.Context) error { return p.notify(ctx, orderID) }},
	}
}

var live = []types.OrderStatus{types.OrderStatusPending, types.OrderStatusOpen, types.OrderStatusPartiallyFilled}

func isLive(s types.OrderStatus) bool {
	for _, l := range live {
		if s == l {
			return true
		}
	}
	return false
}

func (p *Processor) load(ctx context.Context, orderID string) error {
	o, err := p.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !isLive(o.Status) && o.Status != types.OrderStatusFilled {
		return workflow.ErrHalt
	}
	return nil
}

func (p *Processor) marginCheck(ctx context.Context, orderID string) error {
	o, err := p.Orders.GetForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == types.OrderStatusFilled {
		return nil
	}
	if !isLive(o.Status) {
		return workflow.ErrHalt
	}
	acc, err := p.Accounts.Get(ctx, o.AccountID)
	if err != nil {
		return err
	}
	if !acc.IsActive() {
		return p.reject(ctx, o, apperr.ErrAccountInactive.Message)
	}
	quote, err := p.Prices.Price(ctx, o.Symbol)
	if err != nil {
		return fmt.Errorf("quote %s: %w", o.Symbol, err)
	}
	open, err := p.Ledger.ListOpenForAccount(ctx, o.AccountID)
	if err != nil {
		return err
	}
	var existing *model.Position
	for i := range open {
		if open[i].Symbol == o.Symbol {
			existing = &open[i]
			break
		}
	}
	snap := margin.Calculate(open, acc.Balance, acc.Leverage)
	price := ReferencePrice(o, quote)
	notional := OpeningQty(o, existing).Mul(price)
	commission := Commission(o.Qty.Mul(price), p.CommissionRate)
	if !Admit(snap, notional, acc.Leverage, commission, p.Policy) {
		return p.reject(ctx, o, apperr.ErrInsufficientBuyingPower.Message)
	}
	return nil
}

func (p *Processor) reject(ctx context.Context, o model.Order, reason string) error {
	rejected, err := p.Orders.Transition(ctx, o.ID, live, types.OrderStatusRejected, reason)
	if err != nil {
		return err
	}
	if err := p.Audit.Record(ctx, audit.Entry{
		ActorID: audit.SystemActor, Action: "order.reject", Resource: "orders", ResourceID: o.ID,
		Changes: map[string]any{"reason": reason},
	}); err != nil {
		return err
	}
	p.emit(ctx, notify.EventOrderRejected, rejected)
	return workflow.ErrHalt
}

func (p *Processor) execute(ctx context.Context, orderID string) error {
	o, err := p.Orders.GetForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == types.OrderStatusFilled {
		return nil
	}
	if !isLive(o.Status) {
		return workflow.ErrHalt
	}
	price, err := p.Prices.Price(ctx, o.Symbol)
	if err != nil {
		return fmt.Errorf("quote %s: %w", o.Symbol, err)
	}
	if !Marketable(o, price) {
		return p.rest(ctx, o)
	}
	commission := Commission(o.Qty.Mul(price), p.CommissionRate)
	_, err = p.Orders.MarkFilled(ctx, o.ID, price, commission, p.now())
	return err
}

// rest parks a non-marketable order, or expires it when its time in force
// forbids waiting.
func (p *Processor) rest(ctx context.Context, o model.Order) error {
	switch {
	case Immediate(o.TimeInForce):
		expired, err := p.Orders.Transition(ctx, o.ID, live, types.OrderStatusExpired, "not marketable")
		if err != nil {
			return err
		}
		p.emit(ctx, notify.EventOrderExpired, expired)
	case o.Status == types.OrderStatusPending:
		opened, err := p.Orders.Transition(ctx, o.ID, []types.OrderStatus{types.OrderStatusPending}, types.OrderStatusOpen, "")
		if err != nil {
			return err
		}
		p.emit(ctx, notify.EventOrderOpen, opened)
	}
	return workflow.ErrHalt
}

func (p *Processor) filled(ctx context.Context, orderID string) (model.Order, error) {
	o, err := p.Orders.Get(ctx, orderID)
	if err != nil {
		return o, err
	}
	if o.Status != types.OrderStatusFilled || o.FillPrice == nil || o.FilledAt == nil {
		return o, apperr.Business("order_not_filled", "order has no fill")
	}
	return o, nil
}

func (p *Processor) position(ctx context.Context, orderID string) error {
	o, err := p.filled(ctx, orderID)
	if err != nil {
		return err
	}
	acc, err := p.Accounts.Get(ctx, o.AccountID)
	if err != nil {
		return err
	}
	res, err := p.Ledger.Apply(ctx, positions.Fill{
		AccountID:  o.AccountID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Qty:        o.FilledQty,
		Price:      *o.FillPrice,
		Leverage:   acc.Leverage,
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
		At:         *o.FilledAt,
	})
	if err != nil {
		return err
	}
	var realized *decimal.Decimal
	if res.Reduced {
		r := res.Realized
		realized = &r
	}
	return p.Orders.SetOutcome(ctx, o.ID, res.Primary().ID, realized)
}

func (p *Processor) trade(ctx context.Context, orderID string) error {
	o, err := p.filled(ctx, orderID)
	if err != nil {
		return err
	}
	_, err = p.Trades.Insert(ctx, model.Trade{
		AccountID:   o.AccountID,
		OrderID:     o.ID,
		PositionID:  o.PositionID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Qty:         o.FilledQty,
		Price:       *o.FillPrice,
		Commission:  o.Commission,
		RealizedPnL: o.RealizedPnL,
		ExecutedAt:  *o.FilledAt,
	})
	return err
}

func (p *Processor) balance(ctx context.Context, orderID string) error {
	o, err := p.filled(ctx, orderID)
	if err != nil {
		return err
	}
	delta := BalanceDelta(o.RealizedPnL, o.Commission)
	if _, err := p.Accounts.AdjustBalance(ctx, o.AccountID, delta); err != nil {
		return fmt.Errorf("settle fill: %w", err)
	}
	return p.Audit.Record(ctx, audit.Entry{
		ActorID: audit.SystemActor, Action: "order.fill", Resource: "orders", ResourceID: o.ID,
		Changes: map[string]any{"price": o.FillPrice, "qty": o.FilledQty, "commission": o.Commission, "realized_pnl": o.RealizedPnL, "balance_delta": delta},
	})
}

func (p *Processor) notify(ctx context.Context, orderID string) error {
	o, err := p.filled(ctx, orderID)
	if err != nil {
		return err
	}
	p.emit(ctx, notify.EventOrderFilled, o)
	return nil
}

// emit publishes once the running step commits.
func (p *Processor) emit(ctx context.Context, typ string, o model.Order) {
	workflow.AfterCommit(ctx, func() {
		p.Metrics.OrderOutcome(string(o.Status))
		p.Notifier.Notify(ctx, notify.Event{Type: typ, UserID: o.UserID, Data: o})
	})
}
