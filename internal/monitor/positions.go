package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/audit"
	"lv-tradedesk/internal/metrics"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/positions"
	"lv-tradedesk/internal/types"
	"lv-tradedesk/internal/workflow"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Ledger interface {
	ListOpen(ctx context.Context) ([]model.Position, error)
	Revalue(ctx context.Context, p model.Position, price, equity decimal.Decimal) (model.Position, error)
}

type PositionDeps struct {
	Accounts Accounts
	Ledger   Ledger
	Closer   Closer
	Prices   Pricer
	Pool     Submitter
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

// PositionMonitor marks open positions to market and closes the ones whose
// stop-loss or take-profit has been crossed.
type PositionMonitor struct {
	PositionDeps
}

func NewPositionMonitor(d PositionDeps) *PositionMonitor {
	if d.Pool == nil {
		d.Pool = Inline
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &PositionMonitor{PositionDeps: d}
}

// Trigger reports which protective close, if any, price fires for p.
// Stop-loss is checked first, so a position whose levels are both crossed
// closes as a stop-loss.
func Trigger(p model.Position, price decimal.Decimal) (types.CloseReason, bool) {
	long := p.Side == types.PositionSideLong
	if sl := p.StopLoss; sl != nil {
		if (long && price.LessThanOrEqual(*sl)) || (!long && price.GreaterThanOrEqual(*sl)) {
			return types.CloseReasonStopLoss, true
		}
	}
	if tp := p.TakeProfit; tp != nil {
		if (long && price.GreaterThanOrEqual(*tp)) || (!long && price.LessThanOrEqual(*tp)) {
			return types.CloseReasonTakeProfit, true
		}
	}
	return "", false
}

func (m *PositionMonitor) Execute(ctx context.Context) error {
	open, err := m.Ledger.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}

	byAccount := make(map[string][]model.Position)
	var order []string
	for _, p := range open {
		if _, ok := byAccount[p.AccountID]; !ok {
			order = append(order, p.AccountID)
		}
		byAccount[p.AccountID] = append(byAccount[p.AccountID], p)
	}

	quotes := m.quotes(ctx, open)
	for _, accountID := range order {
		list := byAccount[accountID]
		err := m.Pool.Submit(ctx, workflow.Job{
			Key:  accountID,
			Name: "positions:" + accountID,
			Run: func(ctx context.Context) error {
				defer m.Metrics.ObserveSweep("positions", time.Now())
				return m.sweepAccount(ctx, accountID, list, quotes)
			},
		})
		if err != nil {
			if errors.Is(err, workflow.ErrPoolClosed) || ctx.Err() != nil {
				return err
			}
			m.Log.Warn("position sweep failed", zap.String("account_id", accountID), zap.Error(err))
		}
	}
	return nil
}

// quotes fetches each symbol once per sweep. Symbols without a quote are
// left out and their positions keep the previous mark.
func (m *PositionMonitor) quotes(ctx context.Context, open []model.Position) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, p := range open {
		if _, ok := out[p.Symbol]; ok {
			continue
		}
		price, err := m.Prices.Price(ctx, p.Symbol)
		if err != nil || !price.IsPositive() {
			m.Log.Warn("no quote for open position", zap.String("symbol", p.Symbol), zap.Error(err))
			continue
		}
		out[p.Symbol] = price
	}
	return out
}

func (m *PositionMonitor) sweepAccount(ctx context.Context, accountID string, list []model.Position, quotes map[string]decimal.Decimal) error {
	acc, err := m.Accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}

	// Equity is taken at the new marks so risk percent reflects this sweep.
	equity := acc.Balance
	for _, p := range list {
		if price, ok := quotes[p.Symbol]; ok {
			equity = equity.Add(positions.UnrealizedPnL(p.Side, p.AvgPrice, price, p.Qty))
		} else {
			equity = equity.Add(p.UnrealizedPnL)
		}
	}

	var errs []error
	for _, p := range list {
		price, ok := quotes[p.Symbol]
		if !ok {
			continue
		}
		marked, err := m.Ledger.Revalue(ctx, p, price, equity)
		if err != nil {
			// A concurrent close or fill moved the position on; the next
			// sweep sees its new state.
			if apperr.KindOf(err) != apperr.KindConflict {
				errs = append(errs, fmt.Errorf("revalue %s: %w", p.ID, err))
			}
			continue
		}
		reason, fire := Trigger(marked, price)
		if !fire {
			continue
		}
		_, err = m.Closer.Close(ctx, marked.ID, price, reason, audit.SystemActor)
		switch {
		case err == nil:
			m.Log.Info("protective close",
				zap.String("position_id", marked.ID),
				zap.String("reason", string(reason)),
				zap.String("price", price.String()))
		case errors.Is(err, apperr.ErrPositionClosed):
		default:
			errs = append(errs, fmt.Errorf("close %s: %w", marked.ID, err))
		}
	}
	return errors.Join(errs...)
}
