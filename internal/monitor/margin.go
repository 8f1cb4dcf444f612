package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/audit"
	"lv-tradedesk/internal/margin"
	"lv-tradedesk/internal/metrics"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/notify"
	"lv-tradedesk/internal/types"
	"lv-tradedesk/internal/workflow"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, id string, snap margin.Snapshot, buyingPower decimal.Decimal) error
}

type OpenPositions interface {
	ListOpenForAccount(ctx context.Context, accountID string) ([]model.Position, error)
}

type MarginDeps struct {
	Accounts        Accounts
	Snapshots       SnapshotStore
	Positions       OpenPositions
	Closer          Closer
	Pool            Submitter
	Policy          margin.Policy
	DefaultLeverage int
	Notifier        notify.Notifier
	Metrics         *metrics.Metrics
	Log             *zap.Logger
}

// MarginMonitor recomputes every active account's margin and acts on the
// result: liquidation below the liquidation level, a margin call below the
// call level.
type MarginMonitor struct {
	MarginDeps
}

func NewMarginMonitor(d MarginDeps) *MarginMonitor {
	if d.Pool == nil {
		d.Pool = Inline
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Policy == (margin.Policy{}) {
		d.Policy = margin.DefaultPolicy()
	}
	return &MarginMonitor{MarginDeps: d}
}

// Execute runs one sweep. Each account is checked as a job keyed by the
// account id, so it never interleaves with that account's order runs.
func (m *MarginMonitor) Execute(ctx context.Context) error {
	list, err := m.Accounts.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active accounts: %w", err)
	}
	for _, acc := range list {
		id := acc.ID
		err := m.Pool.Submit(ctx, workflow.Job{
			Key:  id,
			Name: "margin:" + id,
			Run: func(ctx context.Context) error {
				defer m.Metrics.ObserveSweep("margin", time.Now())
				_, err := m.Check(ctx, id)
				return err
			},
		})
		if err != nil {
			if errors.Is(err, workflow.ErrPoolClosed) || ctx.Err() != nil {
				return err
			}
			m.Log.Warn("margin check failed", zap.String("account_id", id), zap.Error(err))
		}
	}
	return nil
}

// Check recomputes and persists one account's snapshot and applies the
// margin policy to it.
func (m *MarginMonitor) Check(ctx context.Context, accountID string) (margin.Health, error) {
	acc, err := m.Accounts.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if !acc.IsActive() {
		return margin.HealthHealthy, nil
	}
	open, err := m.Positions.ListOpenForAccount(ctx, acc.ID)
	if err != nil {
		return "", fmt.Errorf("list open positions: %w", err)
	}
	snap, err := m.persist(ctx, acc, open)
	if err != nil {
		return "", err
	}
	if len(open) == 0 {
		return margin.HealthHealthy, nil
	}

	health := m.Policy.Classify(snap.MarginLevel)
	switch health {
	case margin.HealthLiquidation:
		return health, m.liquidate(ctx, acc, open, snap)
	case margin.HealthMarginCall:
		m.Metrics.MarginEvent("margin_call")
		m.Log.Warn("margin call",
			zap.String("account_id", acc.ID),
			zap.Stringer("margin_level", snap.MarginLevel))
		m.Notifier.Notify(ctx, notify.Event{
			Type:   notify.EventMarginCall,
			UserID: acc.UserID,
			Data: map[string]any{
				"account_id":        acc.ID,
				"margin_level":      snap.MarginLevel,
				"equity":            snap.Equity,
				"used_margin":       snap.UsedMargin,
				"maintenance":       snap.MaintenanceMargin,
				"required_top_up":   snap.RequiredTopUp(),
				"top_up_to_healthy": snap.TopUpToHealthy(m.Policy),
			},
		})
	}
	return health, nil
}

func (m *MarginMonitor) persist(ctx context.Context, acc model.Account, open []model.Position) (margin.Snapshot, error) {
	lev := acc.Leverage
	if lev <= 0 {
		lev = m.DefaultLeverage
	}
	snap := margin.Calculate(open, acc.Balance, lev)
	if err := m.Snapshots.SaveSnapshot(ctx, acc.ID, snap, snap.BuyingPower(lev)); err != nil {
		return snap, fmt.Errorf("save snapshot: %w", err)
	}
	return snap, nil
}

// liquidate closes every open position at its last mark, then stores the
// account's post-liquidation snapshot.
func (m *MarginMonitor) liquidate(ctx context.Context, acc model.Account, open []model.Position, before margin.Snapshot) error {
	m.Log.Warn("liquidating account",
		zap.String("account_id", acc.ID),
		zap.Stringer("margin_level", before.MarginLevel),
		zap.Int("positions", len(open)))

	var (
		closed   []string
		failures []error
	)
	for _, p := range open {
		price := p.CurrentPrice
		if !price.IsPositive() {
			price = p.AvgPrice
		}
		_, err := m.Closer.Close(ctx, p.ID, price, types.CloseReasonLiquidation, audit.SystemActor)
		switch {
		case err == nil:
			closed = append(closed, p.ID)
		case errors.Is(err, apperr.ErrPositionClosed):
		default:
			failures = append(failures, fmt.Errorf("close %s: %w", p.ID, err))
		}
	}

	m.Metrics.MarginEvent("liquidation")
	m.Notifier.Notify(ctx, notify.Event{
		Type:   notify.EventLiquidated,
		UserID: acc.UserID,
		Data: map[string]any{
			"account_id":   acc.ID,
			"margin_level": before.MarginLevel,
			"equity":       before.Equity,
			"positions":    closed,
		},
	})

	fresh, err := m.Accounts.Get(ctx, acc.ID)
	if err != nil {
		return err
	}
	remaining, err := m.Positions.ListOpenForAccount(ctx, acc.ID)
	if err != nil {
		return err
	}
	if _, err := m.persist(ctx, fresh, remaining); err != nil {
		return err
	}
	return errors.Join(failures...)
}
