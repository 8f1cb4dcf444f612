package funding

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
	"lv-tradedesk/internal/types"
	"lv-tradedesk/internal/workflow"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	StepLoad       = "load"
	StepProcessing = "processing"
	StepSettle     = "settle"
	StepNotify     = "notify"
)

type Repository interface {
	Insert(ctx context.Context, t model.Transaction) (model.Transaction, error)
	Get(ctx context.Context, id string) (model.Transaction, error)
	GetForUpdate(ctx context.Context, id string) (model.Transaction, error)
	List(ctx context.Context, f Filter) ([]model.Transaction, error)
	ListUnsettled(ctx context.Context, before time.Time) ([]model.Transaction, error)
	Transition(ctx context.Context, id string, from []types.TransactionStatus, to types.TransactionStatus, reason string) (model.Transaction, error)
}

type AccountStore interface {
	Get(ctx context.Context, id string) (model.Account, error)
	AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (model.Account, error)
}

type OpenPositions interface {
	ListOpenForAccount(ctx context.Context, accountID string) ([]model.Position, error)
}

type Runner interface {
	Run(ctx context.Context, runID string, steps []workflow.Step) error
}

type SettlerDeps struct {
	Store           Repository
	Accounts        AccountStore
	Positions       OpenPositions
	Runner          Runner
	Audit           audit.Auditor
	Notifier        notify.Notifier
	Metrics         *metrics.Metrics
	Log             *zap.Logger
	DefaultLeverage int
}

// Settler applies a transaction's balance effect exactly once.
type Settler struct {
	SettlerDeps
}

func NewSettler(d SettlerDeps) *Settler {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Settler{SettlerDeps: d}
}

func RunID(txnID string) string { return "txn:" + txnID }

func (s *Settler) Settle(ctx context.Context, txnID string) error {
	return s.Runner.Run(ctx, RunID(txnID), []workflow.Step{
		{Name: StepLoad, Run: func(ctx context.Context) error { return s.load(ctx, txnID) }},
		{Name: StepProcessing, Run: func(ctx context.Context) error { return s.processing(ctx, txnID) }},
		{Name: StepSettle, Run: func(ctx context.Context) error { return s.settle(ctx, txnID) }},
		{Name: StepNotify, Run: func(ctx context.Context) error { return s.notify(ctx, txnID) }},
	})
}

func (s *Settler) load(ctx context.Context, txnID string) error {
	t, err := s.Store.Get(ctx, txnID)
	if err != nil {
		return err
	}
	if t.Status == types.TransactionStatusCancelled {
		return workflow.ErrHalt
	}
	return nil
}

func (s *Settler) processing(ctx context.Context, txnID string) error {
	t, err := s.Store.GetForUpdate(ctx, txnID)
	if err != nil {
		return err
	}
	switch t.Status {
	case types.TransactionStatusPending:
		_, err = s.Store.Transition(ctx, t.ID, []types.TransactionStatus{types.TransactionStatusPending}, types.TransactionStatusProcessing, "")
		return err
	case types.TransactionStatusCancelled:
		return workflow.ErrHalt
	}
	return nil
}

// credits reports whether typ adds to the balance.
func credits(typ types.TransactionType) bool {
	return typ == types.TransactionTypeDeposit || typ == types.TransactionTypeDividend
}

// settle books the balance effect and completes the transaction in one
// transaction. A withdrawal the account cannot cover fails terminally.
func (s *Settler) settle(ctx context.Context, txnID string) error {
	t, err := s.Store.GetForUpdate(ctx, txnID)
	if err != nil {
		return err
	}
	if t.Status != types.TransactionStatusProcessing {
		return nil
	}
	delta := t.Amount
	if !credits(t.Type) {
		delta = delta.Neg()
	}
	if t.Type == types.TransactionTypeWithdrawal {
		if reason, ok, err := s.coverable(ctx, t); err != nil {
			return err
		} else if !ok {
			return s.fail(ctx, t, reason)
		}
	}
	if _, err := s.Accounts.AdjustBalance(ctx, t.AccountID, delta); err != nil {
		return fmt.Errorf("apply %s: %w", t.Type, err)
	}
	done, err := s.Store.Transition(ctx, t.ID, []types.TransactionStatus{types.TransactionStatusProcessing}, types.TransactionStatusCompleted, "")
	if err != nil {
		return err
	}
	return s.Audit.Record(ctx, audit.Entry{
		ActorID: audit.SystemActor, Action: "transaction.complete", Resource: "transactions", ResourceID: done.ID,
		Changes: map[string]any{"type": done.Type, "amount": done.Amount, "balance_delta": delta},
	})
}

// coverable checks a withdrawal against both cash and free margin.
func (s *Settler) coverable(ctx context.Context, t model.Transaction) (string, bool, error) {
	acc, err := s.Accounts.Get(ctx, t.AccountID)
	if err != nil {
		return "", false, err
	}
	if acc.Balance.LessThan(t.Amount) {
		return apperr.ErrInsufficientBalance.Message, false, nil
	}
	open, err := s.Positions.ListOpenForAccount(ctx, t.AccountID)
	if err != nil {
		return "", false, err
	}
	lev := acc.Leverage
	if lev <= 0 {
		lev = s.DefaultLeverage
	}
	if margin.Calculate(open, acc.Balance, lev).FreeMargin.LessThan(t.Amount) {
		return apperr.ErrInsufficientMargin.Message, false, nil
	}
	return "", true, nil
}

func (s *Settler) fail(ctx context.Context, t model.Transaction, reason string) error {
	failed, err := s.Store.Transition(ctx, t.ID, []types.TransactionStatus{types.TransactionStatusProcessing}, types.TransactionStatusFailed, reason)
	if err != nil {
		return err
	}
	if err := s.Audit.Record(ctx, audit.Entry{
		ActorID: audit.SystemActor, Action: "transaction.fail", Resource: "transactions", ResourceID: t.ID,
		Changes: map[string]any{"reason": reason},
	}); err != nil {
		return err
	}
	s.emit(ctx, notify.EventTxnFailed, failed)
	return workflow.ErrHalt
}

func (s *Settler) notify(ctx context.Context, txnID string) error {
	t, err := s.Store.Get(ctx, txnID)
	if err != nil {
		return err
	}
	if t.Status == types.TransactionStatusCompleted {
		s.emit(ctx, notify.EventTxnCompleted, t)
	}
	return nil
}

func (s *Settler) emit(ctx context.Context, typ string, t model.Transaction) {
	workflow.AfterCommit(ctx, func() {
		s.Metrics.TransactionSettled(string(t.Type), string(t.Status))
		s.Log.Info("transaction settled",
			zap.String("transaction_id", t.ID),
			zap.String("type", string(t.Type)),
			zap.String("status", string(t.Status)))
		s.Notifier.Notify(ctx, notify.Event{Type: typ, UserID: t.UserID, Data: t})
	})
}
