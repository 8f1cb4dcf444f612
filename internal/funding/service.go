package funding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/audit"
	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/httputil"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"
	"lv-tradedesk/internal/workflow"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AccountResolver interface {
	ResolveActive(ctx context.Context, userID, requestedAccountID string) (model.Account, error)
}

// Submitter queues a job without waiting for room.
type Submitter interface {
	TrySubmit(job workflow.Job) error
}

type ServiceDeps struct {
	Tx       db.Transactor
	Store    Repository
	Accounts AccountResolver
	Settler  *Settler
	Pool     Submitter
	Audit    audit.Auditor
	Log      *zap.Logger
}

type Service struct {
	ServiceDeps
}

func NewService(d ServiceDeps) *Service {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Service{ServiceDeps: d}
}

type Request struct {
	UserID    string
	AccountID string
	Type      types.TransactionType
	Amount    decimal.Decimal
	Method    string
	Reference string
}

// RequestFunds records a pending deposit or withdrawal and queues its
// settlement.
func (s *Service) RequestFunds(ctx context.Context, req Request) (model.Transaction, error) {
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))
	fields := map[string]string{}
	if !req.Amount.IsPositive() {
		fields["amount"] = "must be positive"
	}
	m, ok := LookupMethod(req.Method)
	if !ok {
		fields["method"] = "unknown funding method"
	} else if allowed, why := m.allows(req.Type, req.Amount); !allowed && req.Amount.IsPositive() {
		fields["method"] = why
	}
	if len(req.Reference) > 128 {
		fields["reference"] = "must be at most 128 characters"
	}
	if len(fields) > 0 {
		return model.Transaction{}, apperr.Validation("invalid funding request", fields)
	}

	var txn model.Transaction
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		acc, err := s.Accounts.ResolveActive(ctx, req.UserID, req.AccountID)
		if err != nil {
			return err
		}
		txn, err = s.Store.Insert(ctx, model.Transaction{
			UserID:    req.UserID,
			AccountID: acc.ID,
			Type:      req.Type,
			Amount:    req.Amount,
			Method:    m.ID,
			Reference: strings.TrimSpace(req.Reference),
		})
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return s.Audit.Record(ctx, audit.Entry{
			ActorID: req.UserID, Action: "transaction.request", Resource: "transactions", ResourceID: txn.ID,
			Changes: txn,
		})
	})
	if err != nil {
		return model.Transaction{}, err
	}
	s.Submit(ctx, txn)
	return txn, nil
}

func (s *Service) Submit(ctx context.Context, t model.Transaction) {
	if s.Pool == nil || s.Settler == nil {
		return
	}
	id := t.ID
	err := s.Pool.TrySubmit(workflow.Job{
		Key:  t.AccountID,
		Name: RunID(id),
		Run:  func(ctx context.Context) error { return s.Settler.Settle(ctx, id) },
	})
	if err != nil {
		s.Log.Warn("settlement submit failed", zap.String("transaction_id", id), zap.Error(err))
	}
}

// Cancel withdraws a user's own transaction while it is still pending.
func (s *Service) Cancel(ctx context.Context, userID, txnID string) (model.Transaction, error) {
	var out model.Transaction
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.Store.GetForUpdate(ctx, txnID)
		if err != nil {
			return err
		}
		if t.UserID != userID {
			return apperr.NotFound("transaction")
		}
		if t.Status != types.TransactionStatusPending {
			return apperr.ErrTransactionNotPending
		}
		out, err = s.Store.Transition(ctx, t.ID, []types.TransactionStatus{types.TransactionStatusPending}, types.TransactionStatusCancelled, "cancelled by user")
		if apperr.KindOf(err) == apperr.KindConflict {
			return apperr.ErrTransactionNotPending
		}
		if err != nil {
			return err
		}
		return s.Audit.Record(ctx, audit.Entry{
			ActorID: userID, Action: "transaction.cancel", Resource: "transactions", ResourceID: t.ID,
			Changes: map[string]any{"from": t.Status, "to": out.Status},
		})
	})
	if err != nil {
		return model.Transaction{}, err
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, userID string, page httputil.Page) ([]model.Transaction, error) {
	return s.Store.List(ctx, Filter{UserID: userID, Limit: page.Limit, Offset: page.Offset})
}

func (s *Service) ListAll(ctx context.Context, status types.TransactionStatus, page httputil.Page) ([]model.Transaction, error) {
	return s.Store.List(ctx, Filter{Status: status, Limit: page.Limit, Offset: page.Offset})
}

// Recover resubmits settlements that have not moved for staleAfter. It is
// the funding sweep task.
func (s *Service) Recover(ctx context.Context, staleAfter time.Duration) error {
	list, err := s.Store.ListUnsettled(ctx, time.Now().UTC().Add(-staleAfter))
	if err != nil {
		return fmt.Errorf("list unsettled transactions: %w", err)
	}
	for _, t := range list {
		s.Log.Info("resubmitting settlement", zap.String("transaction_id", t.ID), zap.String("status", string(t.Status)))
		s.Submit(ctx, t)
	}
	return nil
}
