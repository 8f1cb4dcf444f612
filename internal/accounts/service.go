package accounts

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/audit"
	"lv-tradedesk/internal/db"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
)

type Repository interface {
	Create(ctx context.Context, userID string, balance decimal.Decimal, leverage int) (model.Account, error)
	Get(ctx context.Context, id string) (model.Account, error)
	ListByUser(ctx context.Context, userID string) ([]model.Account, error)
	SetStatus(ctx context.Context, id string, status types.AccountStatus) (model.Account, error)
	SetLeverage(ctx context.Context, id string, leverage int) (model.Account, error)
	HasOpenPositions(ctx context.Context, id string) (bool, error)
}

var allowedLeverageValues = map[int]struct{}{
	1: {}, 2: {}, 4: {}, 5: {}, 10: {}, 20: {}, 50: {}, 100: {},
}

func isAllowedLeverage(v int) bool {
	_, ok := allowedLeverageValues[v]
	return ok
}

func allowedLeverageList() string {
	vals := make([]int, 0, len(allowedLeverageValues))
	for v := range allowedLeverageValues {
		vals = append(vals, v)
	}
	sort.Ints(vals)
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

type Service struct {
	tx              db.Transactor
	store           Repository
	audit           audit.Auditor
	defaultLeverage int
	signupBalance   decimal.Decimal
}

func NewService(tx db.Transactor, store Repository, auditor audit.Auditor, defaultLeverage int, signupBalance decimal.Decimal) *Service {
	return &Service{tx: tx, store: store, audit: auditor, defaultLeverage: defaultLeverage, signupBalance: signupBalance}
}

// OpenDefault gives a new user their first trading account.
func (s *Service) OpenDefault(ctx context.Context, userID string) (model.Account, error) {
	var acc model.Account
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.store.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			acc = existing[0]
			return nil
		}
		acc, err = s.store.Create(ctx, userID, s.signupBalance, s.defaultLeverage)
		if err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID: userID, Action: "account.open", Resource: "accounts", ResourceID: acc.ID,
			Changes: map[string]any{"balance": acc.Balance, "leverage": acc.Leverage},
		})
	})
	return acc, err
}

func (s *Service) List(ctx context.Context, userID string) ([]model.Account, error) {
	return s.store.ListByUser(ctx, userID)
}

// Resolve picks the account a request acts on: the requested one when it
// belongs to the user, otherwise the user's first account.
func (s *Service) Resolve(ctx context.Context, userID, requestedAccountID string) (model.Account, error) {
	if userID == "" {
		return model.Account{}, apperr.Unauthorized("user is required")
	}
	if id := strings.TrimSpace(requestedAccountID); id != "" {
		acc, err := s.store.Get(ctx, id)
		if err != nil {
			return model.Account{}, err
		}
		if acc.UserID != userID {
			return model.Account{}, apperr.NotFound("account")
		}
		return acc, nil
	}
	list, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return model.Account{}, err
	}
	if len(list) == 0 {
		return model.Account{}, apperr.NotFound("account")
	}
	return list[0], nil
}

// ResolveActive is Resolve restricted to accounts that may trade.
func (s *Service) ResolveActive(ctx context.Context, userID, requestedAccountID string) (model.Account, error) {
	acc, err := s.Resolve(ctx, userID, requestedAccountID)
	if err != nil {
		return acc, err
	}
	if !acc.IsActive() {
		return acc, apperr.ErrAccountInactive
	}
	return acc, nil
}

func (s *Service) UpdateLeverage(ctx context.Context, userID, accountID string, leverage int) (model.Account, error) {
	if !isAllowedLeverage(leverage) {
		return model.Account{}, apperr.Validation("unsupported leverage", map[string]string{
			"leverage": "must be one of: " + allowedLeverageList(),
		})
	}
	var out model.Account
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		acc, err := s.Resolve(ctx, userID, accountID)
		if err != nil {
			return err
		}
		open, err := s.store.HasOpenPositions(ctx, acc.ID)
		if err != nil {
			return err
		}
		if open {
			return apperr.Business("leverage_locked", "cannot change leverage while positions are open")
		}
		out, err = s.store.SetLeverage(ctx, acc.ID, leverage)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID: userID, Action: "account.leverage", Resource: "accounts", ResourceID: acc.ID,
			Changes: map[string]any{"from": acc.Leverage, "to": leverage},
		})
	})
	return out, err
}

func (s *Service) SetStatus(ctx context.Context, actorID, accountID string, status types.AccountStatus) (model.Account, error) {
	switch status {
	case types.AccountStatusActive, types.AccountStatusSuspended, types.AccountStatusClosed:
	default:
		return model.Account{}, apperr.Validation("invalid status", map[string]string{"status": "must be one of: active suspended closed"})
	}
	var out model.Account
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		prev, err := s.store.Get(ctx, accountID)
		if err != nil {
			return err
		}
		if prev.Status == types.AccountStatusClosed {
			return apperr.Business("account_closed", "closed accounts cannot change status")
		}
		out, err = s.store.SetStatus(ctx, accountID, status)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID: actorID, Action: "account.status", Resource: "accounts", ResourceID: accountID,
			Changes: map[string]any{"from": prev.Status, "to": status},
		})
	})
	return out, err
}
