package trades

import (
	"context"

	"lv-tradedesk/internal/httputil"
	"lv-tradedesk/internal/model"
)

type Repository interface {
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]model.Trade, error)
	History(ctx context.Context, accountID string) ([]model.Trade, error)
}

type AccountResolver interface {
	Resolve(ctx context.Context, userID, requestedAccountID string) (model.Account, error)
}

type Service struct {
	store    Repository
	accounts AccountResolver
}

func NewService(store Repository, accounts AccountResolver) *Service {
	return &Service{store: store, accounts: accounts}
}

func (s *Service) ListForUser(ctx context.Context, userID, accountID string, page httputil.Page) ([]model.Trade, error) {
	acc, err := s.accounts.Resolve(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	return s.store.ListByAccount(ctx, acc.ID, page.Limit, page.Offset)
}

func (s *Service) History(ctx context.Context, accountID string) ([]model.Trade, error) {
	return s.store.History(ctx, accountID)
}
