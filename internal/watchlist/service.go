package watchlist

import (
	"context"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/audit"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxItems bounds a single user's list.
const maxItems = 100

type Repository interface {
	Add(ctx context.Context, userID, symbol string) (model.WatchlistItem, error)
	Remove(ctx context.Context, userID, symbol string) error
	List(ctx context.Context, userID string) ([]model.WatchlistItem, error)
}

type Pricer interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Entry is a watched symbol with its latest price; Price is nil when no
// quote is available.
type Entry struct {
	model.WatchlistItem
	Price *decimal.Decimal `json:"price"`
}

type Service struct {
	store  Repository
	prices Pricer
	audit  audit.Auditor
	log    *zap.Logger
}

func NewService(store Repository, prices Pricer, auditor audit.Auditor, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, prices: prices, audit: auditor, log: log}
}

func symbolError() error {
	return apperr.Validation("invalid symbol", map[string]string{"symbol": "must be an upper-case ticker"})
}

func (s *Service) Add(ctx context.Context, userID, symbol string) (model.WatchlistItem, error) {
	symbol = types.NormalizeSymbol(symbol)
	if !types.ValidSymbol(symbol) {
		return model.WatchlistItem{}, symbolError()
	}
	existing, err := s.store.List(ctx, userID)
	if err != nil {
		return model.WatchlistItem{}, err
	}
	for _, it := range existing {
		if it.Symbol == symbol {
			return it, nil
		}
	}
	if len(existing) >= maxItems {
		return model.WatchlistItem{}, apperr.Business("watchlist_full", "watchlist is limited to 100 symbols")
	}
	it, err := s.store.Add(ctx, userID, symbol)
	if err != nil {
		return it, err
	}
	if err := s.audit.Record(ctx, audit.Entry{ActorID: userID, Action: "watchlist.add", Resource: "watchlist", ResourceID: it.ID, Changes: map[string]any{"symbol": symbol}}); err != nil {
		s.log.Warn("audit watchlist add failed", zap.Error(err))
	}
	return it, nil
}

func (s *Service) Remove(ctx context.Context, userID, symbol string) error {
	symbol = types.NormalizeSymbol(symbol)
	if !types.ValidSymbol(symbol) {
		return symbolError()
	}
	if err := s.store.Remove(ctx, userID, symbol); err != nil {
		return err
	}
	if err := s.audit.Record(ctx, audit.Entry{ActorID: userID, Action: "watchlist.remove", Resource: "watchlist", ResourceID: symbol}); err != nil {
		s.log.Warn("audit watchlist remove failed", zap.Error(err))
	}
	return nil
}

// List returns the user's symbols with the latest quote for each.
func (s *Service) List(ctx context.Context, userID string) ([]Entry, error) {
	items, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		e := Entry{WatchlistItem: it}
		if price, err := s.prices.Price(ctx, it.Symbol); err == nil {
			e.Price = &price
		} else {
			s.log.Debug("no quote for watched symbol", zap.String("symbol", it.Symbol), zap.Error(err))
		}
		out = append(out, e)
	}
	return out, nil
}
