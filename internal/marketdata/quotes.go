package marketdata

import (
	"context"

	"lv-tradedesk/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Quotes is the read side used by the rest of the service: cache first,
// provider on a miss.
type Quotes struct {
	provider Provider
	cache    Cache
	log      *zap.Logger
}

func NewQuotes(provider Provider, cache Cache, log *zap.Logger) *Quotes {
	if log == nil {
		log = zap.NewNop()
	}
	return &Quotes{provider: provider, cache: cache, log: log}
}

func (q *Quotes) Quote(ctx context.Context, symbol string) (Quote, error) {
	symbol = types.NormalizeSymbol(symbol)
	if q.cache != nil {
		cached, ok, err := q.cache.Get(ctx, symbol)
		if err != nil {
			q.log.Warn("quote cache read failed", zap.String("symbol", symbol), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}
	fresh, err := q.provider.Quote(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	if q.cache != nil {
		if err := q.cache.Set(ctx, fresh); err != nil {
			q.log.Warn("quote cache write failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return fresh, nil
}

// Price satisfies the pricer interfaces of the trading packages.
func (q *Quotes) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	quote, err := q.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return quote.Price, nil
}

// Snapshot quotes every symbol it can; failures are logged and skipped.
func (q *Quotes) Snapshot(ctx context.Context, symbols []string) []Quote {
	out := make([]Quote, 0, len(symbols))
	for _, sym := range symbols {
		quote, err := q.Quote(ctx, sym)
		if err != nil {
			q.log.Debug("quote unavailable", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		out = append(out, quote)
	}
	return out
}
