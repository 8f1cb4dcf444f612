package marketdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	At     time.Time       `json:"at"`
}

// Provider is a source of last-trade prices.
type Provider interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// Cache holds recent quotes. A miss is (Quote{}, false, nil).
type Cache interface {
	Get(ctx context.Context, symbol string) (Quote, bool, error)
	Set(ctx context.Context, q Quote) error
}
