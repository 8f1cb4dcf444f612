package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/types"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type quoteResponse struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"`
}

// HTTPProvider reads quotes from a REST quote API. Calls go through a
// circuit breaker; while it is open every call fails fast.
type HTTPProvider struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
}

type HTTPConfig struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	MaxFailures uint32
	OpenFor     time.Duration
}

func NewHTTPProvider(cfg HTTPConfig, log *zap.Logger) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "quotes",
		Timeout: cfg.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.MaxFailures
		},
		// An unknown symbol is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || apperr.KindOf(err) == apperr.KindNotFound
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("quote breaker state change", zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
	return &HTTPProvider{client: client, breaker: breaker}
}

func (p *HTTPProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	symbol = types.NormalizeSymbol(symbol)
	out, err := p.breaker.Execute(func() (any, error) {
		var body quoteResponse
		resp, err := p.client.R().
			SetContext(ctx).
			SetQueryParam("symbol", symbol).
			SetResult(&body).
			Get("/quote")
		if err != nil {
			return nil, fmt.Errorf("quote request: %w", err)
		}
		switch {
		case resp.StatusCode() == http.StatusNotFound:
			return nil, apperr.NotFound("quote")
		case resp.IsError():
			return nil, fmt.Errorf("quote api: status %d", resp.StatusCode())
		}
		if !body.Price.IsPositive() {
			return nil, fmt.Errorf("quote api: non-positive price for %s", symbol)
		}
		at := time.Now().UTC()
		if body.Timestamp > 0 {
			at = time.UnixMilli(body.Timestamp).UTC()
		}
		return Quote{Symbol: symbol, Price: body.Price, At: at}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Quote{}, fmt.Errorf("quote api unavailable: %w", err)
		}
		return Quote{}, err
	}
	return out.(Quote), nil
}
