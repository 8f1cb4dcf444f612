package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/notify"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSimulatorIsSeededAndPositive(t *testing.T) {
	a := NewSimulator([]string{"AAPL", "XYZ"}, 42, 0.05)
	b := NewSimulator([]string{"AAPL", "XYZ"}, 42, 0.05)
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		qa, err := a.Quote(ctx, "aapl")
		require.NoError(t, err)
		qb, _ := b.Quote(ctx, "AAPL")
		assert.True(t, qa.Price.Equal(qb.Price))
		assert.True(t, qa.Price.IsPositive())
	}
	_, err := a.Quote(ctx, "NOPE")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

type countingProvider struct {
	calls atomic.Int32
}

func (p *countingProvider) Quote(_ context.Context, symbol string) (Quote, error) {
	p.calls.Add(1)
	return Quote{Symbol: symbol, Price: decimal.NewFromInt(10), At: time.Now().UTC()}, nil
}

func TestQuotesCacheAside(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemoryCache(ctx, time.Minute, 1)
	require.NoError(t, err)
	defer cache.Close()

	p := &countingProvider{}
	q := NewQuotes(p, cache, zap.NewNop())
	for i := 0; i < 3; i++ {
		price, err := q.Price(ctx, "msft")
		require.NoError(t, err)
		assert.True(t, price.Equal(decimal.NewFromInt(10)))
	}
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestMemoryCacheExpiresByQuoteAge(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemoryCache(ctx, time.Second, 1)
	require.NoError(t, err)
	defer cache.Close()

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	require.NoError(t, cache.Set(ctx, Quote{Symbol: "AAPL", Price: decimal.NewFromInt(1), At: now}))

	_, ok, err := cache.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, err = cache.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPProvider(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Query().Get("symbol") {
		case "AAPL":
			_ = json.NewEncoder(w).Encode(map[string]any{"symbol": "AAPL", "price": "233.16", "timestamp": 1767607200000})
		case "GONE":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{BaseURL: srv.URL, Token: "secret", MaxFailures: 2, OpenFor: time.Minute}, nil)
	ctx := context.Background()

	q, err := p.Quote(ctx, "aapl")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("233.16")))
	assert.Equal(t, time.UnixMilli(1767607200000).UTC(), q.At)

	_, err = p.Quote(ctx, "GONE")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	for i := 0; i < 2; i++ {
		_, err = p.Quote(ctx, "BROKEN")
		require.Error(t, err)
	}
	before := hits.Load()
	_, err = p.Quote(ctx, "AAPL")
	require.Error(t, err)
	assert.Equal(t, before, hits.Load(), "open breaker must not reach the api")
}

type captured struct {
	events []notify.Event
}

func (c *captured) Notify(_ context.Context, evt notify.Event) { c.events = append(c.events, evt) }

func TestBroadcasterPublishesSnapshot(t *testing.T) {
	q := NewQuotes(NewSimulator([]string{"AAPL", "MSFT"}, 1, 0), nil, nil)
	sink := &captured{}
	require.NoError(t, NewBroadcaster(q, []string{"AAPL", "MSFT", "NOPE"}, sink).Execute(context.Background()))

	require.Len(t, sink.events, 1)
	assert.Equal(t, notify.EventPrices, sink.events[0].Type)
	assert.Empty(t, sink.events[0].UserID)
	assert.Len(t, sink.events[0].Data.([]Quote), 2)
}

func TestQuotesHandler(t *testing.T) {
	h := NewHandler(NewQuotes(NewSimulator([]string{"AAPL", "MSFT"}, 1, 0), nil, nil), []string{"AAPL"}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Quotes(rec, httptest.NewRequest(http.MethodGet, "/v1/quotes?symbols=msft,aapl", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got []Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "MSFT", got[0].Symbol)

	rec = httptest.NewRecorder()
	h.Quotes(rec, httptest.NewRequest(http.MethodGet, "/v1/quotes?symbols=,,", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
