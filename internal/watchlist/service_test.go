package watchlist

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/audit"
	"lv-tradedesk/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	items []model.WatchlistItem
}

func (m *memStore) Add(_ context.Context, userID, symbol string) (model.WatchlistItem, error) {
	for _, it := range m.items {
		if it.UserID == userID && it.Symbol == symbol {
			return it, nil
		}
	}
	it := model.WatchlistItem{ID: fmt.Sprintf("w%d", len(m.items)+1), UserID: userID, Symbol: symbol}
	m.items = append(m.items, it)
	return it, nil
}

func (m *memStore) Remove(_ context.Context, userID, symbol string) error {
	for i, it := range m.items {
		if it.UserID == userID && it.Symbol == symbol {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("watchlist_item")
}

func (m *memStore) List(_ context.Context, userID string) ([]model.WatchlistItem, error) {
	var out []model.WatchlistItem
	for _, it := range m.items {
		if it.UserID == userID {
			out = append(out, it)
		}
	}
	return out, nil
}

type prices map[string]decimal.Decimal

func (p prices) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	v, ok := p[symbol]
	if !ok {
		return decimal.Zero, apperr.NotFound("quote")
	}
	return v, nil
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, audit.Entry) error { return nil }

func TestAddIsIdempotentAndListCarriesQuotes(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, prices{"AAPL": decimal.NewFromInt(233)}, nopAudit{}, nil)
	ctx := context.Background()

	first, err := svc.Add(ctx, "u1", " aapl ")
	require.NoError(t, err)
	again, err := svc.Add(ctx, "u1", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = svc.Add(ctx, "u1", "ZZZ")
	require.NoError(t, err)
	_, err = svc.Add(ctx, "u2", "AAPL")
	require.NoError(t, err)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.NotNil(t, list[0].Price)
	assert.True(t, list[0].Price.Equal(decimal.NewFromInt(233)))
	assert.Nil(t, list[1].Price)
}

func TestAddRejectsBadSymbolsAndFullList(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, prices{}, nopAudit{}, nil)
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", "not a symbol")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	for i := 0; i < maxItems; i++ {
		store.items = append(store.items, model.WatchlistItem{ID: fmt.Sprint(i), UserID: "u1", Symbol: fmt.Sprintf("S%d", i)})
	}
	_, err = svc.Add(ctx, "u1", "MSFT")
	assert.Equal(t, apperr.KindBusiness, apperr.KindOf(err))
	// Already watched symbols are still accepted.
	_, err = svc.Add(ctx, "u1", "S5")
	assert.NoError(t, err)
}

func TestRemove(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, prices{}, nopAudit{}, nil)
	ctx := context.Background()
	_, err := svc.Add(ctx, "u1", "TSLA")
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, "u1", "tsla"))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(svc.Remove(ctx, "u1", "TSLA")))
}

func TestHandlerAddAndList(t *testing.T) {
	h := NewHandler(NewService(&memStore{}, prices{}, nopAudit{}, nil), nil)

	rec := httptest.NewRecorder()
	h.Add(rec, httptest.NewRequest(http.MethodPost, "/v1/watchlist", strings.NewReader(`{"symbol":"nvda"}`)), "u1")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"symbol":"NVDA"`)

	rec = httptest.NewRecorder()
	h.Add(rec, httptest.NewRequest(http.MethodPost, "/v1/watchlist", strings.NewReader(`{}`)), "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/v1/watchlist", nil), "u2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
