package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/margin"
	"lv-tradedesk/internal/metrics"
	"lv-tradedesk/internal/model"
	"lv-tradedesk/internal/notify"
	"lv-tradedesk/internal/positions"
	"lv-tradedesk/internal/types"
	"lv-tradedesk/internal/workflow"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

// book is an in-memory account and position store shared by the fakes.
type book struct {
	mu        sync.Mutex
	accounts  map[string]model.Account
	positions map[string]model.Position
	snapshots map[string]margin.Snapshot
	closes    []closeCall
}

type closeCall struct {
	id     string
	price  decimal.Decimal
	reason types.CloseReason
}

func newBook() *book {
	return &book{
		accounts:  map[string]model.Account{},
		positions: map[string]model.Position{},
		snapshots: map[string]margin.Snapshot{},
	}
}

func (b *book) account(id, balance string, lev int) {
	b.accounts[id] = model.Account{ID: id, UserID: "user-" + id, Balance: d(balance), Leverage: lev, Status: types.AccountStatusActive}
}

func (b *book) position(p model.Position) {
	p.Status = types.PositionStatusOpen
	if p.CurrentPrice.IsZero() {
		p.CurrentPrice = p.AvgPrice
	}
	p.UnrealizedPnL = positions.UnrealizedPnL(p.Side, p.AvgPrice, p.CurrentPrice, p.Qty)
	b.positions[p.ID] = p
}

func (b *book) Get(_ context.Context, id string) (model.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[id]
	if !ok {
		return acc, apperr.NotFound("account")
	}
	return acc, nil
}

func (b *book) ListActive(_ context.Context) ([]model.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Account
	for _, acc := range b.accounts {
		if acc.IsActive() {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *book) SaveSnapshot(_ context.Context, id string, snap margin.Snapshot, buyingPower decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accounts[id]
	acc.Equity = snap.Equity
	acc.UsedMargin = snap.UsedMargin
	acc.FreeMargin = snap.FreeMargin
	acc.MarginLevel = snap.MarginLevel
	acc.BuyingPower = buyingPower
	b.accounts[id] = acc
	b.snapshots[id] = snap
	return nil
}

func (b *book) ListOpenForAccount(_ context.Context, accountID string) ([]model.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Position
	for _, p := range b.positions {
		if p.AccountID == accountID && p.IsOpen() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *book) ListOpen(_ context.Context) ([]model.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Position
	for _, p := range b.positions {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *book) Revalue(_ context.Context, p model.Position, price, equity decimal.Decimal) (model.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	positions.Mark(&p, price)
	p.RiskPercent = positions.RiskPercent(p.Notional(), equity)
	b.positions[p.ID] = p
	return p, nil
}

func (b *book) Close(_ context.Context, id string, price decimal.Decimal, reason types.CloseReason, _ string) (model.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[id]
	if !ok {
		return p, apperr.NotFound("position")
	}
	if !p.IsOpen() {
		return p, apperr.ErrPositionClosed
	}
	realized := positions.UnrealizedPnL(p.Side, p.AvgPrice, price, p.Qty)
	p.Status = types.PositionStatusClosed
	p.RealizedPnL = realized
	p.UnrealizedPnL = decimal.Zero
	b.positions[id] = p
	acc := b.accounts[p.AccountID]
	acc.Balance = acc.Balance.Add(realized)
	b.accounts[p.AccountID] = acc
	b.closes = append(b.closes, closeCall{id: id, price: price, reason: reason})
	return p, nil
}

type prices map[string]decimal.Decimal

func (p prices) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	v, ok := p[symbol]
	if !ok {
		return v, apperr.NotFound("quote")
	}
	return v, nil
}

type events struct {
	mu  sync.Mutex
	got []notify.Event
}

func (e *events) Notify(_ context.Context, evt notify.Event) {
	e.mu.Lock()
	e.got = append(e.got, evt)
	e.mu.Unlock()
}

func newMarginMonitor(b *book, ev *events) *MarginMonitor {
	return NewMarginMonitor(MarginDeps{
		Accounts:        b,
		Snapshots:       b,
		Positions:       b,
		Closer:          b,
		DefaultLeverage: 1,
		Notifier:        ev,
	})
}

func TestMarginMonitorLiquidatesBelowFifty(t *testing.T) {
	b := newBook()
	b.account("a1", "100", 1)
	b.position(model.Position{ID: "p1", AccountID: "a1", Symbol: "AAPL", Side: types.PositionSideLong, Qty: d("10"), AvgPrice: d("100"), CurrentPrice: d("60")})
	b.position(model.Position{ID: "p2", AccountID: "a1", Symbol: "MSFT", Side: types.PositionSideLong, Qty: d("1"), AvgPrice: d("10")})
	ev := &events{}

	health, err := newMarginMonitor(b, ev).Check(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, margin.HealthLiquidation, health)

	require.Len(t, b.closes, 2)
	for _, c := range b.closes {
		assert.Equal(t, types.CloseReasonLiquidation, c.reason)
	}
	assert.True(t, b.closes[0].price.Equal(d("60")))

	require.Len(t, ev.got, 1)
	assert.Equal(t, notify.EventLiquidated, ev.got[0].Type)
	assert.Equal(t, "user-a1", ev.got[0].UserID)

	acc := b.accounts["a1"]
	assert.True(t, acc.Balance.Equal(d("-300")))
	assert.True(t, acc.Equity.Equal(acc.Balance))
	assert.True(t, acc.MarginLevel.IsInf())
}

func TestMarginMonitorMarginCall(t *testing.T) {
	b := newBook()
	b.account("a1", "1000", 1)
	b.position(model.Position{ID: "p1", AccountID: "a1", Symbol: "AAPL", Side: types.PositionSideLong, Qty: d("10"), AvgPrice: d("100")})
	ev := &events{}

	health, err := newMarginMonitor(b, ev).Check(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, margin.HealthMarginCall, health)
	assert.Empty(t, b.closes)

	require.Len(t, ev.got, 1)
	assert.Equal(t, notify.EventMarginCall, ev.got[0].Type)
	data := ev.got[0].Data.(map[string]any)
	assert.True(t, data["required_top_up"].(decimal.Decimal).Equal(d("-500")))
	assert.True(t, data["top_up_to_healthy"].(decimal.Decimal).Equal(d("200")))
}

func TestMarginMonitorHealthyAtBoundary(t *testing.T) {
	b := newBook()
	b.account("a1", "12000", 1)
	b.position(model.Position{ID: "p1", AccountID: "a1", Symbol: "AAPL", Side: types.PositionSideLong, Qty: d("100"), AvgPrice: d("100")})
	ev := &events{}

	health, err := newMarginMonitor(b, ev).Check(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, margin.HealthHealthy, health)
	assert.Empty(t, ev.got)
	assert.InDelta(t, 120, b.accounts["a1"].MarginLevel.Float64(), 1e-9)
}

func TestMarginSweepPersistsEquityForEveryAccount(t *testing.T) {
	b := newBook()
	b.account("a1", "50000", 1)
	b.account("a2", "700", 1)
	b.position(model.Position{ID: "p1", AccountID: "a1", Symbol: "AAPL", Side: types.PositionSideLong, Qty: d("50"), AvgPrice: d("180.50"), CurrentPrice: d("233.16")})
	suspended := model.Account{ID: "a3", Balance: d("1"), Status: types.AccountStatusSuspended}
	b.accounts["a3"] = suspended

	require.NoError(t, newMarginMonitor(b, &events{}).Execute(context.Background()))

	assert.True(t, b.accounts["a1"].Equity.Equal(d("52633")))
	assert.True(t, b.accounts["a2"].Equity.Equal(d("700")))
	assert.True(t, b.accounts["a2"].MarginLevel.IsInf())
	_, touched := b.snapshots["a3"]
	assert.False(t, touched)
}

// heldJobs queues jobs until drain is called.
type heldJobs struct {
	jobs []workflow.Job
}

func (h *heldJobs) Submit(_ context.Context, job workflow.Job) error {
	h.jobs = append(h.jobs, job)
	return nil
}

func (h *heldJobs) drain(t *testing.T) {
	t.Helper()
	for _, job := range h.jobs {
		require.NoError(t, job.Run(context.Background()))
	}
	h.jobs = nil
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestSweepDurationCoversAccountJobs(t *testing.T) {
	b := newBook()
	b.account("a1", "1000", 1)
	b.account("a2", "1000", 1)
	b.position(model.Position{ID: "p1", AccountID: "a1", Symbol: "AAPL", Side: types.PositionSideLong, Qty: d("1"), AvgPrice: d("100"), CurrentPrice: d("100")})
	b.position(model.Position{ID: "p2", AccountID: "a2", Symbol: "AAPL", Side: types.PositionSideLong, Qty: d("1"), AvgPrice: d("100"), CurrentPrice: d("100")})
	m := metrics.New()
	held := &heldJobs{}

	mm := NewMarginMonitor(MarginDeps{Accounts: b, Snapshots: b, Positions: b, Closer: b, DefaultLeverage: 1, Pool: held, Metrics: m})
	pm := NewPositionMonitor(PositionDeps{Accounts: b, Ledger: b, Closer: b, Prices: prices{"AAPL": d("100")}, Pool: held, Metrics: m})
	require.NoError(t, mm.Execute(context.Background()))
	require.NoError(t, pm.Execute(context.Background()))
	require.Len(t, held.jobs, 4)
	assert.NotContains(t, scrape(t, m), `tradedesk_sweep_duration_seconds_count{sweep="margin"}`)

	held.drain(t)
	body := scrape(t, m)
	assert.Contains(t, body, `tradedesk_sweep_duration_seconds_count{sweep="margin"} 2`)
	assert.Contains(t, body, `tradedesk_sweep_duration_seconds_count{sweep="positions"} 2`)
}

func TestTrigger(t *testing.T) {
	long := model.Position{Side: types.PositionSideLong, StopLoss: ptr("95"), TakeProfit: ptr("120")}
	short := model.Position{Side: types.PositionSideShort, StopLoss: ptr("105"), TakeProfit: ptr("80")}
	both := model.Position{Side: types.PositionSideLong, StopLoss: ptr("110"), TakeProfit: ptr("105")}

	cases := []struct {
		name  string
		pos   model.Position
		price string
		want  types.CloseReason
		fire  bool
	}{
		{"long inside band", long, "100", "", false},
		{"long stop", long, "95", types.CloseReasonStopLoss, true},
		{"long target", long, "121", types.CloseReasonTakeProfit, true},
		{"short stop", short, "106", types.CloseReasonStopLoss, true},
		{"short target", short, "80", types.CloseReasonTakeProfit, true},
		{"short inside band", short, "90", "", false},
		{"stop wins over target", both, "107", types.CloseReasonStopLoss, true},
		{"no levels", model.Position{Side: types.PositionSideLong}, "1", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, fire := Trigger(tc.pos, d(tc.price))
			assert.Equal(t, tc.fire, fire)
			assert.Equal(t, tc.want, reason)
		})
	}
}

func TestPositionMonitorMarksAndCloses(t *testing.T) {
	b := newBook()
	b.account("a1", "1000", 1)
	b.position(model.Position{ID: "p1", AccountID: "a1", Symbol: "AAPL", Side: types.PositionSideLong, Qty: d("10"), AvgPrice: d("100"), StopLoss: ptr("90")})
	b.position(model.Position{ID: "p2", AccountID: "a1", Symbol: "TSLA", Side: types.PositionSideShort, Qty: d("1"), AvgPrice: d("200"), TakeProfit: ptr("150")})
	b.position(model.Position{ID: "p3", AccountID: "a1", Symbol: "NOQ", Side: types.PositionSideLong, Qty: d("1"), AvgPrice: d("5")})

	m := NewPositionMonitor(PositionDeps{
		Accounts: b,
		Ledger:   b,
		Closer:   b,
		Prices:   prices{"AAPL": d("110"), "TSLA": d("150")},
	})
	require.NoError(t, m.Execute(context.Background()))

	p1 := b.positions["p1"]
	assert.True(t, p1.IsOpen())
	assert.True(t, p1.CurrentPrice.Equal(d("110")))
	assert.True(t, p1.UnrealizedPnL.Equal(d("100")))
	// equity 1000 + 100 + 50 + 0; notional 1100
	assert.InDelta(t, 1100.0/1150.0*100, p1.RiskPercent.Float64(), 1e-9)

	require.Len(t, b.closes, 1)
	assert.Equal(t, "p2", b.closes[0].id)
	assert.Equal(t, types.CloseReasonTakeProfit, b.closes[0].reason)

	p3 := b.positions["p3"]
	assert.True(t, p3.CurrentPrice.Equal(d("5")))

	require.NoError(t, m.Execute(context.Background()))
	assert.Len(t, b.closes, 1)
}

func TestPositionMonitorStopLossFirst(t *testing.T) {
	b := newBook()
	b.account("a1", "1000", 1)
	b.position(model.Position{ID: "p1", AccountID: "a1", Symbol: "AAPL", Side: types.PositionSideLong, Qty: d("1"), AvgPrice: d("100"), StopLoss: ptr("110"), TakeProfit: ptr("105")})

	m := NewPositionMonitor(PositionDeps{Accounts: b, Ledger: b, Closer: b, Prices: prices{"AAPL": d("107")}})
	require.NoError(t, m.Execute(context.Background()))

	require.Len(t, b.closes, 1)
	assert.Equal(t, types.CloseReasonStopLoss, b.closes[0].reason)
	assert.True(t, b.accounts["a1"].Balance.Equal(d("1007")))
}

type orderList struct {
	open      []model.Order
	pending   []model.Order
	unsettled []model.Order
}

func (l orderList) ListByStatus(_ context.Context, status types.OrderStatus, before time.Time) ([]model.Order, error) {
	src := l.open
	if status == types.OrderStatusPending {
		src = l.pending
	}
	var out []model.Order
	for _, o := range src {
		if o.CreatedAt.Before(before) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (l orderList) ListUnsettled(_ context.Context, before time.Time) ([]model.Order, error) {
	var out []model.Order
	for _, o := range l.unsettled {
		if o.FilledAt != nil && o.FilledAt.Before(before) {
			out = append(out, o)
		}
	}
	return out, nil
}

type queue struct {
	submitted []string
	expired   []string
}

func (q *queue) Submit(_ context.Context, o model.Order) { q.submitted = append(q.submitted, o.ID) }

func (q *queue) Expire(_ context.Context, id, _ string) (model.Order, error) {
	q.expired = append(q.expired, id)
	return model.Order{ID: id, Status: types.OrderStatusExpired}, nil
}

func TestOrderMonitorSweep(t *testing.T) {
	now := time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)
	yesterday := now.Add(-20 * time.Hour)
	src := orderList{
		open: []model.Order{
			{ID: "day-old", Symbol: "AAPL", Side: types.OrderSideBuy, Type: types.OrderTypeLimit, LimitPrice: ptr("50"), TimeInForce: types.TimeInForceDay, CreatedAt: yesterday},
			{ID: "gtc-ready", Symbol: "AAPL", Side: types.OrderSideBuy, Type: types.OrderTypeLimit, LimitPrice: ptr("101"), TimeInForce: types.TimeInForceGTC, CreatedAt: yesterday},
			{ID: "gtc-waiting", Symbol: "AAPL", Side: types.OrderSideBuy, Type: types.OrderTypeLimit, LimitPrice: ptr("90"), TimeInForce: types.TimeInForceGTC, CreatedAt: yesterday},
			{ID: "no-quote", Symbol: "ZZZ", Side: types.OrderSideBuy, Type: types.OrderTypeStop, StopPrice: ptr("1"), TimeInForce: types.TimeInForceGTC, CreatedAt: yesterday},
		},
		pending: []model.Order{
			{ID: "stale", CreatedAt: now.Add(-5 * time.Minute)},
			{ID: "fresh", CreatedAt: now.Add(-5 * time.Second)},
		},
		unsettled: []model.Order{
			{ID: "stuck-fill", Status: types.OrderStatusFilled, FilledAt: timePtr(now.Add(-10 * time.Minute))},
			{ID: "settling", Status: types.OrderStatusFilled, FilledAt: timePtr(now.Add(-time.Second))},
		},
	}
	q := &queue{}
	m := NewOrderMonitor(OrderDeps{Orders: src, Queue: q, Prices: prices{"AAPL": d("100")}})
	m.now = func() time.Time { return now }

	require.NoError(t, m.Execute(context.Background()))
	assert.Equal(t, []string{"day-old"}, q.expired)
	assert.Equal(t, []string{"gtc-ready", "stale", "stuck-fill"}, q.submitted)
}

func timePtr(t time.Time) *time.Time { return &t }
