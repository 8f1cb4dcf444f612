package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.OrderOutcome("filled")
	m.OrderOutcome("filled")
	m.PositionClosed("stop_loss")
	m.MarginEvent("liquidation")
	m.ObserveSweep("margin", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.orders.WithLabelValues("filled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.positionsClosed.WithLabelValues("stop_loss")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tradedesk_orders_total")
	assert.Contains(t, rec.Body.String(), "tradedesk_sweep_duration_seconds")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OrderOutcome("filled")
		m.PositionClosed("user")
		m.MarginEvent("margin_call")
		m.StepRetried("fill")
		m.TransactionSettled("deposit", "completed")
		m.ObserveSweep("positions", time.Now())
	})
}
