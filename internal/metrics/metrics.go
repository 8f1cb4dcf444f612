package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradedesk"

// Metrics groups the service's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	orders          *prometheus.CounterVec
	positionsClosed *prometheus.CounterVec
	marginEvents    *prometheus.CounterVec
	stepRetries     *prometheus.CounterVec
	transactions    *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Orders by final lifecycle outcome.",
		}, []string{"status"}),
		positionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_closed_total",
			Help:      "Closed positions by reason.",
		}, []string{"reason"}),
		marginEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "margin_events_total",
			Help:      "Margin calls and liquidations raised by the margin monitor.",
		}, []string{"kind"}),
		stepRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_step_retries_total",
			Help:      "Transient workflow step failures that were retried.",
		}, []string{"step"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Settled funding transactions by type and status.",
		}, []string{"type", "status"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of sweep work: a whole order sweep, or one account's margin or position check.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sweep"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.orders, m.positionsClosed, m.marginEvents, m.stepRetries, m.transactions, m.sweepDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) OrderOutcome(status string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(status).Inc()
}

func (m *Metrics) PositionClosed(reason string) {
	if m == nil {
		return
	}
	m.positionsClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) MarginEvent(kind string) {
	if m == nil {
		return
	}
	m.marginEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) StepRetried(step string) {
	if m == nil {
		return
	}
	m.stepRetries.WithLabelValues(step).Inc()
}

func (m *Metrics) TransactionSettled(typ, status string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(typ, status).Inc()
}

// ObserveSweep records the time since start under the given sweep name.
func (m *Metrics) ObserveSweep(sweep string, start time.Time) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(sweep).Observe(time.Since(start).Seconds())
}
