package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checkout results recorded in checkout_requests_total.
const (
	CheckoutOK           = "ok"
	CheckoutEmpty        = "empty"
	CheckoutStockChanged = "stock_changed"
	CheckoutError        = "error"
)

// Metrics groups the storefront collectors on a private registry so tests can
// build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	CartMutations   *prometheus.CounterVec
	PersistFailures prometheus.Counter
	SessionsActive  prometheus.Gauge
	Checkouts       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Cart operations requested, by operation.",
		}, []string{"op"}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cart_persist_failures_total",
			Help: "Cart snapshot writes that failed.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cart_sessions_active",
			Help: "Cart sessions currently held in memory.",
		}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_requests_total",
			Help: "Checkout attempts, by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.CartMutations,
		m.PersistFailures,
		m.SessionsActive,
		m.Checkouts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Mutation counts one cart operation. Safe on a nil receiver.
func (m *Metrics) Mutation(op string) {
	if m == nil {
		return
	}
	m.CartMutations.WithLabelValues(op).Inc()
}

func (m *Metrics) PersistFailed(error) {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) Checkout(result string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(result).Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}
