package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry with the ledger's collectors.
// All record methods are safe on a nil receiver so services can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	ledgerTransactions  *prometheus.CounterVec
	limitDenials        *prometheus.CounterVec
	settlementDelivered *prometheus.CounterVec
	upgradeTransitions  *prometheus.CounterVec
	upgradeAlerts       prometheus.Gauge
	httpDuration        *prometheus.HistogramVec
}

// New creates the collectors and registers them together with the Go runtime collectors.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ledgerTransactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_transactions_total",
				Help:      "Ledger apply attempts by channel, direction and result",
			},
			[]string{"channel", "direction", "result"},
		),
		limitDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "limit_denials_total",
				Help:      "Payments denied by the limit policy",
			},
			[]string{"limit"},
		),
		settlementDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_deliveries_total",
				Help:      "Settlement notifications by result",
			},
			[]string{"result"},
		),
		upgradeTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upgrade_transitions_total",
				Help:      "Upgrade workflow state transitions",
			},
			[]string{"state"},
		),
		upgradeAlerts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upgrade_alerts",
				Help:      "Upgrade workflows whose last step exhausted its retries",
			},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ledgerTransactions,
		m.limitDenials,
		m.settlementDelivered,
		m.upgradeTransitions,
		m.upgradeAlerts,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) LedgerTransaction(channel, direction, result string) {
	if m == nil {
		return
	}
	m.ledgerTransactions.WithLabelValues(channel, direction, result).Inc()
}

func (m *Metrics) LimitDenied(limit string) {
	if m == nil {
		return
	}
	m.limitDenials.WithLabelValues(limit).Inc()
}

func (m *Metrics) SettlementDelivery(result string) {
	if m == nil {
		return
	}
	m.settlementDelivered.WithLabelValues(result).Inc()
}

func (m *Metrics) UpgradeTransition(state string) {
	if m == nil {
		return
	}
	m.upgradeTransitions.WithLabelValues(state).Inc()
}

// UpgradeAlert moves the standing alert gauge up (raised) or down (cleared).
func (m *Metrics) UpgradeAlert(raised bool) {
	if m == nil {
		return
	}
	if raised {
		m.upgradeAlerts.Inc()
		return
	}
	m.upgradeAlerts.Dec()
}

func (m *Metrics) ObserveHTTP(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, path, status).Observe(seconds)
}
