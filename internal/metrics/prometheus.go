// Package metrics exposes admission and delivery metrics for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
	"github.com/atvirokodosprendimai/leadgate/internal/core/usecase"
)

const namespace = "leadgate"

// Metrics owns its registry so several servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateDecisions   *prometheus.CounterVec
	authFailures    *prometheus.CounterVec
	guardRejections prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		rateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limit decisions by family and outcome (allowed, denied, fail_open).",
		}, []string{"family", "outcome"}),
		authFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected credentials by reason.",
		}, []string{"kind"}),
		guardRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_guard_rejections_total",
			Help:      "Requests rejected because the identity belongs to another tenant.",
		}),
	}
}

// ObserveOutbox exports dispatcher totals as counters read at scrape time.
func (m *Metrics) ObserveOutbox(d *usecase.OutboxDispatcher) {
	factory := promauto.With(m.registry)
	for name, read := range map[string]func(usecase.OutboxStats) int64{
		"outbox_dispatched_total": func(s usecase.OutboxStats) int64 { return s.Dispatched },
		"outbox_failed_total":     func(s usecase.OutboxStats) int64 { return s.Failed },
		"outbox_dead_total":       func(s usecase.OutboxStats) int64 { return s.Dead },
	} {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      "Outbox dispatcher " + name + ".",
		}, func() float64 { return float64(read(d.Stats())) })
	}
}

func (m *Metrics) RecordRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RecordRateDecision(decision domain.RateDecision) {
	outcome := "allowed"
	switch {
	case decision.FailOpen:
		outcome = "fail_open"
	case !decision.Allowed:
		outcome = "denied"
	}
	m.rateDecisions.WithLabelValues(string(decision.Family), outcome).Inc()
}

func (m *Metrics) RecordAuthFailure(err error) {
	m.authFailures.WithLabelValues(domain.ErrorKind(err)).Inc()
}

func (m *Metrics) RecordGuardRejection() {
	m.guardRejections.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
