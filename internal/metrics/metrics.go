// Package metrics exposes Prometheus collectors for the poll cycle.
//
// All recording methods are safe on a nil *Metrics so callers that do not
// care about metrics can pass nil.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hamed0406/servicepoller/internal/domain"
)

const namespace = "servicepoller"

type Metrics struct {
	Registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cyclesSkipped prometheus.Counter
	cycleDuration prometheus.Histogram
	probes        *prometheus.CounterVec
	writeErrors   prometheus.Counter
	endpoints     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by result (completed, list_error).",
		}, []string{"result"}),
		cyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_skipped_total",
			Help:      "Ticks skipped because the previous cycle was still running.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Wall time of a poll cycle including write-backs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Resolved probes by status.",
		}, []string{"status"}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_write_errors_total",
			Help:      "Status write-backs rejected by the store.",
		}),
		endpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoints",
			Help:      "Endpoints in the most recent cycle snapshot.",
		}),
	}
	m.Registry.MustRegister(
		m.cycles, m.cyclesSkipped, m.cycleDuration, m.probes, m.writeErrors, m.endpoints,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CycleCompleted(endpoints int, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues("completed").Inc()
	m.cycleDuration.Observe(d.Seconds())
	m.endpoints.Set(float64(endpoints))
}

func (m *Metrics) CycleListFailed() {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues("list_error").Inc()
}

func (m *Metrics) CycleSkipped() {
	if m == nil {
		return
	}
	m.cyclesSkipped.Inc()
}

func (m *Metrics) ProbeResolved(s domain.Status) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) WriteFailed() {
	if m == nil {
		return
	}
	m.writeErrors.Inc()
}
