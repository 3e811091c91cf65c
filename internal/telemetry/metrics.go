// Package telemetry exposes the Prometheus instrumentation for the
// evaluation core. Collectors are registered on a caller-supplied registry
// so tests run against isolated registries.
package telemetry

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors the core increments. All Prometheus types
// are safe for concurrent use from any goroutine.
type Metrics struct {
	CascadeRuns     prometheus.Counter
	CascadeErrors   prometheus.Counter
	CascadeDuration prometheus.Histogram
	Objective       prometheus.Histogram
	Workers         prometheus.Gauge
}

// New registers the collectors on reg. A nil reg gets a private registry,
// which effectively disables scraping without touching call sites.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		CascadeRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "plogic_cascade_total",
			Help: "Total cascade runs",
		}),
		CascadeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "plogic_cascade_errors_total",
			Help: "Total cascade errors",
		}),
		CascadeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "plogic_cascade_duration_seconds",
			Help:    "Cascade duration (s)",
			Buckets: prometheus.DefBuckets,
		}),
		Objective: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "plogic_bo_objective",
			Help:    "Objective values (ber - alpha*margin)",
			Buckets: prometheus.LinearBuckets(-1, 0.25, 12),
		}),
		Workers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "plogic_workers",
			Help: "Configured worker pool size",
		}),
	}
}

// ObserveCascade records one simulator invocation.
func (m *Metrics) ObserveCascade(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.CascadeRuns.Inc()
	m.CascadeDuration.Observe(d.Seconds())
	if failed {
		m.CascadeErrors.Inc()
	}
}

// ObserveObjective records one optimizer objective value. Non-finite values
// (failed evaluations) are skipped.
func (m *Metrics) ObserveObjective(v float64) {
	if m == nil {
		return
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return
	}
	m.Objective.Observe(v)
}

// SetWorkers reports the worker pool width.
func (m *Metrics) SetWorkers(n int) {
	if m == nil {
		return
	}
	m.Workers.Set(float64(n))
}
