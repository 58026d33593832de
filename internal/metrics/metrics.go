// Package metrics exposes the engine's Prometheus instruments:
//   - arb_cache_refreshes_total{venue,result} – price cache fetches per venue
//   - arb_scans_total{bridge}                 – completed scans per bridge asset
//   - arb_scan_duration_seconds               – scan latency histogram
//   - arb_paths_evaluated_total / arb_paths_skipped_total
//   - arb_executions_total{outcome}           – sagas by terminal state
//   - arb_admission_slots_open                – currently held admission slots
//   - arb_rate_limit_wait_seconds             – time spent waiting for venue spacing
//
// Registered in New and served at /metrics in Prometheus text format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the engine's instruments. One instance is constructed at
// startup and injected into the services that record to it.
type Metrics struct {
	Registry *prometheus.Registry

	CacheRefreshes *prometheus.CounterVec
	Scans          *prometheus.CounterVec
	ScanDuration   prometheus.Histogram
	PathsEvaluated prometheus.Counter
	PathsSkipped   prometheus.Counter
	Executions     *prometheus.CounterVec
	AdmissionSlots prometheus.Gauge
	RateLimitWait  prometheus.Histogram
}

// New creates and registers all instruments on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		CacheRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_cache_refreshes_total",
				Help: "Price cache refresh attempts per venue",
			},
			[]string{"venue", "result"},
		),
		Scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_scans_total",
				Help: "Completed path scans per bridge asset",
			},
			[]string{"bridge"},
		),
		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arb_scan_duration_seconds",
				Help:    "Duration of one full path scan",
				Buckets: prometheus.DefBuckets,
			},
		),
		PathsEvaluated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arb_paths_evaluated_total",
				Help: "Paths pushed through the profit model",
			},
		),
		PathsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arb_paths_skipped_total",
				Help: "Paths degraded to the non-viable sentinel",
			},
		),
		Executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_executions_total",
				Help: "Execution sagas by terminal outcome",
			},
			[]string{"outcome"},
		),
		AdmissionSlots: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arb_admission_slots_open",
				Help: "Currently held admission slots",
			},
		),
		RateLimitWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arb_rate_limit_wait_seconds",
				Help:    "Time spent waiting for per-venue call spacing",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
	}

	m.Registry.MustRegister(
		m.CacheRefreshes,
		m.Scans,
		m.ScanDuration,
		m.PathsEvaluated,
		m.PathsSkipped,
		m.Executions,
		m.AdmissionSlots,
		m.RateLimitWait,
	)

	return m
}
