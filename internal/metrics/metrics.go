// Package metrics holds the Prometheus instruments of the monitor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every instrument. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	FetchAttemptsTotal   *prometheus.CounterVec
	FetchFailuresTotal   *prometheus.CounterVec
	FetchDuration        *prometheus.HistogramVec
	CyclesTotal          prometheus.Counter
	CycleDuration        prometheus.Histogram
	OpportunitiesTotal   *prometheus.CounterVec
	MaxSpreadPct         *prometheus.GaugeVec
	OutagesTotal         *prometheus.CounterVec
	SinkErrorsTotal      *prometheus.CounterVec
	CycleSkippedTotal    prometheus.Counter
	ArchivedRecordsTotal prometheus.Counter
}

// New registers all instruments on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FetchAttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbwatch_fetch_attempts_total",
				Help: "Price fetches attempted per source",
			},
			[]string{"source"},
		),
		FetchFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbwatch_fetch_failures_total",
				Help: "Failed price fetches per source and failure kind",
			},
			[]string{"source", "kind"},
		),
		FetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbwatch_fetch_duration_seconds",
				Help:    "Price fetch latency per source, rate limit wait included",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"source"},
		),
		CyclesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "arbwatch_cycles_total",
			Help: "Completed monitoring cycles",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbwatch_cycle_duration_seconds",
			Help:    "Wall time of one monitoring cycle",
			Buckets: prometheus.DefBuckets,
		}),
		OpportunitiesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbwatch_opportunities_total",
				Help: "Arbitrage opportunities detected per symbol",
			},
			[]string{"symbol"},
		),
		MaxSpreadPct: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "arbwatch_max_spread_pct",
				Help: "Largest spread seen in the last cycle per symbol",
			},
			[]string{"symbol"},
		),
		OutagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbwatch_symbol_outages_total",
				Help: "Cycles in which no source returned a price for the symbol",
			},
			[]string{"symbol"},
		),
		SinkErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbwatch_sink_errors_total",
				Help: "Reporting sink failures",
			},
			[]string{"sink"},
		),
		CycleSkippedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "arbwatch_cycles_skipped_total",
			Help: "Cycles skipped because another instance held the leader lock",
		}),
		ArchivedRecordsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "arbwatch_archived_records_total",
			Help: "Opportunity records copied to cold storage",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveFetch(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchAttemptsTotal.WithLabelValues(source).Inc()
	m.FetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) FetchFailed(source, kind string) {
	if m == nil {
		return
	}
	m.FetchFailuresTotal.WithLabelValues(source, kind).Inc()
}

func (m *Metrics) CycleCompleted(d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(d.Seconds())
}

func (m *Metrics) Opportunity(symbol string) {
	if m == nil {
		return
	}
	m.OpportunitiesTotal.WithLabelValues(symbol).Inc()
}

func (m *Metrics) SetMaxSpread(symbol string, pct float64) {
	if m == nil {
		return
	}
	m.MaxSpreadPct.WithLabelValues(symbol).Set(pct)
}

func (m *Metrics) Outage(symbol string) {
	if m == nil {
		return
	}
	m.OutagesTotal.WithLabelValues(symbol).Inc()
}

func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.SinkErrorsTotal.WithLabelValues(sink).Inc()
}

func (m *Metrics) CycleSkipped() {
	if m == nil {
		return
	}
	m.CycleSkippedTotal.Inc()
}

func (m *Metrics) Archived(n int64) {
	if m == nil {
		return
	}
	m.ArchivedRecordsTotal.Add(float64(n))
}
