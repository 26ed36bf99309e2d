package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the agent. Components take a
// *Registry and may receive nil (metrics disabled); every recording
// helper is nil-safe so call sites stay unconditional.
type Registry struct {
	reg *prometheus.Registry

	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec

	GateChecks  *prometheus.CounterVec
	Allocations *prometheus.CounterVec

	FetchFailures *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	CyclesTotal   prometheus.Counter
}

// NewRegistry creates the metric set on a dedicated Prometheus registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantgate_cache_hits_total",
				Help: "Indicator cache hits by timeframe",
			},
			[]string{"timeframe"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantgate_cache_misses_total",
				Help: "Indicator cache misses by timeframe and cause",
			},
			[]string{"timeframe", "cause"},
		),
		CacheEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantgate_cache_evictions_total",
				Help: "Stale indicator cache entries evicted on read",
			},
			[]string{"timeframe"},
		),
		GateChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantgate_gate_checks_total",
				Help: "Order gate check outcomes by check name and verdict",
			},
			[]string{"check", "verdict"},
		),
		Allocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantgate_allocations_total",
				Help: "Capital allocation outcomes by position type",
			},
			[]string{"position_type", "outcome"},
		),
		FetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantgate_fetch_failures_total",
				Help: "Market data fetch failures by endpoint",
			},
			[]string{"endpoint"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quantgate_cycle_duration_seconds",
				Help:    "Duration of one full polling cycle",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		CyclesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quantgate_cycles_total",
				Help: "Total polling cycles executed",
			},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		r.CacheHits, r.CacheMisses, r.CacheEvictions,
		r.GateChecks, r.Allocations,
		r.FetchFailures, r.CycleDuration, r.CyclesTotal,
	)
	return r
}

// Handler exposes the registry for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) RecordCacheHit(timeframe string) {
	if r == nil {
		return
	}
	r.CacheHits.WithLabelValues(timeframe).Inc()
}

func (r *Registry) RecordCacheMiss(timeframe, cause string) {
	if r == nil {
		return
	}
	r.CacheMisses.WithLabelValues(timeframe, cause).Inc()
}

func (r *Registry) RecordCacheEviction(timeframe string) {
	if r == nil {
		return
	}
	r.CacheEvictions.WithLabelValues(timeframe).Inc()
}

func (r *Registry) RecordGateCheck(check, verdict string) {
	if r == nil {
		return
	}
	r.GateChecks.WithLabelValues(check, verdict).Inc()
}

func (r *Registry) RecordAllocation(positionType, outcome string) {
	if r == nil {
		return
	}
	r.Allocations.WithLabelValues(positionType, outcome).Inc()
}

func (r *Registry) RecordFetchFailure(endpoint string) {
	if r == nil {
		return
	}
	r.FetchFailures.WithLabelValues(endpoint).Inc()
}

func (r *Registry) ObserveCycle(seconds float64) {
	if r == nil {
		return
	}
	r.CycleDuration.Observe(seconds)
	r.CyclesTotal.Inc()
}
