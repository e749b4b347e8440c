package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors for the alert pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	sourceFetches  *prometheus.CounterVec
	sourceAlerts   *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	ingested       *prometheus.CounterVec
	ingestFailures *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_alerts",
			Name:      "source_fetches_total",
			Help:      "Upstream fetches by source and outcome",
		}, []string{"source", "outcome"}),
		sourceAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_alerts",
			Name:      "source_alerts_total",
			Help:      "Alerts returned by each upstream source",
		}, []string{"source"}),
		sourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "disaster_alerts",
			Name:      "source_fetch_duration_seconds",
			Help:      "Time spent fetching one upstream source",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_alerts",
			Name:      "cache_lookups_total",
			Help:      "Aggregation cache lookups by result",
		}, []string{"result"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_alerts",
			Name:      "ingested_alerts_total",
			Help:      "External alerts newly persisted",
		}, []string{"source"}),
		ingestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disaster_alerts",
			Name:      "ingest_failures_total",
			Help:      "External alerts that failed to persist",
		}, []string{"source"}),
	}

	reg.MustRegister(
		m.sourceFetches,
		m.sourceAlerts,
		m.sourceDuration,
		m.cacheLookups,
		m.ingested,
		m.ingestFailures,
	)
	return m
}

// ObserveFetch records one adapter invocation.
func (m *Metrics) ObserveFetch(source string, d time.Duration, n int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sourceFetches.WithLabelValues(source, outcome).Inc()
	m.sourceDuration.WithLabelValues(source).Observe(d.Seconds())
	m.sourceAlerts.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) Ingested(source string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(source).Inc()
}

func (m *Metrics) IngestFailed(source string) {
	if m == nil {
		return
	}
	m.ingestFailures.WithLabelValues(source).Inc()
}
