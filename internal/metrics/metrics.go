// Package metrics defines the Prometheus collectors of the merge service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "icalmerge"

// Cache lookup outcomes.
const (
	CacheHit       = "hit"
	CacheMiss      = "miss"
	CacheCoalesced = "coalesced"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	Builds         *prometheus.CounterVec
	BuildDuration  prometheus.Histogram
	CacheLookups   *prometheus.CounterVec
	SourceFetches  *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	EventsRendered prometheus.Gauge
}

// New creates and registers all metrics on registry.
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Builds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_total",
				Help:      "Total number of calendar builds by outcome",
			},
			[]string{"status"},
		),
		BuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Duration of full calendar builds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache gate lookups by result (hit, miss, coalesced)",
			},
			[]string{"result"},
		),
		SourceFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_fetch_total",
				Help:      "Source feed retrievals by outcome",
			},
			[]string{"source", "status"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_fetch_duration_seconds",
				Help:      "Duration of source feed retrieval and parsing",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		EventsRendered: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "events_rendered",
				Help:      "Number of events in the last successfully built calendar",
			},
		),
	}
}

func (m *Metrics) ObserveBuild(err error, d time.Duration, events int) {
	if m == nil {
		return
	}
	m.Builds.WithLabelValues(statusLabel(err)).Inc()
	m.BuildDuration.Observe(d.Seconds())
	if err == nil {
		m.EventsRendered.Set(float64(events))
	}
}

func (m *Metrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveFetch(source string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.SourceFetches.WithLabelValues(source, statusLabel(err)).Inc()
	m.FetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

func statusLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
