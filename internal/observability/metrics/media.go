// Package metrics provides custom Prometheus metrics for the facetrack components.
// Every Record method is safe to call on a nil receiver so components can run
// without metrics in tests and CLI commands.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MediaMetrics contains metrics for clip byte serving.
type MediaMetrics struct {
	RequestsTotal *prometheus.CounterVec // by status: full, partial, not_found, invalid_range, error
	BytesServed   prometheus.Counter
	CacheResults  *prometheus.CounterVec // by result: hit, miss
}

// NewMediaMetrics creates and registers media metrics.
func NewMediaMetrics(registry *prometheus.Registry) (*MediaMetrics, error) {
	m := &MediaMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register media metrics: %w", err)
	}
	return m, nil
}

func (m *MediaMetrics) initMetrics() {
	m.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facetrack_media_requests_total",
			Help: "Clip media requests by outcome",
		},
		[]string{"status"},
	)
	m.BytesServed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "facetrack_media_bytes_served_total",
		Help: "Total clip bytes written to clients",
	})
	m.CacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facetrack_media_cache_results_total",
			Help: "Clip byte cache lookups by result",
		},
		[]string{"result"},
	)
}

// RecordRequest records one media request outcome and the bytes it returned.
func (m *MediaMetrics) RecordRequest(status string, bytes int) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.BytesServed.Add(float64(bytes))
	}
}

// RecordCache records a cache hit or miss.
func (m *MediaMetrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheResults.WithLabelValues("hit").Inc()
		return
	}
	m.CacheResults.WithLabelValues("miss").Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *MediaMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RequestsTotal.Describe(ch)
	m.BytesServed.Describe(ch)
	m.CacheResults.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *MediaMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RequestsTotal.Collect(ch)
	m.BytesServed.Collect(ch)
	m.CacheResults.Collect(ch)
}
