package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AnnotationMetrics covers face analysis runs and database commits.
type AnnotationMetrics struct {
	RunsTotal           *prometheus.CounterVec // by status: success, failed, timeout
	RunDuration         prometheus.Histogram
	EmbeddingsCommitted prometheus.Counter
	ActiveSessions      prometheus.Gauge
}

// NewAnnotationMetrics creates and registers annotation metrics.
func NewAnnotationMetrics(registry *prometheus.Registry) (*AnnotationMetrics, error) {
	m := &AnnotationMetrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facetrack_annotation_runs_total",
			Help: "Face analysis runs by outcome",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "facetrack_annotation_run_duration_seconds",
			Help:    "Duration of face analysis runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		}),
		EmbeddingsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "facetrack_embeddings_committed_total",
			Help: "Embeddings newly stored in the recognition database by commits",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "facetrack_annotation_sessions",
			Help: "Annotation sessions currently held in memory",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register annotation metrics: %w", err)
	}
	return m, nil
}

// RecordRun records one analysis run.
func (m *AnnotationMetrics) RecordRun(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(duration.Seconds())
}

// RecordCommit records newly stored embeddings.
func (m *AnnotationMetrics) RecordCommit(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EmbeddingsCommitted.Add(float64(n))
}

// SetActiveSessions updates the session gauge.
func (m *AnnotationMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// Describe implements the prometheus.Collector interface.
func (m *AnnotationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RunsTotal.Describe(ch)
	m.RunDuration.Describe(ch)
	m.EmbeddingsCommitted.Describe(ch)
	m.ActiveSessions.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *AnnotationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RunsTotal.Collect(ch)
	m.RunDuration.Collect(ch)
	m.EmbeddingsCommitted.Collect(ch)
	m.ActiveSessions.Collect(ch)
}
