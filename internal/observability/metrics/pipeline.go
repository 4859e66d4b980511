package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics exposes the last polled watchdog state of each pipeline.
type PipelineMetrics struct {
	Running *prometheus.GaugeVec
	FPS     *prometheus.GaugeVec
	Checks  prometheus.Counter
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		Running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "facetrack_pipeline_running",
			Help: "Pipeline liveness from the last watchdog poll (1 running, 0 down)",
		}, []string{"pipeline"}),
		FPS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "facetrack_pipeline_fps",
			Help: "Pipeline throughput in frames per second from the last watchdog poll",
		}, []string{"pipeline"}),
		Checks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "facetrack_pipeline_health_checks_total",
			Help: "Number of registry health polls",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

// RecordCheck stores one pipeline's polled state.
func (m *PipelineMetrics) RecordCheck(pipeline string, running bool, fps float64) {
	if m == nil {
		return
	}
	value := 0.0
	if running {
		value = 1
	}
	m.Running.WithLabelValues(pipeline).Set(value)
	m.FPS.WithLabelValues(pipeline).Set(fps)
}

// RecordPoll counts one registry-wide poll.
func (m *PipelineMetrics) RecordPoll() {
	if m == nil {
		return
	}
	m.Checks.Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Running.Describe(ch)
	m.FPS.Describe(ch)
	m.Checks.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Running.Collect(ch)
	m.FPS.Collect(ch)
	m.Checks.Collect(ch)
}
