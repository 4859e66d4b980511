// Package observability wires the Prometheus registry and metric collectors together.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeGirum/face-recognition/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry     *prometheus.Registry
	HTTP         *metrics.HTTPMetrics
	Media        *metrics.MediaMetrics
	Pipeline     *metrics.PipelineMetrics
	Notification *metrics.NotificationMetrics
	Annotation   *metrics.AnnotationMetrics
	MQTT         *metrics.MQTTMetrics
}

// NewMetrics creates a registry with process/Go collectors and all component metrics.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{registry: registry}
	var err error

	if m.HTTP, err = metrics.NewHTTPMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	if m.Media, err = metrics.NewMediaMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create media metrics: %w", err)
	}
	if m.Pipeline, err = metrics.NewPipelineMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	if m.Notification, err = metrics.NewNotificationMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create notification metrics: %w", err)
	}
	if m.Annotation, err = metrics.NewAnnotationMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create annotation metrics: %w", err)
	}
	if m.MQTT, err = metrics.NewMQTTMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	return m, nil
}

// Registry exposes the underlying registry (used by tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
