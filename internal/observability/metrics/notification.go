package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics contains metrics for the notification broadcaster and its forwarders.
type NotificationMetrics struct {
	PublishedTotal  prometheus.Counter
	DeliveriesTotal *prometheus.CounterVec // by result: delivered, dropped, cancelled
	Subscribers     prometheus.Gauge
	ForwardsTotal   *prometheus.CounterVec // by provider and status
	ForwardDuration *prometheus.HistogramVec
}

// NewNotificationMetrics creates and registers notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{
		PublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "facetrack_notifications_published_total",
			Help: "Total notifications published to the broadcaster",
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facetrack_notification_deliveries_total",
			Help: "Per-subscriber delivery outcomes",
		}, []string{"result"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "facetrack_notification_subscribers",
			Help: "Currently connected live-view subscribers",
		}),
		ForwardsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facetrack_notification_forwards_total",
			Help: "Notifications forwarded to external providers by provider and status",
		}, []string{"provider", "status"}),
		ForwardDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "facetrack_notification_forward_duration_seconds",
			Help:    "Time taken to forward a notification to an external provider",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		}, []string{"provider"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

// RecordPublish records one publish and its fan-out outcome.
func (m *NotificationMetrics) RecordPublish(delivered, dropped, cancelled, subscribers int) {
	if m == nil {
		return
	}
	m.PublishedTotal.Inc()
	m.DeliveriesTotal.WithLabelValues("delivered").Add(float64(delivered))
	m.DeliveriesTotal.WithLabelValues("dropped").Add(float64(dropped))
	m.DeliveriesTotal.WithLabelValues("cancelled").Add(float64(cancelled))
	m.Subscribers.Set(float64(subscribers))
}

// SetSubscribers updates the subscriber gauge.
func (m *NotificationMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}

// RecordForward records one provider forward attempt.
func (m *NotificationMetrics) RecordForward(provider string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ForwardsTotal.WithLabelValues(provider, status).Inc()
	m.ForwardDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.PublishedTotal.Describe(ch)
	m.DeliveriesTotal.Describe(ch)
	m.Subscribers.Describe(ch)
	m.ForwardsTotal.Describe(ch)
	m.ForwardDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.PublishedTotal.Collect(ch)
	m.DeliveriesTotal.Collect(ch)
	m.Subscribers.Collect(ch)
	m.ForwardsTotal.Collect(ch)
	m.ForwardDuration.Collect(ch)
}
