package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics contains metrics for the MQTT event source.
type MQTTMetrics struct {
	ConnectionStatus prometheus.Gauge
	MessagesReceived prometheus.Counter
	Errors           prometheus.Counter
}

// NewMQTTMetrics creates and registers MQTT metrics.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		ConnectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "facetrack_mqtt_connection_status",
			Help: "Current MQTT connection status (1 for connected, 0 for disconnected)",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "facetrack_mqtt_messages_received_total",
			Help: "Total number of MQTT event messages received",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "facetrack_mqtt_errors_total",
			Help: "Total number of MQTT errors encountered",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

// UpdateConnectionStatus sets the connection gauge.
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.ConnectionStatus.Set(1)
		return
	}
	m.ConnectionStatus.Set(0)
}

// IncrementMessagesReceived counts one inbound message.
func (m *MQTTMetrics) IncrementMessagesReceived() {
	if m == nil {
		return
	}
	m.MessagesReceived.Inc()
}

// IncrementErrors counts one MQTT error.
func (m *MQTTMetrics) IncrementErrors() {
	if m == nil {
		return
	}
	m.Errors.Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ConnectionStatus.Describe(ch)
	m.MessagesReceived.Describe(ch)
	m.Errors.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ConnectionStatus.Collect(ch)
	m.MessagesReceived.Collect(ch)
	m.Errors.Collect(ch)
}
