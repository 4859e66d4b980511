// Package mqtt feeds messages from an MQTT topic into the notification broadcaster.
package mqtt

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/DeGirum/face-recognition/internal/conf"
	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/logger"
	"github.com/DeGirum/face-recognition/internal/notification"
	"github.com/DeGirum/face-recognition/internal/observability/metrics"
	"github.com/DeGirum/face-recognition/internal/privacy"
)

const (
	componentName = "mqtt"

	// EventSource tags events received over MQTT.
	EventSource = "mqtt"

	defaultConnectTimeout    = 30 * time.Second
	defaultSubscribeTimeout  = 10 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	maxReconnectInterval     = 5 * time.Minute
)

// Publisher receives events decoded from MQTT messages.
type Publisher interface {
	PublishEvent(event *notification.Event) notification.Stats
}

// Config holds the configuration for the subscriber.
type Config struct {
	Broker         string
	Topic          string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// ConfigFromSettings builds a Config from application settings.
func ConfigFromSettings(s conf.MQTTSettings) Config {
	return Config{
		Broker:         s.Broker,
		Topic:          s.Topic,
		ClientID:       s.ClientID,
		Username:       s.Username,
		Password:       s.Password,
		ConnectTimeout: defaultConnectTimeout,
	}
}

// Subscriber republishes every message on one topic through a Publisher.
type Subscriber struct {
	config    Config
	publisher Publisher
	metrics   *metrics.MQTTMetrics
	log       logger.Logger

	mu     sync.Mutex
	client pahomqtt.Client
}

// NewSubscriber validates cfg and creates a subscriber. It does not connect.
func NewSubscriber(cfg Config, publisher Publisher, m *metrics.MQTTMetrics, log logger.Logger) (*Subscriber, error) {
	if log == nil {
		log = logger.NewNop()
	}
	u, err := url.Parse(cfg.Broker)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid MQTT broker URL %q", privacy.RedactURL(cfg.Broker)).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.Newf("MQTT topic must not be empty").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "facetrack"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return &Subscriber{
		config:    cfg,
		publisher: publisher,
		metrics:   m,
		log:       log.Module(componentName).With(logger.String("broker", privacy.RedactURL(cfg.Broker))),
	}, nil
}

func (s *Subscriber) clientOptions() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(s.config.Broker)
	opts.SetClientID(s.config.ClientID)
	opts.SetUsername(s.config.Username)
	opts.SetPassword(s.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetConnectTimeout(s.config.ConnectTimeout)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(s.onConnectionLost)
	return opts
}

// Start connects to the broker. The topic is (re)subscribed on every connect.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}
	client := pahomqtt.NewClient(s.clientOptions())
	token := client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(defaultDisconnectQuiesce)
		return ctx.Err()
	case <-time.After(s.config.ConnectTimeout):
		client.Disconnect(defaultDisconnectQuiesce)
		s.metrics.IncrementErrors()
		return errors.Newf("MQTT connection timeout after %s", s.config.ConnectTimeout).
			Component(componentName).
			Category(errors.CategoryTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		s.metrics.IncrementErrors()
		return errors.New(fmt.Errorf("MQTT connection error: %w", err)).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("broker", privacy.RedactURL(s.config.Broker)).
			Build()
	}

	s.client = client
	return nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return
	}
	if s.client.IsConnected() {
		s.client.Unsubscribe(s.config.Topic).WaitTimeout(defaultSubscribeTimeout)
	}
	s.client.Disconnect(defaultDisconnectQuiesce)
	s.client = nil
	s.metrics.UpdateConnectionStatus(false)
	s.log.Info("disconnected from MQTT broker")
}

// IsConnected reports whether the subscriber holds a live connection.
func (s *Subscriber) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.client.IsConnected()
}

func (s *Subscriber) onConnect(client pahomqtt.Client) {
	s.metrics.UpdateConnectionStatus(true)
	s.log.Info("connected to MQTT broker")

	token := client.Subscribe(s.config.Topic, 0, s.handleMessage)
	if !token.WaitTimeout(defaultSubscribeTimeout) || token.Error() != nil {
		s.metrics.IncrementErrors()
		s.log.Error("failed to subscribe",
			logger.String("topic", s.config.Topic),
			logger.Error(token.Error()))
		return
	}
	s.log.Info("subscribed", logger.String("topic", s.config.Topic))
}

func (s *Subscriber) onConnectionLost(_ pahomqtt.Client, err error) {
	s.metrics.UpdateConnectionStatus(false)
	s.metrics.IncrementErrors()
	s.log.Warn("connection to MQTT broker lost", logger.String("error", privacy.ScrubMessage(err.Error())))
}

func (s *Subscriber) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	text := strings.TrimSpace(string(msg.Payload()))
	if text == "" {
		return
	}
	s.metrics.IncrementMessagesReceived()
	stats := s.publisher.PublishEvent(&notification.Event{
		Message:    text,
		Source:     EventSource,
		ReceivedAt: time.Now(),
	})
	s.log.Debug("event received",
		logger.String("topic", msg.Topic()),
		logger.Int("delivered", stats.Delivered))
}
