// Package notification fans inbound event messages out to connected live-view
// subscribers and optional external forwarders.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/DeGirum/face-recognition/internal/logger"
	"github.com/DeGirum/face-recognition/internal/observability/metrics"
)

const (
	componentName = "notification"

	// DefaultChannelBufferSize is the per-subscriber buffer; a subscriber that
	// falls this far behind misses events.
	DefaultChannelBufferSize = 16

	forwardQueueSize = 64
)

// Event is one published message. It has no identity beyond its delivery.
type Event struct {
	Message    string    `json:"message"`
	Source     string    `json:"source,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Stats summarises one publish.
type Stats struct {
	Delivered int
	Dropped   int // subscriber buffer full
	Cancelled int // subscriber gone, pruned
}

type subscriber struct {
	ch     chan *Event
	ctx    context.Context
	cancel context.CancelFunc
}

// Config configures a Broadcaster.
type Config struct {
	BufferSize int
	Forwarders []Forwarder
	Metrics    *metrics.NotificationMetrics
	Logger     logger.Logger
}

// Broadcaster delivers each published event at most once to every subscriber
// connected at publish time. There is no replay and no ordering guarantee
// across subscribers.
type Broadcaster struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	subscribers []*subscriber
	bufferSize  int

	forwarders []*guardedForwarder
	queue      chan *Event
	workers    sync.WaitGroup

	metrics *metrics.NotificationMetrics
	log     logger.Logger
}

// NewBroadcaster creates a broadcaster. Close releases its subscribers and forwarder worker.
func NewBroadcaster(cfg Config) *Broadcaster {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultChannelBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Broadcaster{
		ctx:        ctx,
		cancel:     cancel,
		bufferSize: cfg.BufferSize,
		metrics:    cfg.Metrics,
		log:        log.Module(componentName),
	}

	for _, f := range cfg.Forwarders {
		b.forwarders = append(b.forwarders, newGuardedForwarder(f, DefaultCircuitBreakerConfig(), b.log))
	}
	if len(b.forwarders) > 0 {
		b.queue = make(chan *Event, forwardQueueSize)
		b.workers.Go(b.forwardLoop)
	}
	return b
}

// Subscribe registers a live-view subscriber. The returned context is done
// when the subscriber is unsubscribed or the broadcaster closes. The channel
// is never closed; readers select on the context.
func (b *Broadcaster) Subscribe() (<-chan *Event, context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, cancel := context.WithCancel(b.ctx)
	sub := &subscriber{
		ch:     make(chan *Event, b.bufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	b.subscribers = append(b.subscribers, sub)
	b.metrics.SetSubscribers(len(b.subscribers))

	b.log.Debug("subscriber added", logger.Int("total_subscribers", len(b.subscribers)))
	return sub.ch, ctx
}

// Unsubscribe removes a subscriber and cancels its context.
func (b *Broadcaster) Unsubscribe(ch <-chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.ch == ch {
			sub.cancel()
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			b.metrics.SetSubscribers(len(b.subscribers))
			b.log.Debug("subscriber removed", logger.Int("remaining_subscribers", len(b.subscribers)))
			return
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Publish delivers message to every current subscriber without blocking. A
// full or cancelled subscriber never stops delivery to the others.
func (b *Broadcaster) Publish(message string) Stats {
	return b.PublishEvent(&Event{Message: message, Source: "http", ReceivedAt: time.Now()})
}

// PublishEvent is Publish for a prepared event.
func (b *Broadcaster) PublishEvent(event *Event) Stats {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}

	b.mu.Lock()
	active := make([]*subscriber, 0, len(b.subscribers))
	var stats Stats
	for _, sub := range b.subscribers {
		if sub.ctx.Err() != nil {
			stats.Cancelled++
			continue
		}
		active = append(active, sub)

		clone := *event
		select {
		case sub.ch <- &clone:
			stats.Delivered++
		default:
			stats.Dropped++
		}
	}
	b.subscribers = active
	remaining := len(active)
	b.mu.Unlock()

	b.metrics.RecordPublish(stats.Delivered, stats.Dropped, stats.Cancelled, remaining)
	b.log.Debug("notification broadcast",
		logger.String("source", event.Source),
		logger.Int("delivered", stats.Delivered),
		logger.Int("dropped", stats.Dropped),
		logger.Int("cancelled", stats.Cancelled))

	b.enqueueForward(event)
	return stats
}

func (b *Broadcaster) enqueueForward(event *Event) {
	if b.queue == nil || b.ctx.Err() != nil {
		return
	}
	select {
	case b.queue <- event:
	default:
		b.log.Warn("forward queue full, event not forwarded")
	}
}

// Close cancels every subscriber and waits for pending forwards to stop.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	for _, sub := range b.subscribers {
		sub.cancel()
	}
	b.subscribers = nil
	b.mu.Unlock()

	b.cancel()
	b.workers.Wait()
	b.metrics.SetSubscribers(0)
}
