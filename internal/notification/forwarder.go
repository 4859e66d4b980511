package notification

import (
	"context"
	"time"

	"github.com/DeGirum/face-recognition/internal/logger"
	"github.com/DeGirum/face-recognition/internal/privacy"
)

// forwardTimeout bounds a single forward attempt.
const forwardTimeout = 30 * time.Second

// Forwarder pushes published events to an external system.
type Forwarder interface {
	Name() string
	Forward(ctx context.Context, event *Event) error
}

type guardedForwarder struct {
	Forwarder
	breaker *CircuitBreaker
}

func newGuardedForwarder(f Forwarder, cfg CircuitBreakerConfig, log logger.Logger) *guardedForwarder {
	return &guardedForwarder{
		Forwarder: f,
		breaker:   NewCircuitBreaker(cfg, f.Name(), log),
	}
}

func (b *Broadcaster) forwardLoop() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.queue:
			b.forward(event)
		}
	}
}

func (b *Broadcaster) forward(event *Event) {
	for _, f := range b.forwarders {
		ctx, cancel := context.WithTimeout(b.ctx, forwardTimeout)
		start := time.Now()
		err := f.breaker.Call(ctx, func(ctx context.Context) error {
			return f.Forward(ctx, event)
		})
		cancel()

		b.metrics.RecordForward(f.Name(), err, time.Since(start))
		if err != nil {
			b.log.Warn("notification forward failed",
				logger.String("provider", f.Name()),
				logger.String("error", privacy.ScrubMessage(err.Error())))
		}
	}
}
