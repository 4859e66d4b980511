// Package pipeline tracks liveness and throughput of running analysis pipelines.
package pipeline

import (
	"sync"
	"time"
)

const (
	// DefaultTimeout is how long a pipeline may go without a frame before it is reported down.
	DefaultTimeout = 5 * time.Second

	defaultWindow = 5 * time.Second
	maxSamples    = 1000
)

// Probe reports a pipeline's liveness and throughput. Check must be cheap and non-blocking.
type Probe interface {
	Check() (running bool, fps float64)
}

// Watchdog is a Probe fed by frame ticks over a sliding window.
type Watchdog struct {
	timeout time.Duration
	window  time.Duration
	now     func() time.Time

	mu     sync.Mutex
	ticks  []time.Time
	exited bool
}

// NewWatchdog creates a watchdog that reports not running once no tick arrived within timeout.
func NewWatchdog(timeout time.Duration) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Watchdog{
		timeout: timeout,
		window:  max(timeout, defaultWindow),
		now:     time.Now,
		ticks:   make([]time.Time, 0, 64),
	}
}

// Tick records one processed frame.
func (w *Watchdog) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.ticks = append(w.ticks, now)
	w.trim(now)
	if len(w.ticks) > maxSamples {
		w.ticks = w.ticks[len(w.ticks)-maxSamples:]
	}
}

// MarkExited makes every later Check report not running.
func (w *Watchdog) MarkExited() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.exited = true
}

// Check implements Probe. fps is ticks per second over the window; it is 0
// with fewer than two ticks in the window.
func (w *Watchdog) Check() (running bool, fps float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.trim(now)

	if len(w.ticks) >= 2 {
		span := w.ticks[len(w.ticks)-1].Sub(w.ticks[0]).Seconds()
		if span > 0 {
			fps = float64(len(w.ticks)-1) / span
		}
	}

	if w.exited || len(w.ticks) == 0 {
		return false, fps
	}
	return now.Sub(w.ticks[len(w.ticks)-1]) <= w.timeout, fps
}

// trim drops ticks older than the window. Caller holds mu.
func (w *Watchdog) trim(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.ticks) && w.ticks[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.ticks = w.ticks[i:]
	}
}
