package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/logger"
	"github.com/DeGirum/face-recognition/internal/observability/metrics"
)

const (
	componentName = "pipeline"

	// StatusOK is the health status when every pipeline is running.
	StatusOK = "ok"
	// StatusEmpty is the health status when nothing is registered.
	StatusEmpty = "No pipelines running"
)

// Control stops a running pipeline.
type Control interface {
	Stop(ctx context.Context) error
}

// Starter launches a pipeline and hands back its control and watchdog handles.
type Starter interface {
	Start(ctx context.Context) (Control, Probe, error)
}

// Entry is one registered pipeline.
type Entry struct {
	Name    string
	Control Control
	Probe   Probe
}

// Status is one pipeline's polled state.
type Status struct {
	ID      int     `json:"id"`
	Name    string  `json:"name,omitempty"`
	Running bool    `json:"running"`
	FPS     float64 `json:"fps"`
}

// Report is the aggregated health verdict.
type Report struct {
	Status    string   `json:"status"`
	Pipelines []Status `json:"pipelines,omitempty"`
}

// Healthy reports whether the report carries the ok status.
func (r Report) Healthy() bool {
	return r.Status == StatusOK
}

// Registry holds the pipelines started by this process. Entries are never
// removed; a failed pipeline stays registered and reported as down.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry

	metrics *metrics.PipelineMetrics
	log     logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(m *metrics.PipelineMetrics, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{metrics: m, log: log.Module(componentName)}
}

// Register adds an entry and returns its id (registration index).
func (r *Registry) Register(entry Entry) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := len(r.entries)
	if entry.Name == "" {
		entry.Name = fmt.Sprintf("pipeline-%d", id)
	}
	r.entries = append(r.entries, entry)
	r.log.Info("pipeline registered", logger.Int("id", id), logger.String("name", entry.Name))
	return id
}

// Start launches a pipeline through starter and registers it.
func (r *Registry) Start(ctx context.Context, name string, starter Starter) (int, error) {
	control, probe, err := starter.Start(ctx)
	if err != nil {
		return -1, errors.New(err).
			Component(componentName).
			Category(errors.CategoryPipeline).
			Context("pipeline", name).
			Context("operation", "start").
			Build()
	}
	return r.Register(Entry{Name: name, Control: control, Probe: probe}), nil
}

// Len returns the number of registered pipelines.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CheckAll polls every pipeline in registration order.
func (r *Registry) CheckAll() []Status {
	r.mu.RLock()
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	statuses := make([]Status, len(entries))
	for i, e := range entries {
		running, fps := false, 0.0
		if e.Probe != nil {
			running, fps = e.Probe.Check()
		}
		statuses[i] = Status{
			ID:      i,
			Name:    e.Name,
			Running: running,
			FPS:     roundFPS(fps),
		}
		r.metrics.RecordCheck(e.Name, running, statuses[i].FPS)
	}
	r.metrics.RecordPoll()
	return statuses
}

// IsHealthy reports whether at least one pipeline is registered and all are running.
func (r *Registry) IsHealthy() bool {
	return healthy(r.CheckAll())
}

// Health polls all pipelines and builds the health report. When several
// pipelines are down the status names the last one.
func (r *Registry) Health() Report {
	statuses := r.CheckAll()
	if len(statuses) == 0 {
		return Report{Status: StatusEmpty}
	}

	report := Report{Status: StatusOK, Pipelines: statuses}
	for _, s := range statuses {
		if !s.Running {
			report.Status = fmt.Sprintf("Pipeline %d is not running", s.ID)
		}
	}
	if report.Status != StatusOK {
		r.log.Debug("pipeline health check failed", logger.String("status", report.Status))
	}
	return report
}

// StopAll stops every pipeline control handle, collecting errors.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.RLock()
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		if e.Control == nil {
			continue
		}
		if err := e.Control.Stop(ctx); err != nil {
			r.log.Warn("failed to stop pipeline", logger.String("name", e.Name), logger.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", e.Name, err))
		}
	}
	return errors.Join(errs...)
}

func healthy(statuses []Status) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if !s.Running {
			return false
		}
	}
	return true
}

func roundFPS(fps float64) float64 {
	return math.Round(fps*10) / 10
}
