// Package annotation implements the human-in-the-loop workflow that turns face
// analysis of a clip into corrections for the recognition database.
package annotation

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/DeGirum/face-recognition/internal/analysis"
	"github.com/DeGirum/face-recognition/internal/clips"
	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/logger"
	"github.com/DeGirum/face-recognition/internal/observability/metrics"
	"github.com/DeGirum/face-recognition/internal/recognition"
)

const componentName = "annotation"

// DefaultTimeout bounds one face analysis run when none is configured.
const DefaultTimeout = 10 * time.Minute

var (
	// ErrInvalidState is returned for operations not allowed in the session's current state.
	ErrInvalidState = errors.NewStd("operation not allowed in current session state")
	// ErrAnnotationInProgress is returned while a face analysis run of the session is still executing.
	ErrAnnotationInProgress = errors.NewStd("annotation already in progress")
)

// State of an annotation session.
type State int

const (
	StateIdle State = iota
	StateClipSelected
	StateAnnotating
	StateAnnotated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClipSelected:
		return "clip_selected"
	case StateAnnotating:
		return "annotating"
	case StateAnnotated:
		return "annotated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Track is one tracked face of the annotated clip with its editable attribute.
type Track struct {
	ID         int
	Attribute  string
	Embeddings []recognition.Embedding
}

// ClipCatalog is the part of the clip catalog a session needs.
type ClipCatalog interface {
	Original(ctx context.Context, stemOrName string) (clips.Object, error)
	Remove(ctx context.Context, stemOrName string) error
	Stem(name string) (stem string, annotated bool)
	ResolveStem(stemOrName string) string
	AnnotatedName(original string) string
	Invalidate(names ...string)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Catalog ClipCatalog
	Engine  analysis.Engine
	Known   *KnownObjects
	// Timeout bounds one face analysis run
	Timeout time.Duration
	// BaseContext parents analysis runs; cancelling it aborts them
	BaseContext context.Context
	Metrics     *metrics.AnnotationMetrics
	Logger      logger.Logger
}

// CommitResult summarizes a commit.
type CommitResult struct {
	// Counts maps each matched person to the number of newly stored embeddings.
	Counts map[string]int `json:"counts"`
	// Lines are "<attribute>: <n> embeddings", one per matched person.
	Lines []string `json:"lines"`
}

// Session is one viewer's annotation workflow. Safe for concurrent use.
type Session struct {
	id   string
	deps *Deps
	log  logger.Logger

	mu         sync.Mutex
	state      State
	clip       string // original object name
	stem       string
	tracks     map[int]*Track
	lastErr    error
	message    string
	generation uint64
	running    chan struct{} // closed when the in-flight analysis run finishes
}

// NewSession creates an idle session.
func NewSession(id string, deps *Deps) *Session {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Session{
		id:   id,
		deps: deps,
		log:  log.Module(componentName).With(logger.String("session", id)),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SelectClip makes name (an original or annotated object name, or a stem) the
// session's clip. Valid from any state; an analysis run still executing for
// the previous selection is abandoned and its result discarded.
func (s *Session) SelectClip(ctx context.Context, name string) error {
	original, err := s.deps.Catalog.Original(ctx, name)
	if err != nil {
		return err
	}
	stem, _ := s.deps.Catalog.Stem(original.Name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAnnotating {
		s.log.Info("abandoning analysis run", logger.String("clip", s.clip))
	}
	s.generation++
	s.state = StateClipSelected
	s.clip = original.Name
	s.stem = stem
	s.tracks = nil
	s.lastErr = nil
	s.message = ""
	return nil
}

// StartAnnotation runs face analysis of the selected clip on a worker
// goroutine. It returns once the run has been started.
func (s *Session) StartAnnotation(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running != nil {
		return stateError(ErrAnnotationInProgress, s.state)
	}
	if s.state != StateClipSelected {
		return stateError(ErrInvalidState, s.state)
	}

	s.state = StateAnnotating
	s.lastErr = nil
	s.message = ""
	done := make(chan struct{})
	s.running = done
	go s.annotate(s.generation, s.clip, done)

	s.log.Info("analysis run started", logger.String("clip", s.clip))
	return nil
}

func (s *Session) annotate(generation uint64, clip string, done chan struct{}) {
	base := s.deps.BaseContext
	if base == nil {
		base = context.Background()
	}
	timeout := s.deps.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	start := time.Now()
	faces, err := s.deps.Engine.FindFacesInClip(ctx, clip, analysis.Options{SaveAnnotated: true})
	elapsed := time.Since(start)

	status := "success"
	switch {
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "failed"
	}
	s.deps.Metrics.RecordRun(status, elapsed)

	if err == nil {
		// the engine wrote a fresh annotated variant
		s.deps.Catalog.Invalidate(clip, s.deps.Catalog.AnnotatedName(clip))
	} else if !errors.IsCategory(err, errors.CategoryAnnotation) {
		err = errors.New(fmt.Errorf("face analysis of %s failed: %w", clip, err)).
			Component(componentName).
			Category(errors.CategoryAnnotation).
			Context("clip", clip).
			Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(done)
	s.running = nil

	if generation != s.generation {
		s.log.Debug("discarding result of abandoned analysis run", logger.String("clip", clip))
		return
	}
	if err != nil {
		s.state = StateClipSelected
		s.lastErr = err
		s.log.Warn("analysis run failed", logger.String("clip", clip), logger.Error(err))
		return
	}

	s.tracks = make(map[int]*Track, len(faces))
	for id, face := range faces {
		s.tracks[id] = &Track{ID: id, Attribute: face.Attribute, Embeddings: face.Embeddings}
	}
	s.state = StateAnnotated
	s.log.Info("analysis run completed",
		logger.String("clip", clip),
		logger.Int("tracks", len(faces)),
		logger.Duration("duration", elapsed))
}

// Wait blocks until no analysis run of the session is executing.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.running
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EditAttribute sets the attribute of one track.
func (s *Session) EditAttribute(trackID int, attribute string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAnnotated {
		return stateError(ErrInvalidState, s.state)
	}
	track, ok := s.tracks[trackID]
	if !ok {
		return errors.Newf("track %d not found", trackID).
			Component(componentName).
			Category(errors.CategoryNotFound).
			Context("track_id", trackID).
			Build()
	}
	track.Attribute = strings.TrimSpace(attribute)
	return nil
}

// AddKnownObject adds a person to the recognition database.
func (s *Session) AddKnownObject(ctx context.Context, attribute string) (recognition.KnownObject, error) {
	obj, err := s.deps.Known.Add(ctx, attribute)
	if err != nil {
		return recognition.KnownObject{}, err
	}
	s.mu.Lock()
	s.message = fmt.Sprintf("Added %s", obj.Attribute)
	s.mu.Unlock()
	return obj, nil
}

// Commit stores the embeddings of every track whose attribute names a known
// object. Tracks without attribute or with an unknown one are skipped, and
// embeddings already stored for a person are not stored again.
func (s *Session) Commit(ctx context.Context) (CommitResult, error) {
	s.mu.Lock()
	if s.state != StateAnnotated {
		st := s.state
		s.mu.Unlock()
		return CommitResult{}, stateError(ErrInvalidState, st)
	}
	tracks := make([]Track, 0, len(s.tracks))
	for _, id := range slices.Sorted(maps.Keys(s.tracks)) {
		tracks = append(tracks, *s.tracks[id])
	}
	clip := s.clip
	s.mu.Unlock()

	result := CommitResult{Counts: make(map[string]int)}

	// read the store directly so an object added a moment ago is matched
	objects, err := s.deps.Known.Store().ListObjects(ctx)
	if err != nil {
		return result, err
	}

	var order []string
	for _, track := range tracks {
		if track.Attribute == "" {
			continue
		}
		id, ok := recognition.FindByAttribute(objects, track.Attribute)
		if !ok {
			s.log.Debug("skipping track with unknown attribute",
				logger.Int("track_id", track.ID),
				logger.String("attribute", track.Attribute))
			continue
		}
		n, err := s.deps.Known.Store().AddEmbeddings(ctx, id, track.Embeddings, true)
		if err != nil {
			result.Lines = commitLines(order, result.Counts)
			return result, err
		}
		if _, seen := result.Counts[track.Attribute]; !seen {
			order = append(order, track.Attribute)
		}
		result.Counts[track.Attribute] += n
		s.deps.Metrics.RecordCommit(n)
	}
	result.Lines = commitLines(order, result.Counts)

	s.mu.Lock()
	if len(result.Lines) == 0 {
		s.message = "Nothing to commit"
	} else {
		s.message = "Database updated:\n" + strings.Join(result.Lines, "\n")
	}
	s.mu.Unlock()

	s.log.Info("annotations committed",
		logger.String("clip", clip),
		logger.Any("counts", result.Counts))
	return result, nil
}

func commitLines(order []string, counts map[string]int) []string {
	lines := make([]string, 0, len(order))
	for _, attr := range order {
		lines = append(lines, fmt.Sprintf("%s: %d embeddings", attr, counts[attr]))
	}
	return lines
}

// DeleteClip removes both variants of a clip. A session that had the clip
// selected returns to idle.
func (s *Session) DeleteClip(ctx context.Context, name string) error {
	if err := s.deps.Catalog.Remove(ctx, name); err != nil {
		return err
	}
	stem := s.deps.Catalog.ResolveStem(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stem == stem && s.state != StateIdle {
		s.generation++
		s.state = StateIdle
		s.clip = ""
		s.stem = ""
		s.tracks = nil
		s.lastErr = nil
	}
	s.message = fmt.Sprintf("Deleted %s", stem)
	return nil
}

// abandon discards any in-flight run, used when the session is evicted.
func (s *Session) abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

func stateError(sentinel error, state State) error {
	return errors.New(sentinel).
		Component(componentName).
		Category(errors.CategoryState).
		Context("state", state.String()).
		Build()
}
