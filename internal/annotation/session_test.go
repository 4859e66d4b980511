package annotation

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DeGirum/face-recognition/internal/analysis"
	"github.com/DeGirum/face-recognition/internal/clips"
	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/observability/metrics"
	"github.com/DeGirum/face-recognition/internal/recognition"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

// fakeEngine returns canned faces and writes the annotated variant like the real engine.
type fakeEngine struct {
	storage *clips.DirStorage

	mu    sync.Mutex
	faces analysis.FaceMap
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (e *fakeEngine) set(faces analysis.FaceMap, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faces, e.err = faces, err
}

// block makes subsequent runs wait until the returned func is called.
func (e *fakeEngine) block() (release func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	gate := make(chan struct{})
	e.gate = gate
	return sync.OnceFunc(func() { close(gate) })
}

func (e *fakeEngine) FindFacesInClip(ctx context.Context, name string, opts analysis.Options) (analysis.FaceMap, error) {
	e.calls.Add(1)
	e.mu.Lock()
	gate, faces, err := e.gate, e.faces, e.err
	e.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if opts.SaveAnnotated {
		ext := filepath.Ext(name)
		annotated := name[:len(name)-len(ext)] + "_annotated" + ext
		if werr := e.storage.Write(ctx, annotated, []byte("annotated")); werr != nil {
			return nil, werr
		}
	}
	return faces, nil
}

type fixture struct {
	storage *clips.DirStorage
	catalog *clips.Catalog
	engine  *fakeEngine
	store   *recognition.GormStore
	known   *KnownObjects
	metrics *metrics.AnnotationMetrics
	deps    *Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	storage, err := clips.NewDirStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	store, err := recognition.NewGormStore(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m, err := metrics.NewAnnotationMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	f := &fixture{
		storage: storage,
		catalog: clips.NewCatalog(storage, "_annotated", nil),
		engine:  &fakeEngine{storage: storage},
		store:   store,
		known:   NewKnownObjects(store),
		metrics: m,
	}
	f.deps = &Deps{
		Catalog:     f.catalog,
		Engine:      f.engine,
		Known:       f.known,
		Timeout:     5 * time.Second,
		BaseContext: t.Context(),
		Metrics:     m,
	}
	return f
}

func (f *fixture) writeClip(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, f.storage.Write(t.Context(), name, []byte("video-"+name)))
}

// annotated drives a new session to Annotated on clip with the given faces.
func (f *fixture) annotated(t *testing.T, clip string, faces analysis.FaceMap) *Session {
	t.Helper()
	f.writeClip(t, clip)
	f.engine.set(faces, nil)

	s := NewSession("test", f.deps)
	require.NoError(t, s.SelectClip(t.Context(), clip))
	require.NoError(t, s.StartAnnotation(t.Context()))
	require.NoError(t, s.Wait(t.Context()))
	require.Equal(t, StateAnnotated, s.State())
	return s
}

func emb(vals ...float32) recognition.Embedding { return recognition.Embedding(vals) }

func TestSelectClipUnknownFailsNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	s := NewSession("s", f.deps)
	err := s.SelectClip(t.Context(), "missing.mp4")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, StateIdle, s.State())
}

func TestSelectClipAcceptsAnnotatedName(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.writeClip(t, "cam.mp4")
	f.writeClip(t, "cam_annotated.mp4")

	s := NewSession("s", f.deps)
	require.NoError(t, s.SelectClip(t.Context(), "cam_annotated.mp4"))

	snap, err := s.Snapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "cam.mp4", snap.Clip)
	assert.Equal(t, StateClipSelected.String(), snap.State)
}

func TestAnnotationRun(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	s := f.annotated(t, "clip1.mp4", analysis.FaceMap{
		2: {TrackID: 2, Embeddings: []recognition.Embedding{emb(1), emb(2)}},
		1: {TrackID: 1, Attribute: "Alice", Embeddings: []recognition.Embedding{emb(3)}},
	})

	snap, err := s.Snapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "annotated", snap.State)
	assert.Equal(t, "clip1_annotated.mp4", snap.AnnotatedClip)
	assert.False(t, snap.Busy)
	assert.Equal(t, []TrackView{
		{ID: 1, Attribute: "Alice", Embeddings: 1},
		{ID: 2, Attribute: "", Embeddings: 2},
	}, snap.Tracks)

	clip, err := f.catalog.Get(t.Context(), "clip1")
	require.NoError(t, err)
	assert.NotNil(t, clip.Annotated)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.RunsTotal.WithLabelValues("success")), 0)
}

func TestStartAnnotationRequiresSelectedClip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	s := NewSession("s", f.deps)
	err := s.StartAnnotation(t.Context())
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 409, errors.HTTPStatus(err))

	s = f.annotated(t, "clip1.mp4", analysis.FaceMap{})
	require.ErrorIs(t, s.StartAnnotation(t.Context()), ErrInvalidState)
}

func TestStartAnnotationWhileRunning(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.writeClip(t, "clip1.mp4")
	release := f.engine.block()
	defer release()

	s := NewSession("s", f.deps)
	require.NoError(t, s.SelectClip(t.Context(), "clip1.mp4"))
	require.NoError(t, s.StartAnnotation(t.Context()))
	assert.Equal(t, StateAnnotating, s.State())

	require.ErrorIs(t, s.StartAnnotation(t.Context()), ErrAnnotationInProgress)

	release()
	require.NoError(t, s.Wait(t.Context()))
	assert.Equal(t, StateAnnotated, s.State())
	assert.Equal(t, int32(1), f.engine.calls.Load())
}

func TestSelectClipAbandonsRunningAnnotation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.writeClip(t, "first.mp4")
	f.writeClip(t, "second.mp4")
	f.engine.set(analysis.FaceMap{1: {TrackID: 1}}, nil)
	release := f.engine.block()
	defer release()

	s := NewSession("s", f.deps)
	require.NoError(t, s.SelectClip(t.Context(), "first.mp4"))
	require.NoError(t, s.StartAnnotation(t.Context()))

	require.NoError(t, s.SelectClip(t.Context(), "second.mp4"))
	assert.Equal(t, StateClipSelected, s.State())
	require.ErrorIs(t, s.StartAnnotation(t.Context()), ErrAnnotationInProgress,
		"abandoned run still occupies the worker")

	release()
	require.NoError(t, s.Wait(t.Context()))

	snap, err := s.Snapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "clip_selected", snap.State)
	assert.Equal(t, "second.mp4", snap.Clip)
	assert.Empty(t, snap.Tracks, "late result is discarded")

	require.NoError(t, s.StartAnnotation(t.Context()))
	require.NoError(t, s.Wait(t.Context()))
	assert.Equal(t, StateAnnotated, s.State())
}

func TestAnnotationFailureReturnsToClipSelected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.writeClip(t, "clip1.mp4")
	f.engine.set(nil, errors.NewStd("model crashed"))

	s := NewSession("s", f.deps)
	require.NoError(t, s.SelectClip(t.Context(), "clip1.mp4"))
	require.NoError(t, s.StartAnnotation(t.Context()))
	require.NoError(t, s.Wait(t.Context()))

	assert.Equal(t, StateClipSelected, s.State())
	snap, err := s.Snapshot(t.Context())
	require.NoError(t, err)
	assert.Contains(t, snap.LastError, "model crashed")
	assert.True(t, errors.IsCategory(s.lastErr, errors.CategoryAnnotation))

	// the failure is recoverable
	f.engine.set(analysis.FaceMap{}, nil)
	require.NoError(t, s.StartAnnotation(t.Context()))
	require.NoError(t, s.Wait(t.Context()))
	assert.Equal(t, StateAnnotated, s.State())
}

func TestAnnotationTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.deps.Timeout = 20 * time.Millisecond
	f.writeClip(t, "clip1.mp4")
	release := f.engine.block()
	defer release()

	s := NewSession("s", f.deps)
	require.NoError(t, s.SelectClip(t.Context(), "clip1.mp4"))
	require.NoError(t, s.StartAnnotation(t.Context()))
	require.NoError(t, s.Wait(t.Context()))

	assert.Equal(t, StateClipSelected, s.State())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.RunsTotal.WithLabelValues("timeout")), 0)
}

func TestEditAttribute(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	idle := NewSession("s", f.deps)
	require.ErrorIs(t, idle.EditAttribute(1, "Bob"), ErrInvalidState)

	s := f.annotated(t, "clip1.mp4", analysis.FaceMap{1: {TrackID: 1}})
	require.NoError(t, s.EditAttribute(1, "  Bob "))
	err := s.EditAttribute(7, "Bob")
	assert.True(t, errors.IsNotFound(err))

	snap, err := s.Snapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Bob", snap.Tracks[0].Attribute)
}

func TestAddKnownObjectRejectsDuplicate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := NewSession("s", f.deps)

	alice, err := s.AddKnownObject(t.Context(), " Alice ")
	require.NoError(t, err)
	assert.Equal(t, "Alice", alice.Attribute)
	assert.Len(t, alice.ID, 36)

	before, err := f.store.ListObjects(t.Context())
	require.NoError(t, err)

	_, err = s.AddKnownObject(t.Context(), "Alice")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDuplicate))

	after, err := f.store.ListObjects(t.Context())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = s.AddKnownObject(t.Context(), "   ")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	snap, err := s.Snapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, snap.KnownObjects)
}

func TestCommitCountsAndDedup(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	s := f.annotated(t, "clip1.mp4", analysis.FaceMap{
		1: {TrackID: 1, Attribute: "Alice", Embeddings: []recognition.Embedding{emb(1, 0), emb(0, 1), emb(1, 1)}},
		2: {TrackID: 2, Attribute: "Unknown", Embeddings: []recognition.Embedding{emb(5, 5)}},
		3: {TrackID: 3, Embeddings: []recognition.Embedding{emb(6, 6)}},
		4: {TrackID: 4, Attribute: "Bob", Embeddings: []recognition.Embedding{emb(7, 7), emb(8, 8)}},
	})
	_, err := s.AddKnownObject(t.Context(), "Alice")
	require.NoError(t, err)
	_, err = s.AddKnownObject(t.Context(), "Bob")
	require.NoError(t, err)

	result, err := s.Commit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Alice": 3, "Bob": 2}, result.Counts)
	assert.Equal(t, []string{"Alice: 3 embeddings", "Bob: 2 embeddings"}, result.Lines)
	assert.NotContains(t, result.Counts, "Unknown")
	assert.Equal(t, StateAnnotated, s.State())

	again, err := s.Commit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Alice": 0, "Bob": 0}, again.Counts)

	counts, err := f.store.CountEmbeddings(t.Context())
	require.NoError(t, err)
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	assert.Equal(t, 5, total)
	assert.InDelta(t, 5, testutil.ToFloat64(f.metrics.EmbeddingsCommitted), 0)
}

func TestCommitAfterEditingAttribute(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	s := f.annotated(t, "clip1.mp4", analysis.FaceMap{
		1: {TrackID: 1, Embeddings: []recognition.Embedding{emb(1), emb(2)}},
	})
	_, err := s.AddKnownObject(t.Context(), "Carol")
	require.NoError(t, err)

	result, err := s.Commit(t.Context())
	require.NoError(t, err)
	assert.Empty(t, result.Counts)

	require.NoError(t, s.EditAttribute(1, "Carol"))
	result, err = s.Commit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Carol": 2}, result.Counts)

	snap, err := s.Snapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Database updated:\nCarol: 2 embeddings", snap.Message)
}

func TestCommitSeesObjectsMissingFromCachedList(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	s := f.annotated(t, "clip1.mp4", analysis.FaceMap{
		1: {TrackID: 1, Attribute: "Dave", Embeddings: []recognition.Embedding{emb(1), emb(2)}},
	})

	// cache an empty list, then add the object behind the cache's back
	cached, err := f.known.List(t.Context())
	require.NoError(t, err)
	require.Empty(t, cached)
	require.NoError(t, f.store.AddObject(t.Context(), recognition.NewObjectID(), "Dave"))

	result, err := s.Commit(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Dave": 2}, result.Counts)
}

func TestCommitRequiresAnnotated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.writeClip(t, "clip1.mp4")

	s := NewSession("s", f.deps)
	require.NoError(t, s.SelectClip(t.Context(), "clip1.mp4"))
	_, err := s.Commit(t.Context())
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestDeleteClipResetsSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	s := f.annotated(t, "clip1.mp4", analysis.FaceMap{})
	f.writeClip(t, "other.mp4")

	require.NoError(t, s.DeleteClip(t.Context(), "clip1"))
	assert.Equal(t, StateIdle, s.State())
	assert.NoFileExists(t, filepath.Join(f.storage.Dir(), "clip1.mp4"))
	assert.NoFileExists(t, filepath.Join(f.storage.Dir(), "clip1_annotated.mp4"))
	_, statErr := os.Stat(filepath.Join(f.storage.Dir(), "other.mp4"))
	require.NoError(t, statErr)

	err := s.SelectClip(t.Context(), "clip1.mp4")
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteOtherClipKeepsSelection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	s := f.annotated(t, "clip1.mp4", analysis.FaceMap{})
	f.writeClip(t, "other.mp4")

	require.NoError(t, s.DeleteClip(t.Context(), "other.mp4"))
	assert.Equal(t, StateAnnotated, s.State())
}
