package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DeGirum/face-recognition/internal/analysis"
	"github.com/DeGirum/face-recognition/internal/annotation"
	"github.com/DeGirum/face-recognition/internal/clips"
	"github.com/DeGirum/face-recognition/internal/recognition"
)

type cannedEngine struct {
	faces analysis.FaceMap
}

func (e cannedEngine) FindFacesInClip(context.Context, string, analysis.Options) (analysis.FaceMap, error) {
	return e.faces, nil
}

type apiFixture struct {
	server   *Server
	storage  *clips.DirStorage
	store    *recognition.GormStore
	sessions *annotation.Manager
	cookie   *http.Cookie
}

func newAPIFixture(t *testing.T, faces analysis.FaceMap) *apiFixture {
	t.Helper()

	storage, err := clips.NewDirStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	catalog := clips.NewCatalog(storage, "_annotated", nil)

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

	sessions := annotation.NewManager(&annotation.Deps{
		Catalog:     catalog,
		Engine:      cannedEngine{faces: faces},
		Known:       annotation.NewKnownObjects(store),
		Timeout:     5 * time.Second,
		BaseContext: t.Context(),
	}, time.Hour)

	return &apiFixture{
		server:   newTestServer(t, WithClips(catalog), WithSessions(sessions)),
		storage:  storage,
		store:    store,
		sessions: sessions,
	}
}

// do sends a JSON request carrying the fixture's session cookie and records
// any cookie the server hands out.
func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if f.cookie != nil {
		req.AddCookie(f.cookie)
	}
	rec := serve(f.server, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == annotation.CookieName {
			f.cookie = c
		}
	}
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *apiFixture) waitAnnotated(t *testing.T) annotation.Snapshot {
	t.Helper()
	var snap annotation.Snapshot
	require.Eventually(t, func() bool {
		snap = decode[annotation.Snapshot](t, f.do(t, http.MethodGet, "/api/v1/session", ""))
		return !snap.Busy
	}, 5*time.Second, 10*time.Millisecond)
	return snap
}

func TestSessionCookieIsIssuedOnce(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.cookie)
	first := decode[annotation.Snapshot](t, rec)
	assert.Equal(t, "idle", first.State)
	assert.Equal(t, f.cookie.Value, first.ID)

	rec = f.do(t, http.MethodGet, "/api/v1/session", "")
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, first.ID, decode[annotation.Snapshot](t, rec).ID)
	assert.Equal(t, 1, f.sessions.Len())
}

func TestListClips(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)
	ctx := t.Context()
	require.NoError(t, f.storage.Write(ctx, "a.mp4", []byte("a")))
	require.NoError(t, f.storage.Write(ctx, "a_annotated.mp4", []byte("a")))
	require.NoError(t, f.storage.Write(ctx, "b.mp4", []byte("b")))

	rec := f.do(t, http.MethodGet, "/api/v1/clips", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rows := decode[[]ClipRow](t, rec)
	require.Len(t, rows, 2)
	byName := map[string]ClipRow{}
	for _, r := range rows {
		_, err := time.ParseInLocation(time.DateTime, r.Created, time.Local)
		require.NoError(t, err)
		byName[r.FileName] = r
	}
	assert.True(t, byName["a.mp4"].Annotated)
	assert.False(t, byName["b.mp4"].Annotated)
}

func TestAnnotationFlow(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, analysis.FaceMap{
		1: {TrackID: 1, Embeddings: []recognition.Embedding{{1, 2}, {3, 4}}},
		2: {TrackID: 2, Embeddings: []recognition.Embedding{{5, 6}}},
	})
	require.NoError(t, f.storage.Write(t.Context(), "door.mp4", []byte("video")))

	rec := f.do(t, http.MethodPost, "/api/v1/objects", `{"attribute":"Alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	alice := decode[recognition.KnownObject](t, rec)
	assert.Equal(t, "Alice", alice.Attribute)

	rec = f.do(t, http.MethodPost, "/api/v1/objects", `{"attribute":"Alice"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/session/annotate", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "annotate before a clip is selected")

	rec = f.do(t, http.MethodPost, "/api/v1/session/clip", `{"name":"door.mp4"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "clip_selected", decode[annotation.Snapshot](t, rec).State)

	rec = f.do(t, http.MethodPost, "/api/v1/session/annotate", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	snap := f.waitAnnotated(t)
	require.Equal(t, "annotated", snap.State, snap.LastError)
	require.Len(t, snap.Tracks, 2)

	rec = f.do(t, http.MethodPut, "/api/v1/session/tracks/1", `{"attribute":"Alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPut, "/api/v1/session/tracks/99", `{"attribute":"Alice"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodPut, "/api/v1/session/tracks/x", `{"attribute":"Alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/session/commit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[annotation.CommitResult](t, rec)
	assert.Equal(t, map[string]int{"Alice": 2}, result.Counts)
	assert.Equal(t, []string{"Alice: 2 embeddings"}, result.Lines)

	rec = f.do(t, http.MethodGet, "/api/v1/db/info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	counts := decode[[]recognition.ObjectCount](t, rec)
	require.Len(t, counts, 1)
	assert.Equal(t, 2, counts[0].Count)

	// committing again stores nothing new
	rec = f.do(t, http.MethodPost, "/api/v1/session/commit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[annotation.CommitResult](t, rec).Counts["Alice"])
}

func TestSelectUnknownClip(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/session/clip", `{"name":"missing.mp4"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Len(t, resp.CorrelationID, 8)
}

func TestDeleteSelectedClipResetsSession(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)
	require.NoError(t, f.storage.Write(t.Context(), "gone.mp4", []byte("v")))

	rec := f.do(t, http.MethodPost, "/api/v1/session/clip", `{"name":"gone.mp4"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/clips/gone", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", decode[annotation.Snapshot](t, rec).State)

	rows := decode[[]ClipRow](t, f.do(t, http.MethodGet, "/api/v1/clips", ""))
	assert.Empty(t, rows)

	// removing an unknown stem is a no-op
	rec = f.do(t, http.MethodDelete, "/api/v1/clips/gone", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteDottedStem(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)
	ctx := t.Context()
	require.NoError(t, f.storage.Write(ctx, "cam1.2025-05-01.mp4", []byte("v")))
	require.NoError(t, f.storage.Write(ctx, "cam1.2025-05-01_annotated.mp4", []byte("v")))

	rec := f.do(t, http.MethodPost, "/api/v1/session/clip", `{"name":"cam1.2025-05-01.mp4"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/clips/cam1.2025-05-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[annotation.Snapshot](t, rec)
	assert.Equal(t, "idle", snap.State)
	assert.Equal(t, "Deleted cam1.2025-05-01", snap.Message)

	rows := decode[[]ClipRow](t, f.do(t, http.MethodGet, "/api/v1/clips", ""))
	assert.Empty(t, rows)
}

func TestListObjectsSorted(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)
	for _, name := range []string{"Carol", "alice", "Bob"} {
		require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/objects", `{"attribute":"`+name+`"}`).Code)
	}

	objects := decode[[]recognition.KnownObject](t, f.do(t, http.MethodGet, "/api/v1/objects", ""))
	names := make([]string, 0, len(objects))
	for _, o := range objects {
		names = append(names, o.Attribute)
	}
	assert.IsIncreasing(t, names)
	assert.Len(t, names, 3)
}
