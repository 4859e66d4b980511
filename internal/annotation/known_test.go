package annotation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeGirum/face-recognition/internal/recognition"
)

// slowListStore returns ListObjects results only after release is closed,
// so a load can be held in flight across an invalidation.
type slowListStore struct {
	recognition.Store
	loaded  chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowListStore) ListObjects(ctx context.Context) (map[string]string, error) {
	objects, err := s.Store.ListObjects(ctx)
	gated := false
	s.once.Do(func() { gated = true })
	if gated {
		close(s.loaded)
		<-s.release
	}
	return objects, err
}

func TestInvalidateDiscardsInFlightLoad(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	store := &slowListStore{
		Store:   f.store,
		loaded:  make(chan struct{}),
		release: make(chan struct{}),
	}
	known := NewKnownObjects(store)

	stale := make(chan map[string]string, 1)
	go func() {
		objects, err := known.Refresh(t.Context())
		assert.NoError(t, err)
		stale <- objects
	}()
	<-store.loaded

	require.NoError(t, f.store.AddObject(t.Context(), recognition.NewObjectID(), "Erin"))
	known.Invalidate()
	close(store.release)
	assert.Empty(t, <-stale)

	objects, err := known.List(t.Context())
	require.NoError(t, err)
	_, ok := recognition.FindByAttribute(objects, "Erin")
	assert.True(t, ok, "stale load repopulated the cache")
}

func TestAddIsVisibleToList(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.known.List(t.Context())
	require.NoError(t, err)

	obj, err := f.known.Add(t.Context(), "  Frank ")
	require.NoError(t, err)
	assert.Equal(t, "Frank", obj.Attribute)

	objects, err := f.known.List(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Frank", objects[obj.ID])

	_, err = f.known.Add(t.Context(), "Frank")
	require.Error(t, err)
}
