package clips

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeGirum/face-recognition/internal/errors"
)

func newTestCatalog(t *testing.T) (*Catalog, *DirStorage) {
	t.Helper()
	storage, err := NewDirStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return NewCatalog(storage, "_annotated", nil), storage
}

func writeClip(t *testing.T, s *DirStorage, name string, modTime time.Time) {
	t.Helper()
	path := filepath.Join(s.Dir(), name)
	require.NoError(t, os.WriteFile(path, []byte("data-"+name), 0o600))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

type failingStorage struct{}

func (failingStorage) List(context.Context) ([]Object, error) {
	return nil, fmt.Errorf("bucket offline")
}
func (failingStorage) Fetch(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("bucket offline")
}
func (failingStorage) Delete(context.Context, string) error { return fmt.Errorf("bucket offline") }

func TestStemAndAnnotatedName(t *testing.T) {
	c := NewCatalog(failingStorage{}, "_annotated", nil)

	stem, annotated := c.Stem("cam1_2025.mp4")
	assert.Equal(t, "cam1_2025", stem)
	assert.False(t, annotated)

	stem, annotated = c.Stem("cam1_2025_annotated.mp4")
	assert.Equal(t, "cam1_2025", stem)
	assert.True(t, annotated)

	stem, annotated = c.Stem("_annotated.mp4")
	assert.Equal(t, "_annotated", stem)
	assert.False(t, annotated)

	assert.Equal(t, "cam1_2025_annotated.mp4", c.AnnotatedName("cam1_2025.mp4"))

	stem, annotated = c.Stem("cam1.2025-05-01_annotated.mp4")
	assert.Equal(t, "cam1.2025-05-01", stem)
	assert.True(t, annotated)
}

func TestResolveStemKeepsDots(t *testing.T) {
	c := NewCatalog(failingStorage{}, "_annotated", nil)

	tests := []struct {
		input string
		want  string
	}{
		{input: "cam1", want: "cam1"},
		{input: "cam1.2025-05-01", want: "cam1.2025-05-01"},
		{input: "cam1.2025-05-01.mp4", want: "cam1.2025-05-01"},
		{input: "cam1.2025-05-01_annotated.MP4", want: "cam1.2025-05-01"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.ResolveStem(tt.input), tt.input)
	}
}

func TestListGroupsVariantsNewestFirst(t *testing.T) {
	c, s := newTestCatalog(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	writeClip(t, s, "old.mp4", base)
	writeClip(t, s, "new.mp4", base.Add(time.Hour))
	writeClip(t, s, "new_annotated.mp4", base.Add(2*time.Hour))
	writeClip(t, s, "orphan_annotated.mp4", base.Add(3*time.Hour))
	writeClip(t, s, "notes.txt", base)
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "sub.mp4"), 0o750))

	list, err := c.List(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "new", list[0].Stem)
	require.NotNil(t, list[0].Original)
	require.NotNil(t, list[0].Annotated)
	assert.Equal(t, "new_annotated.mp4", list[0].Annotated.Name)
	assert.True(t, list[0].CreatedAt().Equal(base.Add(time.Hour)))

	assert.Equal(t, "old", list[1].Stem)
	assert.Nil(t, list[1].Annotated)

	assert.Equal(t, "orphan", list[2].Stem)
	assert.Nil(t, list[2].Original)
}

func TestOriginalAndLookup(t *testing.T) {
	c, s := newTestCatalog(t)
	writeClip(t, s, "a.mp4", time.Now())
	writeClip(t, s, "b_annotated.mp4", time.Now())

	obj, err := c.Original(t.Context(), "a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "a.mp4", obj.Name)

	obj, err = c.Original(t.Context(), "a")
	require.NoError(t, err)
	assert.Equal(t, int64(len("data-a.mp4")), obj.Size)

	_, err = c.Original(t.Context(), "b")
	assert.ErrorIs(t, err, ErrClipNotFound)

	_, err = c.Lookup(t.Context(), "b_annotated.mp4")
	require.NoError(t, err)

	_, err = c.Lookup(t.Context(), "missing.mp4")
	assert.True(t, errors.IsNotFound(err))
}

func TestRemoveDeletesBothVariants(t *testing.T) {
	c, s := newTestCatalog(t)
	writeClip(t, s, "event.mp4", time.Now())
	writeClip(t, s, "event_annotated.mp4", time.Now())
	writeClip(t, s, "other.mp4", time.Now())

	var invalidated []string
	c.OnInvalidate(func(names ...string) { invalidated = append(invalidated, names...) })

	require.NoError(t, c.Remove(t.Context(), "event"))
	assert.ElementsMatch(t, []string{"event.mp4", "event_annotated.mp4"}, invalidated)

	list, err := c.List(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "other", list[0].Stem)

	// unknown stems are a no-op
	require.NoError(t, c.Remove(t.Context(), "event"))
}

func TestRemoveDottedStem(t *testing.T) {
	c, s := newTestCatalog(t)
	writeClip(t, s, "cam1.2025-05-01.mp4", time.Now())
	writeClip(t, s, "cam1.2025-05-01_annotated.mp4", time.Now())

	list, err := c.List(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 1)
	stem := list[0].Stem
	assert.Equal(t, "cam1.2025-05-01", stem)

	obj, err := c.Original(t.Context(), stem)
	require.NoError(t, err)
	assert.Equal(t, "cam1.2025-05-01.mp4", obj.Name)

	require.NoError(t, c.Remove(t.Context(), stem))
	assert.NoFileExists(t, filepath.Join(s.Dir(), "cam1.2025-05-01.mp4"))
	assert.NoFileExists(t, filepath.Join(s.Dir(), "cam1.2025-05-01_annotated.mp4"))

	list, err = c.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStorageFailuresAreUpstream(t *testing.T) {
	c := NewCatalog(failingStorage{}, "_annotated", nil)

	_, err := c.List(t.Context())
	assert.True(t, errors.IsCategory(err, errors.CategoryUpstream))

	_, err = c.Fetch(t.Context(), "a.mp4")
	assert.True(t, errors.IsCategory(err, errors.CategoryUpstream))
}

func TestDirStorageRejectsTraversal(t *testing.T) {
	_, s := newTestCatalog(t)

	_, err := s.Fetch(t.Context(), "../etc/passwd")
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsNotFound(s.Delete(t.Context(), "../x.mp4")))

	require.NoError(t, s.Write(t.Context(), "w.mp4", []byte("abc")))
	data, err := s.Fetch(t.Context(), "w.mp4")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
}
