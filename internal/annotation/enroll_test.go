package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeGirum/face-recognition/internal/analysis"
	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/recognition"
)

func TestEnrollSingleFace(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.writeClip(t, "alice.mp4")
	f.engine.set(analysis.FaceMap{
		3: {TrackID: 3, Embeddings: []recognition.Embedding{emb(1, 0), emb(0, 1)}},
	}, nil)

	res, err := Enroll(t.Context(), f.catalog, f.engine, f.store, "alice", "Alice")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.NotEmpty(t, res.ObjectID)

	// no annotated variant is written
	clip, err := f.catalog.Get(t.Context(), "alice")
	require.NoError(t, err)
	assert.Nil(t, clip.Annotated)

	// enrolling again appends only new vectors to the same object
	again, err := Enroll(t.Context(), f.catalog, f.engine, f.store, "alice.mp4", "Alice")
	require.NoError(t, err)
	assert.Equal(t, res.ObjectID, again.ObjectID)
	assert.Zero(t, again.Added)
}

func TestEnrollRequiresExactlyOneFace(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.writeClip(t, "group.mp4")

	for _, faces := range []analysis.FaceMap{
		{},
		{1: {TrackID: 1}, 2: {TrackID: 2}},
	} {
		f.engine.set(faces, nil)
		_, err := Enroll(t.Context(), f.catalog, f.engine, f.store, "group.mp4", "Bob")
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	}

	objects, err := f.store.ListObjects(t.Context())
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestEnrollUnknownClip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := Enroll(t.Context(), f.catalog, f.engine, f.store, "nope.mp4", "Bob")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Zero(t, f.engine.calls.Load())
}
