package annotation

import (
	"context"
	"maps"
	"slices"

	"github.com/DeGirum/face-recognition/internal/recognition"
)

// TrackView is a read-only track row.
type TrackView struct {
	ID         int    `json:"id"`
	Attribute  string `json:"attribute"`
	Embeddings int    `json:"embeddings"`
}

// Snapshot is an immutable view of a session.
type Snapshot struct {
	ID            string      `json:"id"`
	State         string      `json:"state"`
	Clip          string      `json:"clip,omitempty"`
	AnnotatedClip string      `json:"annotated_clip,omitempty"`
	Busy          bool        `json:"busy"`
	Tracks        []TrackView `json:"tracks"`
	KnownObjects  []string    `json:"known_objects"`
	LastError     string      `json:"last_error,omitempty"`
	Message       string      `json:"message,omitempty"`
}

// Snapshot returns the current view of the session together with the known
// attributes in sorted order.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	objects, err := s.deps.Known.List(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	known := make([]string, 0, len(objects))
	for _, obj := range recognition.SortedObjects(objects) {
		known = append(known, obj.Attribute)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:           s.id,
		State:        s.state.String(),
		Clip:         s.clip,
		Busy:         s.running != nil,
		Tracks:       make([]TrackView, 0, len(s.tracks)),
		KnownObjects: known,
		Message:      s.message,
	}
	if s.state == StateAnnotated {
		snap.AnnotatedClip = s.deps.Catalog.AnnotatedName(s.clip)
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	for _, id := range slices.Sorted(maps.Keys(s.tracks)) {
		t := s.tracks[id]
		snap.Tracks = append(snap.Tracks, TrackView{ID: t.ID, Attribute: t.Attribute, Embeddings: len(t.Embeddings)})
	}
	return snap, nil
}
