// Package analysis runs face detection, tracking and recognition over stored clips.
package analysis

import (
	"context"
	"maps"
	"slices"

	"github.com/DeGirum/face-recognition/internal/recognition"
)

const componentName = "analysis"

// Face is one tracked face found in a clip.
type Face struct {
	TrackID int `json:"track_id"`
	// Attribute is the recognized person, empty when unrecognized.
	Attribute  string                  `json:"attribute"`
	Embeddings []recognition.Embedding `json:"embeddings"`
}

// FaceMap holds the faces of a clip keyed by track id.
type FaceMap map[int]Face

// TrackIDs returns the track ids in ascending order.
func (m FaceMap) TrackIDs() []int {
	return slices.Sorted(maps.Keys(m))
}

// Options tune a single analysis run.
type Options struct {
	// SaveAnnotated asks the engine to write the annotated variant of the clip.
	SaveAnnotated bool
}

// Engine finds and tracks faces in a stored clip.
type Engine interface {
	FindFacesInClip(ctx context.Context, name string, opts Options) (FaceMap, error)
}
