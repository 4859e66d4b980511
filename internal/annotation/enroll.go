package annotation

import (
	"context"

	"github.com/DeGirum/face-recognition/internal/analysis"
	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/recognition"
)

// EnrollResult reports what Enroll stored.
type EnrollResult struct {
	ObjectID string
	Added    int
}

// Enroll analyses a clip that shows exactly one person and stores the face's
// embeddings under attribute, creating the known object when needed. No
// annotated variant is written.
func Enroll(ctx context.Context, catalog ClipCatalog, engine analysis.Engine, store recognition.Store, clip, attribute string) (EnrollResult, error) {
	obj, err := catalog.Original(ctx, clip)
	if err != nil {
		return EnrollResult{}, err
	}

	faces, err := engine.FindFacesInClip(ctx, obj.Name, analysis.Options{SaveAnnotated: false})
	if err != nil {
		return EnrollResult{}, err
	}
	if len(faces) != 1 {
		return EnrollResult{}, errors.Newf("expected exactly one face in %s, found %d", obj.Name, len(faces)).
			Component(componentName).
			Category(errors.CategoryValidation).
			Context("clip", obj.Name).
			Context("faces", len(faces)).
			Build()
	}

	var face analysis.Face
	for _, f := range faces {
		face = f
	}
	added, id, err := recognition.AddEmbeddingsForAttribute(ctx, store, attribute, face.Embeddings)
	if err != nil {
		return EnrollResult{}, err
	}
	return EnrollResult{ObjectID: id, Added: added}, nil
}
