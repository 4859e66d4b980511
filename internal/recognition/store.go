// Package recognition stores known people and their face embeddings.
package recognition

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/DeGirum/face-recognition/internal/errors"
)

const componentName = "recognition"

// Embedding is one face feature vector.
type Embedding []float32

// KnownObject is a person the recognition database can match against.
type KnownObject struct {
	ID        string `json:"id"`
	Attribute string `json:"attribute"`
}

// ObjectCount is the number of embeddings stored for one known object.
type ObjectCount struct {
	ID        string `json:"id"`
	Attribute string `json:"attribute"`
	Count     int    `json:"count"`
}

// Store is the recognition database.
type Store interface {
	// ListObjects returns id -> attribute for every known object.
	ListObjects(ctx context.Context) (map[string]string, error)
	// AddObject creates a known object. The attribute must not already exist.
	AddObject(ctx context.Context, id, attribute string) error
	// AddEmbeddings stores embeddings for an object and returns how many were
	// newly stored. With dedup, vectors already stored for the object are skipped.
	AddEmbeddings(ctx context.Context, id string, embeddings []Embedding, dedup bool) (int, error)
	// CountEmbeddings returns embedding counts keyed by object id.
	CountEmbeddings(ctx context.Context) (map[string]ObjectCount, error)
	// ClearAllTables removes every object and embedding.
	ClearAllTables(ctx context.Context) error
}

// SortedObjects turns a ListObjects result into objects ordered by attribute.
func SortedObjects(objects map[string]string) []KnownObject {
	out := make([]KnownObject, 0, len(objects))
	for id, attr := range objects {
		out = append(out, KnownObject{ID: id, Attribute: attr})
	}
	slices.SortFunc(out, func(a, b KnownObject) int {
		return cmp.Or(cmp.Compare(a.Attribute, b.Attribute), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// SortedCounts orders a CountEmbeddings result by attribute.
func SortedCounts(counts map[string]ObjectCount) []ObjectCount {
	out := make([]ObjectCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b ObjectCount) int {
		return cmp.Or(cmp.Compare(a.Attribute, b.Attribute), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// FindByAttribute returns the id of the object with exactly this attribute.
func FindByAttribute(objects map[string]string, attribute string) (string, bool) {
	for id, attr := range objects {
		if attr == attribute {
			return id, true
		}
	}
	return "", false
}

// NewObjectID returns a fresh known object id.
func NewObjectID() string {
	return uuid.NewString()
}

// AddEmbeddingsForAttribute stores embeddings under the object with the given
// attribute, creating the object first when it does not exist. It returns the
// number of newly stored embeddings and the object id.
func AddEmbeddingsForAttribute(ctx context.Context, store Store, attribute string, embeddings []Embedding) (int, string, error) {
	if attribute == "" {
		return 0, "", errors.Newf("attribute must not be empty").
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}

	objects, err := store.ListObjects(ctx)
	if err != nil {
		return 0, "", err
	}
	id, ok := FindByAttribute(objects, attribute)
	if !ok {
		id = NewObjectID()
		if err := store.AddObject(ctx, id, attribute); err != nil {
			return 0, "", err
		}
	}

	n, err := store.AddEmbeddings(ctx, id, embeddings, true)
	if err != nil {
		return 0, id, err
	}
	return n, id, nil
}
