package annotation

import (
	"context"
	"maps"
	"strings"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/recognition"
)

const (
	knownObjectsKey = "known_objects"
	knownObjectsTTL = 30 * time.Second
)

// KnownObjects fronts the recognition store with a short-lived cache of the
// known object list, which every session snapshot renders.
type KnownObjects struct {
	store recognition.Store
	cache *cache.Cache
	group singleflight.Group

	// version changes on every invalidation; a load that started before it
	// changed must not repopulate the cache.
	version atomic.Uint64
}

// NewKnownObjects creates a cached view of store.
func NewKnownObjects(store recognition.Store) *KnownObjects {
	return &KnownObjects{
		store: store,
		cache: cache.New(knownObjectsTTL, 2*knownObjectsTTL),
	}
}

// Store returns the underlying recognition store.
func (k *KnownObjects) Store() recognition.Store {
	return k.store
}

// List returns id -> attribute for every known object, possibly from cache.
func (k *KnownObjects) List(ctx context.Context) (map[string]string, error) {
	if v, ok := k.cache.Get(knownObjectsKey); ok {
		return maps.Clone(v.(map[string]string)), nil
	}
	return k.Refresh(ctx)
}

// Refresh reloads the list from the store.
func (k *KnownObjects) Refresh(ctx context.Context) (map[string]string, error) {
	v, err, _ := k.group.Do(knownObjectsKey, func() (any, error) {
		version := k.version.Load()
		objects, err := k.store.ListObjects(ctx)
		if err != nil {
			return nil, err
		}
		if k.version.Load() == version {
			k.cache.SetDefault(knownObjectsKey, objects)
		}
		return objects, nil
	})
	if err != nil {
		return nil, err
	}
	return maps.Clone(v.(map[string]string)), nil
}

// Invalidate drops the cached list. Loads already in flight are not cached and
// later callers start a fresh one.
func (k *KnownObjects) Invalidate() {
	k.version.Add(1)
	k.group.Forget(knownObjectsKey)
	k.cache.Delete(knownObjectsKey)
}

// Add creates a known object for attribute. The attribute is trimmed; an empty
// attribute or one that already exists is rejected.
func (k *KnownObjects) Add(ctx context.Context, attribute string) (recognition.KnownObject, error) {
	attribute = strings.TrimSpace(attribute)
	if attribute == "" {
		return recognition.KnownObject{}, errors.Newf("attribute must not be empty").
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}

	objects, err := k.Refresh(ctx)
	if err != nil {
		return recognition.KnownObject{}, err
	}
	if _, exists := recognition.FindByAttribute(objects, attribute); exists {
		return recognition.KnownObject{}, duplicateError(attribute)
	}

	obj := recognition.KnownObject{ID: recognition.NewObjectID(), Attribute: attribute}
	err = k.store.AddObject(ctx, obj.ID, obj.Attribute)
	k.Invalidate()
	if err != nil {
		return recognition.KnownObject{}, err
	}
	return obj, nil
}

// Clear removes every object and embedding.
func (k *KnownObjects) Clear(ctx context.Context) error {
	defer k.Invalidate()
	return k.store.ClearAllTables(ctx)
}

func duplicateError(attribute string) error {
	return errors.Newf("%s already exists", attribute).
		Component(componentName).
		Category(errors.CategoryDuplicate).
		Context("attribute", attribute).
		Build()
}
