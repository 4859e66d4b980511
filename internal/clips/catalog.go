// Package clips groups stored clip objects into originals and their annotated variants.
package clips

import (
	"cmp"
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/logger"
)

const componentName = "clips"

// ErrClipNotFound matches any not-found error from this package.
var ErrClipNotFound = errors.Newf("clip not found").
	Component(componentName).
	Category(errors.CategoryNotFound).
	Build()

// Object is one stored file.
type Object struct {
	Name         string
	LastModified time.Time
	Size         int64
}

// Clip is an original capture and, when present, its annotated variant.
type Clip struct {
	Stem      string
	Original  *Object
	Annotated *Object
}

// CreatedAt is the original's modification time, or the annotated one's when
// the original is gone.
func (c Clip) CreatedAt() time.Time {
	switch {
	case c.Original != nil:
		return c.Original.LastModified
	case c.Annotated != nil:
		return c.Annotated.LastModified
	default:
		return time.Time{}
	}
}

// Storage is the clip object store.
type Storage interface {
	List(ctx context.Context) ([]Object, error)
	Fetch(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}

// Catalog resolves clip names against a Storage.
type Catalog struct {
	storage Storage
	suffix  string
	log     logger.Logger

	mu        sync.RWMutex
	listeners []func(names ...string)
}

// NewCatalog creates a catalog; suffix marks annotated variants (stem+suffix+ext).
func NewCatalog(storage Storage, suffix string, log logger.Logger) *Catalog {
	if log == nil {
		log = logger.NewNop()
	}
	return &Catalog{
		storage: storage,
		suffix:  suffix,
		log:     log.Module(componentName),
	}
}

// OnInvalidate registers fn to be called with object names whose content changed or vanished.
func (c *Catalog) OnInvalidate(fn func(names ...string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Invalidate notifies listeners that the given objects changed.
func (c *Catalog) Invalidate(names ...string) {
	c.mu.RLock()
	listeners := slices.Clone(c.listeners)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(names...)
	}
}

// Stem returns the clip stem of an object name and whether it is the annotated
// variant. Only video extensions are stripped, so dots inside a stem survive.
func (c *Catalog) Stem(name string) (stem string, annotated bool) {
	base := name
	if isVideo(name) {
		base = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if c.suffix != "" && strings.HasSuffix(base, c.suffix) && len(base) > len(c.suffix) {
		return strings.TrimSuffix(base, c.suffix), true
	}
	return base, false
}

// AnnotatedName returns the annotated variant name for an original object name.
func (c *Catalog) AnnotatedName(original string) string {
	ext := filepath.Ext(original)
	return strings.TrimSuffix(original, ext) + c.suffix + ext
}

// List returns all clips, most recently created first.
func (c *Catalog) List(ctx context.Context) ([]Clip, error) {
	objects, err := c.storage.List(ctx)
	if err != nil {
		return nil, upstreamError(err, "list_clips")
	}

	byStem := make(map[string]*Clip)
	for i := range objects {
		obj := objects[i]
		stem, annotated := c.Stem(obj.Name)
		clip, ok := byStem[stem]
		if !ok {
			clip = &Clip{Stem: stem}
			byStem[stem] = clip
		}
		if annotated {
			clip.Annotated = &obj
		} else {
			clip.Original = &obj
		}
	}

	result := make([]Clip, 0, len(byStem))
	for _, clip := range byStem {
		result = append(result, *clip)
	}
	slices.SortFunc(result, func(a, b Clip) int {
		// originals first, then newest first, then by stem for a stable order
		if (a.Original == nil) != (b.Original == nil) {
			if a.Original == nil {
				return 1
			}
			return -1
		}
		if n := b.CreatedAt().Compare(a.CreatedAt()); n != 0 {
			return n
		}
		return cmp.Compare(a.Stem, b.Stem)
	})
	return result, nil
}

// ResolveStem returns the stem addressed by a stem or by one of its object
// names. A bare stem is returned unchanged.
func (c *Catalog) ResolveStem(stemOrName string) string {
	if !isVideo(stemOrName) {
		return stemOrName
	}
	stem, _ := c.Stem(stemOrName)
	return stem
}

// Get returns the clip for a stem or for any of its object names.
func (c *Catalog) Get(ctx context.Context, stemOrName string) (Clip, error) {
	stem := c.ResolveStem(stemOrName)

	clips, err := c.List(ctx)
	if err != nil {
		return Clip{}, err
	}
	for _, clip := range clips {
		if clip.Stem == stem {
			return clip, nil
		}
	}
	return Clip{}, notFound(stemOrName)
}

// Original resolves the original variant of a clip.
func (c *Catalog) Original(ctx context.Context, stemOrName string) (Object, error) {
	clip, err := c.Get(ctx, stemOrName)
	if err != nil {
		return Object{}, err
	}
	if clip.Original == nil {
		return Object{}, notFound(stemOrName)
	}
	return *clip.Original, nil
}

// Lookup resolves an exact object name.
func (c *Catalog) Lookup(ctx context.Context, name string) (Object, error) {
	objects, err := c.storage.List(ctx)
	if err != nil {
		return Object{}, upstreamError(err, "lookup_clip")
	}
	for _, obj := range objects {
		if obj.Name == name {
			return obj, nil
		}
	}
	return Object{}, notFound(name)
}

// Fetch returns the content of an object.
func (c *Catalog) Fetch(ctx context.Context, name string) ([]byte, error) {
	data, err := c.storage.Fetch(ctx, name)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, err
		}
		return nil, upstreamError(err, "fetch_clip")
	}
	return data, nil
}

// Remove deletes every variant of a stem. Removing an unknown stem is a no-op.
func (c *Catalog) Remove(ctx context.Context, stemOrName string) error {
	clip, err := c.Get(ctx, stemOrName)
	if errors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var removed []string
	for _, obj := range []*Object{clip.Original, clip.Annotated} {
		if obj == nil {
			continue
		}
		if err := c.storage.Delete(ctx, obj.Name); err != nil && !errors.IsNotFound(err) {
			c.Invalidate(removed...)
			return upstreamError(err, "delete_clip")
		}
		removed = append(removed, obj.Name)
	}

	c.log.Info("clip removed",
		logger.String("stem", clip.Stem),
		logger.Int("objects", len(removed)))
	c.Invalidate(removed...)
	return nil
}

func notFound(name string) error {
	return errors.Newf("clip %q not found", name).
		Component(componentName).
		Category(errors.CategoryNotFound).
		Context("clip", name).
		Build()
}

func upstreamError(err error, operation string) error {
	return errors.New(fmt.Errorf("clip storage: %w", err)).
		Component(componentName).
		Category(errors.CategoryUpstream).
		Context("operation", operation).
		Build()
}
