package recognition

import (
	"context"
	"time"

	"github.com/DeGirum/face-recognition/internal/logger"
)

// Source is a store whose embeddings can be read back.
type Source interface {
	ListObjects(ctx context.Context) (map[string]string, error)
	Embeddings(ctx context.Context, id string) ([]Embedding, error)
}

// MigrationStats summarizes a Migrate run.
type MigrationStats struct {
	Objects    int
	Created    int // objects that did not exist in the target
	Embeddings int // newly stored in the target
	Duration   time.Duration
}

// Migrate copies every known object and its embeddings from src into dst.
// Objects are matched by attribute, so an object already present in dst keeps
// its id and receives only embeddings it does not hold yet. Running it twice
// is a no-op.
func Migrate(ctx context.Context, src Source, dst Store, log logger.Logger) (MigrationStats, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Module(componentName)
	start := time.Now()
	var stats MigrationStats

	objects, err := src.ListObjects(ctx)
	if err != nil {
		return stats, err
	}
	targets, err := dst.ListObjects(ctx)
	if err != nil {
		return stats, err
	}

	for _, obj := range SortedObjects(objects) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		embeddings, err := src.Embeddings(ctx, obj.ID)
		if err != nil {
			return stats, err
		}

		id, ok := FindByAttribute(targets, obj.Attribute)
		if !ok {
			id = obj.ID
			if err := dst.AddObject(ctx, id, obj.Attribute); err != nil {
				return stats, err
			}
			targets[id] = obj.Attribute
			stats.Created++
		}

		added, err := dst.AddEmbeddings(ctx, id, embeddings, true)
		if err != nil {
			return stats, err
		}
		stats.Objects++
		stats.Embeddings += added
		log.Debug("object migrated",
			logger.String("attribute", obj.Attribute),
			logger.Int("embeddings", added))
	}

	stats.Duration = time.Since(start)
	log.Info("recognition database migrated",
		logger.Int("objects", stats.Objects),
		logger.Int("created", stats.Created),
		logger.Int("embeddings", stats.Embeddings),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}
