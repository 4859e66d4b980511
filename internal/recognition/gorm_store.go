package recognition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/DeGirum/face-recognition/internal/conf"
	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/logger"
)

const (
	driverSQLite = "sqlite"
	driverMySQL  = "mysql"

	slowQueryThreshold = 200 * time.Millisecond
)

// GormStore is the SQL implementation of Store. Every mutation runs under one
// mutex; a lock file next to a SQLite database keeps other processes out.
type GormStore struct {
	db   *gorm.DB
	lock *lockFile
	log  logger.Logger

	mu sync.Mutex
}

// Open connects to the configured database and migrates the schema.
func Open(settings conf.RecognitionSettings, log logger.Logger) (*GormStore, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Module(componentName)

	var (
		dialector gorm.Dialector
		lock      *lockFile
	)
	switch settings.Driver {
	case driverSQLite, "":
		path := settings.Path
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return nil, dbError(err, "create_data_dir")
			}
			var err error
			if lock, err = acquireLock(path + ".lock"); err != nil {
				return nil, err
			}
		}
		dialector = sqlite.Open(path)
	case driverMySQL:
		dialector = mysql.Open(settings.DSN)
	default:
		return nil, errors.Newf("unsupported recognition database driver %q", settings.Driver).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log.Module("sql"), slowQueryThreshold),
	})
	if err != nil {
		lock.release()
		return nil, dbError(err, "open")
	}

	store, err := newGormStore(db, log)
	if err != nil {
		lock.release()
		return nil, err
	}
	store.lock = lock

	log.Info("recognition database opened", logger.String("driver", dialector.Name()))
	return store, nil
}

// NewGormStore wraps an open connection and migrates the schema.
func NewGormStore(db *gorm.DB, log logger.Logger) (*GormStore, error) {
	if log == nil {
		log = logger.NewNop()
	}
	return newGormStore(db, log.Module(componentName))
}

func newGormStore(db *gorm.DB, log logger.Logger) (*GormStore, error) {
	if err := db.AutoMigrate(&KnownObjectEntity{}, &EmbeddingEntity{}); err != nil {
		return nil, dbError(err, "auto_migrate")
	}
	return &GormStore{db: db, log: log}, nil
}

// Close releases the connection and the lock file.
func (s *GormStore) Close() error {
	defer s.lock.release()

	sqlDB, err := s.db.DB()
	if err != nil {
		return dbError(err, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}

// ListObjects implements Store.
func (s *GormStore) ListObjects(ctx context.Context) (map[string]string, error) {
	var rows []KnownObjectEntity
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, dbError(err, "list_objects")
	}
	objects := make(map[string]string, len(rows))
	for _, r := range rows {
		objects[r.ID] = r.Attribute
	}
	return objects, nil
}

// AddObject implements Store.
func (s *GormStore) AddObject(ctx context.Context, id, attribute string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing []KnownObjectEntity
	if err := s.db.WithContext(ctx).Where("attribute = ?", attribute).Find(&existing).Error; err != nil {
		return dbError(err, "add_object")
	}
	for _, e := range existing {
		// case-sensitive comparison regardless of collation
		if e.Attribute == attribute {
			return errors.Newf("known object %q already exists", attribute).
				Component(componentName).
				Category(errors.CategoryDuplicate).
				Context("attribute", attribute).
				Build()
		}
	}

	if err := s.db.WithContext(ctx).Create(&KnownObjectEntity{ID: id, Attribute: attribute}).Error; err != nil {
		return dbError(err, "add_object")
	}
	s.log.Info("known object added", logger.String("id", id), logger.String("attribute", attribute))
	return nil
}

// AddEmbeddings implements Store.
func (s *GormStore) AddEmbeddings(ctx context.Context, id string, embeddings []Embedding, dedup bool) (int, error) {
	if len(embeddings) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var added int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&KnownObjectEntity{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errors.Newf("known object %s not found", id).
				Component(componentName).
				Category(errors.CategoryNotFound).
				Context("object_id", id).
				Build()
		}

		seen := make(map[string]bool)
		if dedup {
			var hashes []string
			if err := tx.Model(&EmbeddingEntity{}).Where("object_id = ?", id).Pluck("hash", &hashes).Error; err != nil {
				return err
			}
			for _, h := range hashes {
				seen[h] = true
			}
		}

		rows := make([]EmbeddingEntity, 0, len(embeddings))
		for _, e := range embeddings {
			packed := encodeEmbedding(e)
			hash := hashEmbedding(packed)
			if dedup && seen[hash] {
				continue
			}
			seen[hash] = true
			rows = append(rows, EmbeddingEntity{ObjectID: id, Hash: hash, Dim: len(e), Vector: packed})
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return err
		}
		added = len(rows)
		return nil
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return 0, err
		}
		return 0, dbError(err, "add_embeddings")
	}

	s.log.Debug("embeddings added",
		logger.String("object_id", id),
		logger.Int("requested", len(embeddings)),
		logger.Int("added", added))
	return added, nil
}

// Embeddings returns the stored vectors of one object.
func (s *GormStore) Embeddings(ctx context.Context, id string) ([]Embedding, error) {
	var rows []EmbeddingEntity
	if err := s.db.WithContext(ctx).Where("object_id = ?", id).Order("id").Find(&rows).Error; err != nil {
		return nil, dbError(err, "get_embeddings")
	}
	out := make([]Embedding, 0, len(rows))
	for _, r := range rows {
		e, err := decodeEmbedding(r.Vector)
		if err != nil {
			return nil, dbError(err, "decode_embedding")
		}
		out = append(out, e)
	}
	return out, nil
}

// CountEmbeddings implements Store. Objects without embeddings are included with a zero count.
func (s *GormStore) CountEmbeddings(ctx context.Context) (map[string]ObjectCount, error) {
	objects, err := s.ListObjects(ctx)
	if err != nil {
		return nil, err
	}

	var grouped []struct {
		ObjectID string
		Total    int
	}
	if err := s.db.WithContext(ctx).Model(&EmbeddingEntity{}).
		Select("object_id, COUNT(*) AS total").
		Group("object_id").
		Scan(&grouped).Error; err != nil {
		return nil, dbError(err, "count_embeddings")
	}

	counts := make(map[string]ObjectCount, len(objects))
	for id, attr := range objects {
		counts[id] = ObjectCount{ID: id, Attribute: attr}
	}
	for _, g := range grouped {
		c := counts[g.ObjectID]
		c.ID = g.ObjectID
		c.Count = g.Total
		counts[g.ObjectID] = c
	}
	return counts, nil
}

// ClearAllTables implements Store.
func (s *GormStore) ClearAllTables(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&EmbeddingEntity{}).Error; err != nil {
			return err
		}
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&KnownObjectEntity{}).Error
	})
	if err != nil {
		return dbError(err, "clear_all_tables")
	}
	s.log.Warn("recognition database cleared")
	return nil
}

func dbError(err error, operation string) error {
	return errors.New(fmt.Errorf("recognition database: %w", err)).
		Component(componentName).
		Category(errors.CategoryUpstream).
		Context("operation", operation).
		Build()
}
