package clips

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/DeGirum/face-recognition/internal/errors"
)

// videoExtensions lists the file types recognised as clips.
var videoExtensions = []string{".mp4", ".mkv", ".mov", ".avi", ".webm"}

// DirStorage stores clips as files in one directory, sandboxed with os.Root.
type DirStorage struct {
	dir  string
	root *os.Root
}

// NewDirStorage opens (creating if needed) the clip directory.
func NewDirStorage(dir string) (*DirStorage, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve clip directory: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o750); err != nil {
		return nil, errors.New(fmt.Errorf("failed to create clip directory: %w", err)).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Build()
	}
	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open clip directory: %w", err)).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Build()
	}
	return &DirStorage{dir: absPath, root: root}, nil
}

// Dir returns the absolute clip directory.
func (s *DirStorage) Dir() string {
	return s.dir
}

// Close releases the directory handle.
func (s *DirStorage) Close() error {
	return s.root.Close()
}

// List returns every video file in the directory.
func (s *DirStorage) List(ctx context.Context) ([]Object, error) {
	entries, err := fs.ReadDir(s.root.FS(), ".")
	if err != nil {
		return nil, err
	}

	objects := make([]Object, 0, len(entries))
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !entry.Type().IsRegular() || !isVideo(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		objects = append(objects, Object{
			Name:         entry.Name(),
			LastModified: info.ModTime(),
			Size:         info.Size(),
		})
	}
	return objects, nil
}

// Fetch reads a whole clip.
func (s *DirStorage) Fetch(_ context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	f, err := s.root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(name)
		}
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Write stores a clip, replacing any existing object with the same name.
func (s *DirStorage) Write(_ context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	return s.root.WriteFile(name, data, 0o640)
}

// Delete removes a clip.
func (s *DirStorage) Delete(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := s.root.Remove(name); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(name)
		}
		return err
	}
	return nil
}

func isVideo(name string) bool {
	return slices.Contains(videoExtensions, strings.ToLower(filepath.Ext(name)))
}

func validateName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return notFound(name)
	}
	return nil
}
