package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aluiziolira/go-scrape-prices/models"
)

// FileStore keeps the snapshot as a JSON document at a fixed path.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Path returns the snapshot location.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes catalog to a temporary file next to the snapshot and renames
// it into place, so readers never observe a half-written snapshot.
func (s *FileStore) Save(catalog *models.Catalog) error {
	data, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := ensureDir(s.path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Load reads the snapshot. Unreadable or corrupt content is logged and
// reported as absent.
func (s *FileStore) Load() (*models.Catalog, bool) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false
	}
	if err != nil {
		s.logger.Error("error reading checkpoint", slog.String("path", s.path), slog.Any("error", err))
		return nil, false
	}

	catalog, err := decodeSnapshot(data)
	if err != nil {
		s.logger.Warn("ignoring corrupt checkpoint", slog.String("path", s.path), slog.Any("error", err))
		return nil, false
	}
	return catalog, true
}

// Clear removes the snapshot file.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// Close is a no-op; every Save is self-contained.
func (s *FileStore) Close() error {
	return nil
}
