// Package checkpoint persists the in-progress catalog so an interrupted run
// can be resumed without scraping finished links again.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aluiziolira/go-scrape-prices/config"
	"github.com/aluiziolira/go-scrape-prices/models"
)

// Store keeps a single snapshot of the catalog.
type Store interface {
	// Save overwrites the snapshot with catalog.
	Save(catalog *models.Catalog) error
	// Load returns the snapshot, or false if there is none or it cannot be read.
	Load() (*models.Catalog, bool)
	// Clear removes the snapshot. A missing snapshot is not an error.
	Clear() error
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(cfg config.Storage, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.Checkpoint, logger), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Checkpoint, logger)
	default:
		return nil, fmt.Errorf("unsupported checkpoint driver: %s", cfg.Driver)
	}
}

// decodeSnapshot accepts the catalog document as well as a bare array of
// products, the layout older checkpoints were written in.
func decodeSnapshot(data []byte) (*models.Catalog, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty snapshot")
	}

	if trimmed[0] == '[' {
		wrapped := make([]byte, 0, len(trimmed)+16)
		wrapped = append(wrapped, `{"products":`...)
		wrapped = append(wrapped, trimmed...)
		wrapped = append(wrapped, '}')
		trimmed = wrapped
	}

	var catalog models.Catalog
	if err := json.Unmarshal(trimmed, &catalog); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &catalog, nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
