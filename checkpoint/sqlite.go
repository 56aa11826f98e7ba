package checkpoint

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-prices/models"

	_ "modernc.org/sqlite"
)

const createCheckpointTableSQL = `
CREATE TABLE IF NOT EXISTS checkpoint (
	"id" INTEGER NOT NULL PRIMARY KEY CHECK ("id" = 1),
	"body" TEXT NOT NULL,
	"saved_at" DATETIME NOT NULL
);`

const upsertCheckpointSQL = `
INSERT INTO checkpoint (id, body, saved_at) VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	body=excluded.body,
	saved_at=excluded.saved_at;`

// SQLiteStore keeps the snapshot in a single-row table of a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore opens (and if needed creates) the database at path.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping checkpoint database: %w", err)
	}
	if _, err := db.Exec(createCheckpointTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create checkpoint table: %w", err)
	}
	return &SQLiteStore{db: db, path: path, logger: logger}, nil
}

// Save replaces the stored snapshot.
func (s *SQLiteStore) Save(catalog *models.Catalog) error {
	data, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if _, err := s.db.Exec(upsertCheckpointSQL, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Load returns the stored snapshot. Query failures and corrupt bodies are
// logged and reported as absent.
func (s *SQLiteStore) Load() (*models.Catalog, bool) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM checkpoint WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		s.logger.Error("error reading checkpoint", slog.String("path", s.path), slog.Any("error", err))
		return nil, false
	}

	catalog, err := decodeSnapshot([]byte(body))
	if err != nil {
		s.logger.Warn("ignoring corrupt checkpoint", slog.String("path", s.path), slog.Any("error", err))
		return nil, false
	}
	return catalog, true
}

// Clear deletes the stored snapshot.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM checkpoint`); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
