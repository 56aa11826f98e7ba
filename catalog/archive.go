package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	// DirectionFetched names the archive of the downloaded catalog.
	DirectionFetched = "fetched"
	// DirectionSubmitted names the archive of the outgoing payload.
	DirectionSubmitted = "submitted"

	archiveTimeLayout = "2006-01-02_15-04-05"
)

// Archive stores raw request and response bodies for audit. Each run gets
// its own file names, so runs never overwrite each other. A nil *Archive
// discards everything.
type Archive struct {
	dir    string
	prefix string
	logger *slog.Logger
}

// NewArchive returns an archive writing into dir. runID disambiguates runs
// started within the same second.
func NewArchive(dir string, started time.Time, runID string, logger *slog.Logger) *Archive {
	prefix := started.Format(archiveTimeLayout)
	if len(runID) > 8 {
		runID = runID[:8]
	}
	if runID != "" {
		prefix += "-" + runID
	}
	return &Archive{dir: dir, prefix: prefix, logger: logger}
}

// Path returns the file an archive of direction is written to.
func (a *Archive) Path(direction string) string {
	return filepath.Join(a.dir, fmt.Sprintf("%s-%s.json", a.prefix, direction))
}

// Write stores content for direction. Failures are logged and otherwise ignored.
func (a *Archive) Write(direction string, content []byte) {
	if a == nil {
		return
	}
	path := a.Path(direction)
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		a.logger.Warn("failed to create archive dir", slog.String("dir", a.dir), slog.Any("error", err))
		return
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		a.logger.Warn("failed to write archive", slog.String("path", path), slog.Any("error", err))
		return
	}
	a.logger.Debug("archived payload", slog.String("direction", direction), slog.String("path", path))
}
