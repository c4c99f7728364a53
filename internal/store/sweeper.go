package store

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Sweeper deletes date partitions older than the retention window.
type Sweeper struct {
	dataDir   string
	retention int
	logger    *slog.Logger
}

// NewSweeper creates a sweeper keeping retentionDays of data.
func NewSweeper(dataDir string, retentionDays int, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{dataDir: dataDir, retention: retentionDays, logger: logger}
}

// Sweep removes expired date directories across all data categories and
// returns how many were deleted. Unparseable directory names are left alone.
func (s *Sweeper) Sweep(now time.Time) int {
	cutoff := now.UTC().AddDate(0, 0, -s.retention).Format(DateFormat)
	removed := 0

	for _, category := range categories {
		root := filepath.Join(s.dataDir, category)
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() || !dateDirRE.MatchString(entry.Name()) {
				continue
			}
			// Lexicographic compare works because the layout is YYYY-MM-DD.
			if entry.Name() >= cutoff {
				continue
			}
			path := filepath.Join(root, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				s.logger.Warn("retention sweep failed", "path", path, "error", err)
				continue
			}
			removed++
			s.logger.Info("removed expired partition", "path", path)
		}
	}
	return removed
}
