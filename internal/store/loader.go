package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/snarelab/hivetrace/internal/model"
)

// Store writes evaluated sessions to the data directory. Writes are
// idempotent per sess_uuid: replaying a stream entry overwrites the previous
// copy instead of duplicating it.
type Store struct {
	dataDir string
	logger  *slog.Logger
}

// New creates a Store rooted at dataDir.
func New(dataDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dataDir: dataDir, logger: logger}
}

// DataDir returns the store root.
func (s *Store) DataDir() string {
	return s.dataDir
}

// PersistBatch writes a batch of sessions and refreshes the derived
// artifacts for every touched date. Each day is guarded by an advisory file
// lock so multiple workers can share a volume.
func (s *Store) PersistBatch(sessions []*model.EvaluatedSession) error {
	byDate := map[string][]*model.EvaluatedSession{}
	for _, sess := range sessions {
		byDate[dateOf(sess)] = append(byDate[dateOf(sess)], sess)
	}

	for date, batch := range byDate {
		if err := s.persistDay(date, batch); err != nil {
			return fmt.Errorf("store: persist %s: %w", date, err)
		}
	}
	return nil
}

func (s *Store) persistDay(date string, batch []*model.EvaluatedSession) error {
	dir := filepath.Dir(sessionsFile(s.dataDir, date))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	lock := flock.New(lockFile(s.dataDir, date))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer lock.Unlock()

	day, err := readDayLocked(sessionsFile(s.dataDir, date))
	if err != nil {
		return err
	}

	// Merge the batch, overwriting earlier copies of replayed sessions in
	// place so the log keeps its arrival order.
	index := make(map[string]int, len(day))
	for i, sess := range day {
		index[sess.SessUUID] = i
	}
	for _, sess := range batch {
		if i, ok := index[sess.SessUUID]; ok {
			day[i] = sess
		} else {
			index[sess.SessUUID] = len(day)
			day = append(day, sess)
		}
	}

	if err := writeJSONL(sessionsFile(s.dataDir, date), day); err != nil {
		return err
	}
	if err := s.writeAlerts(date, day); err != nil {
		return err
	}
	if err := s.writeSummary(date, day); err != nil {
		return err
	}
	return s.writeThreatIntel(date, day)
}

func (s *Store) writeAlerts(date string, day []*model.EvaluatedSession) error {
	var critical, high []*model.EvaluatedSession
	for _, sess := range day {
		switch sess.AlertLevel {
		case model.ThreatCritical:
			critical = append(critical, sess)
		case model.ThreatHigh:
			high = append(high, sess)
		}
	}

	if err := writeJSONL(criticalAlertsFile(s.dataDir, date), critical); err != nil {
		return err
	}
	return writeJSONL(highAlertsFile(s.dataDir, date), high)
}

func (s *Store) writeSummary(date string, day []*model.EvaluatedSession) error {
	return writeJSON(summaryFile(s.dataDir, date), ComputeSummary(date, day))
}

func (s *Store) writeThreatIntel(date string, day []*model.EvaluatedSession) error {
	feed := ComputeThreatIntel(date, day)
	if err := writeJSON(intelFile(s.dataDir, date), feed); err != nil {
		return err
	}
	if err := writeLines(maliciousIPsFile(s.dataDir, date), feed.MaliciousIPs); err != nil {
		return err
	}
	return writeLines(attackSignaturesFile(s.dataDir, date), feed.AttackSignatures)
}

func dateOf(sess *model.EvaluatedSession) string {
	if len(sess.ProcessedAt) >= len(DateFormat) {
		return sess.ProcessedAt[:len(DateFormat)]
	}
	return "unknown"
}

// readDayLocked loads a day's session log. Corrupt lines are skipped rather
// than failing the whole day.
func readDayLocked(path string) ([]*model.EvaluatedSession, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []*model.EvaluatedSession
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var sess model.EvaluatedSession
		if err := json.Unmarshal([]byte(line), &sess); err != nil {
			continue
		}
		out = append(out, &sess)
	}
	return out, scanner.Err()
}

// writeJSONL writes records atomically: temp file in the same directory,
// then rename.
func writeJSONL[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func writeLines(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
