// Package backup persists the conversation history to local disk so a
// crashed or killed process can recover it on the next run.
//
// Writes are opportunistic. A failed save is logged and forgotten; the
// history export path never depends on the backup existing.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Tommy0Storm/BUA-XI-sub000/internal/transcript"
)

// MaxAge is how old a saved blob may be before Load ignores it.
const MaxAge = 24 * time.Hour

type blob struct {
	History   []transcript.Entry `json:"history"`
	Timestamp time.Time          `json:"timestamp"`
}

// Store reads and writes the crash-recovery blob at a fixed path.
type Store struct {
	path string
	now  func() time.Time
}

// NewStore returns a store writing to path. An empty path uses
// "buavoice/history.json" under the user cache directory.
func NewStore(path string) *Store {
	if path == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			path = filepath.Join(dir, "buavoice", "history.json")
		} else {
			path = "buavoice-history.json"
		}
	}
	return &Store{path: path, now: time.Now}
}

// Path returns the blob location.
func (s *Store) Path() string { return s.path }

// Save writes the history blob. Best-effort: failures are logged, never
// returned.
func (s *Store) Save(history []transcript.Entry) {
	data, err := json.Marshal(blob{History: history, Timestamp: s.now()})
	if err != nil {
		slog.Warn("backup: marshal history", "err", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		slog.Warn("backup: create dir", "path", s.path, "err", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		slog.Warn("backup: write blob", "path", s.path, "err", err)
	}
}

// Load returns the saved history, or an error when no usable blob exists.
// Blobs older than [MaxAge] are treated as absent.
func (s *Store) Load() ([]transcript.Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("backup: no blob at %s", s.path)
		}
		return nil, fmt.Errorf("backup: read blob: %w", err)
	}
	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("backup: decode blob: %w", err)
	}
	if age := s.now().Sub(b.Timestamp); age > MaxAge {
		return nil, fmt.Errorf("backup: blob is %s old, limit %s", age.Round(time.Minute), MaxAge)
	}
	return b.History, nil
}

// Clear removes the blob. Missing files are not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("backup: remove blob: %w", err)
	}
	return nil
}
