package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Tommy0Storm/BUA-XI-sub000/internal/transcript"
	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/live"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "history.json"))
}

func sampleHistory() []transcript.Entry {
	return []transcript.Entry{
		{Role: live.RoleUser, Text: "hello", Timestamp: time.Now()},
		{Role: live.RoleModel, Text: "hi there", Timestamp: time.Now()},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	s.Save(sampleHistory())

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0].Text != "hello" || got[1].Role != live.RoleModel {
		t.Errorf("loaded history = %+v", got)
	}
}

func TestLoadRejectsStaleBlob(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	s.now = func() time.Time { return time.Now().Add(-25 * time.Hour) }
	s.Save(sampleHistory())

	s.now = time.Now
	if _, err := s.Load(); err == nil {
		t.Fatal("Load accepted a 25h-old blob")
	}
}

func TestLoadAcceptsRecentBlob(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	s.now = func() time.Time { return time.Now().Add(-23 * time.Hour) }
	s.Save(sampleHistory())

	s.now = time.Now
	if _, err := s.Load(); err != nil {
		t.Fatalf("Load rejected a 23h-old blob: %v", err)
	}
}

func TestLoadMissingBlob(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	if _, err := s.Load(); err == nil {
		t.Fatal("Load succeeded with no blob on disk")
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	s.Save(sampleHistory())
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := s.Load(); err == nil {
		t.Fatal("Load succeeded after Clear")
	}
	if err := s.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestSaveIsBestEffort(t *testing.T) {
	t.Parallel()

	// A path under a regular file cannot be created; Save must not panic.
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "blocker"), nil, 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	s := NewStore(filepath.Join(dir, "blocker", "history.json"))
	s.Save(sampleHistory())
}
