package transcript_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Tommy0Storm/BUA-XI-sub000/internal/transcript"
	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/live"
)

func TestAccumulator_CommitsAtTurnBoundary(t *testing.T) {
	t.Parallel()

	acc := transcript.NewAccumulator()
	acc.AddDelta(live.RoleUser, "hello ")
	acc.AddDelta(live.RoleModel, "hi ")
	acc.AddDelta(live.RoleUser, "there")
	acc.AddDelta(live.RoleModel, "friend")

	if acc.Len() != 0 {
		t.Fatalf("entries before turn boundary = %d, want 0", acc.Len())
	}

	acc.CompleteTurn()

	entries := acc.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Role != live.RoleUser || entries[0].Text != "hello there" {
		t.Errorf("entry 0 = %q %q, want user %q", entries[0].Role, entries[0].Text, "hello there")
	}
	if entries[1].Role != live.RoleModel || entries[1].Text != "hi friend" {
		t.Errorf("entry 1 = %q %q, want model %q", entries[1].Role, entries[1].Text, "hi friend")
	}
}

func TestAccumulator_EmptyTurnDiscarded(t *testing.T) {
	t.Parallel()

	acc := transcript.NewAccumulator()
	acc.AddDelta(live.RoleUser, "  \n ")
	acc.CompleteTurn()
	if acc.Len() != 0 {
		t.Errorf("whitespace-only turn committed %d entries, want 0", acc.Len())
	}

	acc.AddDelta(live.RoleModel, "only the model spoke")
	acc.CompleteTurn()
	entries := acc.Entries()
	if len(entries) != 1 || entries[0].Role != live.RoleModel {
		t.Fatalf("entries = %+v, want single model entry", entries)
	}
}

func TestAccumulator_OrderFollowsTurns(t *testing.T) {
	t.Parallel()

	acc := transcript.NewAccumulator()
	acc.AddDelta(live.RoleUser, "first question")
	acc.CompleteTurn()
	acc.AddDelta(live.RoleModel, "first answer")
	acc.AddDelta(live.RoleUser, "second question")
	acc.CompleteTurn()

	entries := acc.Entries()
	want := []struct {
		role live.Role
		text string
	}{
		{live.RoleUser, "first question"},
		{live.RoleUser, "second question"},
		{live.RoleModel, "first answer"},
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %d, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i].Role != w.role || entries[i].Text != w.text {
			t.Errorf("entry %d = %q %q, want %q %q", i, entries[i].Role, entries[i].Text, w.role, w.text)
		}
	}
}

func TestAccumulator_Reset(t *testing.T) {
	t.Parallel()

	acc := transcript.NewAccumulator()
	acc.AddDelta(live.RoleUser, "pending")
	acc.CompleteTurn()
	acc.AddDelta(live.RoleModel, "buffered but not committed")
	acc.Reset()

	if acc.Len() != 0 {
		t.Errorf("entries after reset = %d, want 0", acc.Len())
	}
	acc.CompleteTurn()
	if acc.Len() != 0 {
		t.Errorf("reset left buffered text behind: %+v", acc.Entries())
	}
}

// recordExporter counts exports and signals each one on a channel.
type recordExporter struct {
	mu    sync.Mutex
	snaps []transcript.Snapshot
	ch    chan transcript.Snapshot
}

func newRecordExporter() *recordExporter {
	return &recordExporter{ch: make(chan transcript.Snapshot, 4)}
}

func (r *recordExporter) Export(_ context.Context, snap transcript.Snapshot) error {
	r.mu.Lock()
	r.snaps = append(r.snaps, snap)
	r.mu.Unlock()
	r.ch <- snap
	return nil
}

func (r *recordExporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func TestGate_DispatchesLongSessionOnce(t *testing.T) {
	t.Parallel()

	exp := newRecordExporter()
	gate := transcript.NewGate(exp)

	snap := transcript.Snapshot{
		SessionID: "s-1",
		Duration:  25 * time.Second,
		Entries:   []transcript.Entry{{Role: live.RoleModel, Text: "Hello"}},
	}
	gate.Evaluate(snap)
	gate.Evaluate(snap)

	select {
	case got := <-exp.ch:
		if got.SessionID != "s-1" || len(got.Entries) != 1 {
			t.Errorf("exported snapshot = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for export")
	}

	time.Sleep(50 * time.Millisecond)
	if exp.count() != 1 {
		t.Errorf("exports = %d, want exactly 1", exp.count())
	}
	if !gate.Fired() {
		t.Error("Fired() = false after dispatch")
	}
}

func TestGate_ShortSessionNeverDispatches(t *testing.T) {
	t.Parallel()

	exp := newRecordExporter()
	gate := transcript.NewGate(exp)

	gate.Evaluate(transcript.Snapshot{
		Duration: 10 * time.Second,
		Entries:  []transcript.Entry{{Role: live.RoleUser, Text: "hi"}},
	})

	select {
	case <-exp.ch:
		t.Fatal("10s session dispatched, want none")
	case <-time.After(100 * time.Millisecond):
	}
	if gate.Fired() {
		t.Error("Fired() = true for short session")
	}
}

func TestGate_EmptyHistoryNeverDispatches(t *testing.T) {
	t.Parallel()

	exp := newRecordExporter()
	gate := transcript.NewGate(exp)

	gate.Evaluate(transcript.Snapshot{Duration: time.Minute})

	select {
	case <-exp.ch:
		t.Fatal("empty history dispatched, want none")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGate_CustomPolicy(t *testing.T) {
	t.Parallel()

	exp := newRecordExporter()
	gate := transcript.NewGate(exp, transcript.WithPolicy(
		func(elapsed time.Duration, entries int) bool { return entries >= 3 },
	))

	gate.Evaluate(transcript.Snapshot{
		Duration: time.Second,
		Entries: []transcript.Entry{
			{Text: "a"}, {Text: "b"}, {Text: "c"},
		},
	})

	select {
	case <-exp.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("custom policy did not dispatch")
	}
}

func TestHTTPExporter_PostsSnapshot(t *testing.T) {
	t.Parallel()

	received := make(chan transcript.Snapshot, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var snap transcript.Snapshot
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			t.Errorf("decode body: %v", err)
		}
		received <- snap
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exp := transcript.NewHTTPExporter(srv.URL, srv.Client())
	err := exp.Export(context.Background(), transcript.Snapshot{
		SessionID: "s-2",
		Persona:   "receptionist",
		Recipient: "ops@example.com",
		Duration:  42 * time.Second,
		Entries:   []transcript.Entry{{Role: live.RoleUser, Text: "hello"}},
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	select {
	case snap := <-received:
		if snap.SessionID != "s-2" || snap.Persona != "receptionist" || snap.Recipient != "ops@example.com" {
			t.Errorf("received snapshot = %+v", snap)
		}
		if len(snap.Entries) != 1 || snap.Entries[0].Text != "hello" {
			t.Errorf("received entries = %+v", snap.Entries)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never received snapshot")
	}
}

func TestHTTPExporter_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	exp := transcript.NewHTTPExporter(srv.URL, srv.Client())
	if err := exp.Export(context.Background(), transcript.Snapshot{}); err == nil {
		t.Fatal("Export returned nil for 502 response")
	}
}
