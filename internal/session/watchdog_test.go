package session_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Tommy0Storm/BUA-XI-sub000/internal/session"
)

// captureHandler records every log message for assertion.
type captureHandler struct {
	mu   sync.Mutex
	msgs []string
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.msgs = append(h.msgs, r.Message)
	h.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) has(msg string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.msgs {
		if m == msg {
			return true
		}
	}
	return false
}

func TestWatchdog_WarnsOnMissingFirstTurn(t *testing.T) {
	t.Parallel()

	h := &captureHandler{}
	wd := session.NewWatchdog(session.WatchdogConfig{
		SessionID:      "wd-1",
		Interval:       10 * time.Millisecond,
		NoTurnAfter:    30 * time.Millisecond,
		NoTrafficAfter: time.Minute,
		Logger:         slog.New(h),
	})
	defer wd.Stop()

	waitFor(t, "no-first-turn warning", func() bool {
		return h.has("session: open without a first model turn")
	})
}

func TestWatchdog_FirstTurnSuppressesWarning(t *testing.T) {
	t.Parallel()

	h := &captureHandler{}
	wd := session.NewWatchdog(session.WatchdogConfig{
		SessionID:      "wd-2",
		Interval:       10 * time.Millisecond,
		NoTurnAfter:    50 * time.Millisecond,
		NoTrafficAfter: time.Minute,
		Logger:         slog.New(h),
	})
	defer wd.Stop()

	wd.MarkFirstTurn()
	time.Sleep(150 * time.Millisecond)
	if h.has("session: open without a first model turn") {
		t.Error("warned despite first turn")
	}
}

func TestWatchdog_WarnsOnStalledTraffic(t *testing.T) {
	t.Parallel()

	h := &captureHandler{}
	wd := session.NewWatchdog(session.WatchdogConfig{
		SessionID:      "wd-3",
		Interval:       10 * time.Millisecond,
		NoTurnAfter:    time.Minute,
		NoTrafficAfter: 30 * time.Millisecond,
		Logger:         slog.New(h),
	})
	defer wd.Stop()

	waitFor(t, "stall warning", func() bool {
		return h.has("session: traffic stalled")
	})
}

func TestWatchdog_TrafficResetsStall(t *testing.T) {
	t.Parallel()

	h := &captureHandler{}
	wd := session.NewWatchdog(session.WatchdogConfig{
		SessionID:      "wd-4",
		Interval:       10 * time.Millisecond,
		NoTurnAfter:    time.Minute,
		NoTrafficAfter: 100 * time.Millisecond,
		Logger:         slog.New(h),
	})
	defer wd.Stop()

	wd.MarkFirstTurn()
	for i := 0; i < 10; i++ {
		wd.MarkTraffic()
		time.Sleep(20 * time.Millisecond)
	}
	if h.has("session: traffic stalled") {
		t.Error("warned despite steady traffic")
	}
}

func TestWatchdog_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	wd := session.NewWatchdog(session.WatchdogConfig{SessionID: "wd-5"})
	wd.Stop()
	wd.Stop()
}
