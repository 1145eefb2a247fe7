package session

import (
	"log/slog"
	"sync"
	"time"
)

// Default watchdog thresholds.
const (
	defaultWatchInterval  = 2 * time.Second
	defaultNoTurnAfter    = 10 * time.Second
	defaultNoTrafficAfter = 15 * time.Second
)

// WatchdogConfig configures a [Watchdog].
type WatchdogConfig struct {
	// SessionID is included in every warning for correlation.
	SessionID string

	// Interval is how often the watchdog checks. Defaults to 2s.
	Interval time.Duration

	// NoTurnAfter is how long a session may sit open without a first model
	// turn before a warning. Defaults to 10s.
	NoTurnAfter time.Duration

	// NoTrafficAfter is how long bidirectional traffic may stall before a
	// warning. Defaults to 15s.
	NoTrafficAfter time.Duration

	// Logger receives the warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Watchdog watches one live session for silent failure modes: a socket that
// opened but never produced a model turn, or traffic that stalled entirely.
// It is purely advisory and only ever logs; it never touches the session.
//
// All methods are safe for concurrent use.
type Watchdog struct {
	cfg      WatchdogConfig
	log      *slog.Logger
	done     chan struct{}
	stopOnce sync.Once

	mu           sync.Mutex
	openedAt     time.Time
	firstTurn    time.Time
	lastTraffic  time.Time
	warnedNoTurn bool
	warnedStall  bool
}

// NewWatchdog starts a watchdog for a session that just opened.
// Call [Watchdog.Stop] when the session closes.
func NewWatchdog(cfg WatchdogConfig) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultWatchInterval
	}
	if cfg.NoTurnAfter <= 0 {
		cfg.NoTurnAfter = defaultNoTurnAfter
	}
	if cfg.NoTrafficAfter <= 0 {
		cfg.NoTrafficAfter = defaultNoTrafficAfter
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	now := time.Now()
	w := &Watchdog{
		cfg:         cfg,
		log:         log,
		done:        make(chan struct{}),
		openedAt:    now,
		lastTraffic: now,
	}
	go w.loop()
	return w
}

// MarkFirstTurn records that the model produced its first response.
func (w *Watchdog) MarkFirstTurn() {
	w.mu.Lock()
	if w.firstTurn.IsZero() {
		w.firstTurn = time.Now()
	}
	w.mu.Unlock()
}

// MarkTraffic records bidirectional traffic in either direction.
func (w *Watchdog) MarkTraffic() {
	w.mu.Lock()
	w.lastTraffic = time.Now()
	w.warnedStall = false
	w.mu.Unlock()
}

// Stop halts the watchdog. Safe to call multiple times.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watchdog) loop() {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watchdog) check() {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.firstTurn.IsZero() && !w.warnedNoTurn && now.Sub(w.openedAt) > w.cfg.NoTurnAfter {
		w.warnedNoTurn = true
		w.log.Warn("session: open without a first model turn",
			"session_id", w.cfg.SessionID,
			"open_for", now.Sub(w.openedAt).Round(time.Second))
	}
	if !w.warnedStall && now.Sub(w.lastTraffic) > w.cfg.NoTrafficAfter {
		w.warnedStall = true
		w.log.Warn("session: traffic stalled",
			"session_id", w.cfg.SessionID,
			"stalled_for", now.Sub(w.lastTraffic).Round(time.Second))
	}
}
