package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// DefaultDispatchThreshold is the minimum session duration before a
// finished conversation is considered worth exporting.
const DefaultDispatchThreshold = 20 * time.Second

// Snapshot is the frozen view of a finished session handed to an
// [Exporter]. It is captured at dispatch time and never mutated.
type Snapshot struct {
	// SessionID identifies the connection the history belongs to.
	SessionID string `json:"session_id"`

	// Persona is the display name of the active persona.
	Persona string `json:"persona"`

	// Recipient is the configured delivery target, e.g. an email address
	// or channel name. Interpretation is up to the exporter.
	Recipient string `json:"recipient,omitempty"`

	// Duration is the total session length.
	Duration time.Duration `json:"duration"`

	// Entries is the committed conversation history in turn order.
	Entries []Entry `json:"entries"`
}

// Exporter delivers a finished session snapshot somewhere useful.
//
// Implementations must be safe for concurrent use.
type Exporter interface {
	// Export delivers snap. Errors are advisory; the caller has already
	// torn the session down and will only log the failure.
	Export(ctx context.Context, snap Snapshot) error
}

// ShouldDispatch decides whether a finished session's history is worth
// exporting. It receives the total session duration and the number of
// committed entries.
type ShouldDispatch func(elapsed time.Duration, entries int) bool

// MinDuration returns the default dispatch policy: export only when the
// session lasted longer than threshold and produced at least one entry.
func MinDuration(threshold time.Duration) ShouldDispatch {
	return func(elapsed time.Duration, entries int) bool {
		return elapsed > threshold && entries > 0
	}
}

// Gate evaluates a session's history at teardown and dispatches it at most
// once. Safe for concurrent use.
type Gate struct {
	exporter Exporter
	policy   ShouldDispatch
	timeout  time.Duration

	once  sync.Once
	fired bool
	mu    sync.Mutex
}

// GateOption configures a [Gate].
type GateOption func(*Gate)

// WithPolicy replaces the default dispatch policy.
func WithPolicy(p ShouldDispatch) GateOption {
	return func(g *Gate) { g.policy = p }
}

// WithExportTimeout bounds the background export call. Default 30s.
func WithExportTimeout(d time.Duration) GateOption {
	return func(g *Gate) { g.timeout = d }
}

// NewGate returns a gate that delivers through exporter when the policy
// approves. A nil exporter disables dispatch entirely.
func NewGate(exporter Exporter, opts ...GateOption) *Gate {
	g := &Gate{
		exporter: exporter,
		policy:   MinDuration(DefaultDispatchThreshold),
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate applies the policy to snap and, on approval, exports it in the
// background. Only the first call can fire; later calls are no-ops.
// Evaluate never blocks on delivery.
func (g *Gate) Evaluate(snap Snapshot) {
	g.once.Do(func() {
		if g.exporter == nil || !g.policy(snap.Duration, len(snap.Entries)) {
			return
		}
		g.mu.Lock()
		g.fired = true
		g.mu.Unlock()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
			defer cancel()
			if err := g.exporter.Export(ctx, snap); err != nil {
				slog.Error("transcript: export failed",
					"session_id", snap.SessionID, "err", err)
				return
			}
			slog.Info("transcript: history exported",
				"session_id", snap.SessionID,
				"entries", len(snap.Entries),
				"duration", snap.Duration)
		}()
	})
}

// Fired reports whether a dispatch was triggered.
func (g *Gate) Fired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}

// ── Exporters ──

// HTTPExporter posts snapshots as JSON to a webhook URL.
type HTTPExporter struct {
	url    string
	client *http.Client
}

var _ Exporter = (*HTTPExporter)(nil)

// NewHTTPExporter returns an exporter posting to url. A nil client uses a
// default with a 15s timeout.
func NewHTTPExporter(url string, client *http.Client) *HTTPExporter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPExporter{url: url, client: client}
}

// Export implements [Exporter].
func (e *HTTPExporter) Export(ctx context.Context, snap Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("transcript: marshal snapshot: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transcript: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("transcript: post snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("transcript: webhook returned %s", resp.Status)
	}
	return nil
}

// LogExporter writes snapshots to the structured log. Useful during
// development when no webhook is configured.
type LogExporter struct{}

var _ Exporter = (*LogExporter)(nil)

// Export implements [Exporter].
func (LogExporter) Export(_ context.Context, snap Snapshot) error {
	for _, e := range snap.Entries {
		slog.Info("transcript: entry",
			"session_id", snap.SessionID,
			"role", string(e.Role),
			"text", e.Text)
	}
	return nil
}
