// Package session owns the lifecycle of the live voice session: connecting
// to the model provider, wiring capture and playback to the open socket,
// rotating credentials on fast failures, enforcing the session time limit,
// and tearing everything down in a safe order.
//
// At most one session is live per [Manager]. Every attempt carries a
// generation counter; asynchronous work (channel consumers, timer fires)
// re-checks its generation before touching shared state, so work belonging
// to a torn-down session becomes a no-op instead of corrupting its
// successor.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tommy0Storm/BUA-XI-sub000/internal/observe"
	"github.com/Tommy0Storm/BUA-XI-sub000/internal/transcript"
	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/audio"
	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/capture"
	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/live"
	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/playback"
)

// Default lifecycle parameters.
const (
	// DefaultMaxDuration caps a session when the persona does not set its
	// own limit.
	DefaultMaxDuration = 120 * time.Second

	// DefaultSendGrace is the post-open pause before microphone audio is
	// allowed upstream. The model's setup handshake races with the first
	// capture blocks without it.
	DefaultSendGrace = 300 * time.Millisecond
)

// Sentinel errors returned by the manager.
var (
	ErrNoCredentials = errors.New("session: no credentials configured")
	ErrNoProvider    = errors.New("session: no provider factory configured")
)

// State is the lifecycle state of the manager.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Persona describes the voice identity a session runs as.
type Persona struct {
	// Name is the display name, used in logs and transcript exports.
	Name string

	// Voice is the provider-specific voice id.
	Voice string

	// Instructions is the system prompt defining the persona.
	Instructions string

	// MaxDuration caps the session length. Defaults to [DefaultMaxDuration].
	MaxDuration time.Duration

	// Tools declares the callable tools offered to the model.
	Tools []live.ToolDefinition
}

// Config wires a [Manager] to its collaborators.
type Config struct {
	// Provider builds a live provider for a credential. Required.
	Provider func(credential string) live.Provider

	// Credentials is the rotation pool of API credentials. Required,
	// at least one.
	Credentials []string

	// Persona is the active voice identity.
	Persona Persona

	// Retry governs reconnect behaviour. Zero value uses
	// [DefaultRetryPolicy].
	Retry RetryPolicy

	// SendGrace delays the safe-to-send gate after socket open.
	// Defaults to [DefaultSendGrace].
	SendGrace time.Duration

	// Source is the local audio input. Nil disables capture (useful in
	// tests and text-only tooling).
	Source capture.Source

	// Capture configures the capture pipeline when Source is set.
	Capture capture.Config

	// Scheduler receives model audio for playback. Nil drops model audio.
	Scheduler *playback.Scheduler

	// Exporter receives the conversation history when the dispatch gate
	// fires at teardown. Nil disables dispatch.
	Exporter transcript.Exporter

	// DispatchPolicy overrides the default dispatch threshold. Nil uses
	// [transcript.MinDuration] with [transcript.DefaultDispatchThreshold].
	DispatchPolicy transcript.ShouldDispatch

	// Recipient is carried verbatim into the export snapshot.
	Recipient string

	// ToolHandler handles model tool calls. May be nil.
	ToolHandler live.ToolCallHandler

	// Watchdog overrides the advisory watchdog thresholds for this
	// manager. SessionID is filled in per connection.
	Watchdog WatchdogConfig

	// Metrics records lifecycle and audio metrics. May be nil.
	Metrics *observe.Metrics

	// Now is the time source for session ages and durations. Defaults to
	// time.Now. Tests substitute a controllable clock.
	Now func() time.Time
}

// Manager runs the single live session slot. Create with [NewManager];
// all exported methods are safe for concurrent use.
type Manager struct {
	cfg Config

	mu         sync.Mutex
	state      State
	gen        uint64
	connID     string
	credIdx    int
	attempts   int
	openedAt   time.Time
	safe       bool
	sess       live.SessionHandle
	pipeline   *capture.Pipeline
	wd         *Watchdog
	acc        *transcript.Accumulator
	gate       *transcript.Gate
	graceTimer *time.Timer
	maxTimer   *time.Timer
	retryTimer *time.Timer
	lastErr    error
}

var _ capture.Gate = (*Manager)(nil)

// NewManager validates cfg and returns a disconnected manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Provider == nil {
		return nil, ErrNoProvider
	}
	if len(cfg.Credentials) == 0 {
		return nil, ErrNoCredentials
	}
	cfg.Retry = cfg.Retry.withDefaults()
	if cfg.SendGrace <= 0 {
		cfg.SendGrace = DefaultSendGrace
	}
	if cfg.Persona.MaxDuration <= 0 {
		cfg.Persona.MaxDuration = DefaultMaxDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		cfg:   cfg,
		state: StateDisconnected,
		acc:   transcript.NewAccumulator(),
	}, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the error that put the manager into [StateError], or nil.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// ConnectionID returns the id of the current connection, or empty when
// disconnected. Each dial attempt gets a fresh id.
func (m *Manager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connID
}

// History returns a copy of the conversation committed so far.
func (m *Manager) History() []transcript.Entry {
	m.mu.Lock()
	acc := m.acc
	m.mu.Unlock()
	return acc.Entries()
}

// SafeToSend reports whether microphone audio may go upstream right now.
// It is the synchronous gate the capture pipeline consults per block.
func (m *Manager) SafeToSend() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.safe && m.state == StateConnected
}

// Start opens a new session. Any live session is fully torn down first, so
// at most one audio graph exists per manager. On fast failure the manager
// rotates to the next credential and redials per the retry policy; Start
// returns the terminal error if every allowed attempt fails.
func (m *Manager) Start(ctx context.Context) error {
	m.Stop()

	m.mu.Lock()
	m.state = StateConnecting
	m.attempts = 0
	m.lastErr = nil
	m.acc = transcript.NewAccumulator()
	var opts []transcript.GateOption
	if m.cfg.DispatchPolicy != nil {
		opts = append(opts, transcript.WithPolicy(m.cfg.DispatchPolicy))
	}
	m.gate = transcript.NewGate(m.cfg.Exporter, opts...)
	m.mu.Unlock()

	return m.connect(ctx)
}

// Stop tears down the live session, if any. Idempotent. The synchronous
// part runs before Stop returns: gate off, timers cleared, socket closed,
// capture stopped, playback interrupted, dispatch gate evaluated.
func (m *Manager) Stop() {
	m.teardown(0, "user", StateDisconnected, nil)
}

// connect performs one dial attempt under a fresh generation.
func (m *Manager) connect(ctx context.Context) error {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	cred := m.cfg.Credentials[m.credIdx]
	credIdx := m.credIdx
	m.mu.Unlock()

	slog.Info("session: connecting",
		"persona", m.cfg.Persona.Name, "credential_index", credIdx)

	dialStart := time.Now()
	sess, err := m.cfg.Provider(cred).Connect(ctx, live.SessionConfig{
		Voice:        m.cfg.Persona.Voice,
		Instructions: m.cfg.Persona.Instructions,
		Tools:        m.cfg.Persona.Tools,
	})
	if err != nil {
		return m.handleDialError(ctx, gen, err)
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		_ = sess.Close()
		return nil
	}
	m.sess = sess
	m.connID = uuid.NewString()
	m.openedAt = m.cfg.Now()
	m.state = StateConnected
	m.safe = false
	connID := m.connID

	m.graceTimer = time.AfterFunc(m.cfg.SendGrace, func() {
		m.mu.Lock()
		if gen == m.gen {
			m.safe = true
		}
		m.mu.Unlock()
	})
	m.maxTimer = time.AfterFunc(m.cfg.Persona.MaxDuration, func() {
		if m.teardown(gen, "time limit", StateDisconnected, nil) {
			slog.Info("session: time limit reached", "session_id", connID)
		}
	})

	wdCfg := m.cfg.Watchdog
	wdCfg.SessionID = connID
	m.wd = NewWatchdog(wdCfg)
	wd := m.wd
	m.mu.Unlock()

	if mm := m.cfg.Metrics; mm != nil {
		mm.RecordSessionStart(ctx, m.cfg.Persona.Name)
		mm.RecordConnectLatency(ctx, time.Since(dialStart))
	}

	if m.cfg.ToolHandler != nil {
		sess.OnToolCall(m.cfg.ToolHandler)
	}
	sess.OnError(func(err error) {
		slog.Warn("session: provider error", "session_id", connID, "err", err)
	})

	go m.consume(gen, sess, wd)

	if m.cfg.Source != nil {
		pipeline := capture.New(m.cfg.Source, m, m.emitFrame, m.cfg.Capture)
		if err := pipeline.Start(ctx); err != nil {
			m.teardown(gen, "capture failure", StateError, fmt.Errorf("session: start capture: %w", err))
			return fmt.Errorf("session: start capture: %w", err)
		}
		m.mu.Lock()
		if gen == m.gen {
			m.pipeline = pipeline
			m.mu.Unlock()
		} else {
			m.mu.Unlock()
			pipeline.Stop()
		}
	}

	slog.Info("session: connected",
		"session_id", connID, "persona", m.cfg.Persona.Name)
	return nil
}

// handleDialError classifies a dial failure and either rotates or reports.
func (m *Manager) handleDialError(ctx context.Context, gen uint64, err error) error {
	class := m.cfg.Retry.Classify(0, err, len(m.cfg.Credentials))

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return nil
	}
	if class == FailureRotate && m.attempts < m.cfg.Retry.MaxAttempts {
		m.attempts++
		m.credIdx = (m.credIdx + 1) % len(m.cfg.Credentials)
		idx := m.credIdx
		m.mu.Unlock()

		m.recordRotation(ctx, idx, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("session: connect: %w", ctx.Err())
		case <-time.After(m.cfg.Retry.Delay):
		}
		return m.connect(ctx)
	}
	werr := fmt.Errorf("session: connect: %w", err)
	m.state = StateError
	m.lastErr = werr
	m.mu.Unlock()
	return werr
}

// consume drains the session's channels until they close, then settles the
// session's fate. Every mutation re-checks gen so a torn-down session's
// leftovers are ignored.
func (m *Manager) consume(gen uint64, sess live.SessionHandle, wd *Watchdog) {
	audioCh := sess.Audio()
	trCh := sess.Transcripts()
	intCh := sess.Interrupts()

	for audioCh != nil || trCh != nil || intCh != nil {
		select {
		case pcm, ok := <-audioCh:
			if !ok {
				audioCh = nil
				continue
			}
			// The generation check and the enqueue share one lock
			// section: a teardown that bumps the generation flushes
			// playback only after this section releases, so no stale
			// chunk survives the flush.
			m.mu.Lock()
			if gen != m.gen {
				m.mu.Unlock()
				continue
			}
			wd.MarkTraffic()
			wd.MarkFirstTurn()
			if mm := m.cfg.Metrics; mm != nil {
				mm.AudioChunksOut.Add(context.Background(), 1)
			}
			if m.cfg.Scheduler != nil {
				if err := m.cfg.Scheduler.Enqueue(pcm); err != nil {
					if mm := m.cfg.Metrics; mm != nil {
						mm.DecodeFailures.Add(context.Background(), 1)
					}
					slog.Warn("session: playback enqueue failed", "err", err)
				}
			}
			m.mu.Unlock()

		case ev, ok := <-trCh:
			if !ok {
				trCh = nil
				continue
			}
			if !m.currentGen(gen) {
				continue
			}
			wd.MarkTraffic()
			m.mu.Lock()
			acc := m.acc
			m.mu.Unlock()
			if ev.TurnComplete {
				acc.CompleteTurn()
			} else {
				acc.AddDelta(ev.Role, ev.Text)
			}

		case _, ok := <-intCh:
			if !ok {
				intCh = nil
				continue
			}
			if !m.currentGen(gen) {
				continue
			}
			if m.cfg.Scheduler != nil {
				m.cfg.Scheduler.Interrupt()
			}
		}
	}

	m.handleSessionEnd(gen, sess.Err())
}

// handleSessionEnd runs once the session's channels have closed. A nil
// error means the remote ended the session cleanly; anything else is
// classified for rotation or reported as a lost connection.
func (m *Manager) handleSessionEnd(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	age := m.cfg.Now().Sub(m.openedAt)
	canRetry := m.attempts < m.cfg.Retry.MaxAttempts
	m.mu.Unlock()

	if err == nil {
		m.teardown(gen, "remote", StateDisconnected, nil)
		return
	}

	class := m.cfg.Retry.Classify(age, err, len(m.cfg.Credentials))
	if class == FailureRotate && canRetry {
		m.rotateAndRetry(gen, err)
		return
	}
	m.teardown(gen, "error", StateError, fmt.Errorf("session: connection lost: %w", err))
}

// rotateAndRetry tears down the failed attempt without dispatching the
// transcript, advances the credential index, and redials after the policy
// delay. The conversation history survives into the new attempt.
func (m *Manager) rotateAndRetry(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.gen++
	m.safe = false
	m.attempts++
	m.credIdx = (m.credIdx + 1) % len(m.cfg.Credentials)
	idx := m.credIdx
	sess := m.sess
	m.sess = nil
	pipeline := m.pipeline
	m.pipeline = nil
	wd := m.wd
	m.wd = nil
	stopTimer(m.graceTimer)
	stopTimer(m.maxTimer)
	m.state = StateConnecting
	m.connID = ""
	m.retryTimer = time.AfterFunc(m.cfg.Retry.Delay, func() {
		if err := m.connect(context.Background()); err != nil {
			slog.Error("session: redial failed", "err", err)
		}
	})
	m.mu.Unlock()

	// Close the socket before joining the capture goroutine: a send
	// blocked inside the connection write only unblocks once the session
	// context is cancelled.
	if sess != nil {
		_ = sess.Close()
	}
	if pipeline != nil {
		pipeline.Stop()
	}
	if m.cfg.Scheduler != nil {
		m.cfg.Scheduler.Interrupt()
	}
	if wd != nil {
		wd.Stop()
	}
	if mm := m.cfg.Metrics; mm != nil {
		mm.RecordSessionEnd(context.Background(), "rotate")
	}
	m.recordRotation(context.Background(), idx, cause)
}

func (m *Manager) recordRotation(ctx context.Context, newIdx int, cause error) {
	slog.Warn("session: fast failure, rotating credential",
		"next_credential_index", newIdx, "cause", cause)
	if mm := m.cfg.Metrics; mm != nil {
		mm.CredentialRotations.Add(ctx, 1)
	}
}

// teardown dismantles the current session if gen still matches (gen 0
// matches any live session). Synchronous work happens before it returns;
// only transcript delivery runs in the background. Returns false when
// there was nothing to tear down.
func (m *Manager) teardown(gen uint64, reason string, final State, endErr error) bool {
	m.mu.Lock()
	if m.state == StateDisconnected || m.state == StateError {
		m.mu.Unlock()
		return false
	}
	if gen != 0 && gen != m.gen {
		m.mu.Unlock()
		return false
	}
	m.gen++
	m.safe = false
	sess := m.sess
	m.sess = nil
	pipeline := m.pipeline
	m.pipeline = nil
	wd := m.wd
	m.wd = nil
	stopTimer(m.graceTimer)
	stopTimer(m.maxTimer)
	stopTimer(m.retryTimer)
	gate := m.gate
	acc := m.acc
	connID := m.connID
	m.connID = ""
	wasOpen := !m.openedAt.IsZero()
	var duration time.Duration
	if wasOpen {
		duration = m.cfg.Now().Sub(m.openedAt)
	}
	m.openedAt = time.Time{}
	m.state = final
	m.lastErr = endErr
	m.mu.Unlock()

	// Close the socket first: a capture emit blocked inside the connection
	// write only unblocks once the session context is cancelled, and
	// pipeline.Stop waits on that goroutine.
	if sess != nil {
		_ = sess.Close()
	}
	if pipeline != nil {
		pipeline.Stop()
	}
	if m.cfg.Scheduler != nil {
		m.cfg.Scheduler.Interrupt()
	}
	if wd != nil {
		wd.Stop()
	}

	// The gate snapshot is taken before any transcript state is reused.
	if gate != nil {
		gate.Evaluate(transcript.Snapshot{
			SessionID: connID,
			Persona:   m.cfg.Persona.Name,
			Recipient: m.cfg.Recipient,
			Duration:  duration,
			Entries:   acc.Entries(),
		})
		if gate.Fired() {
			if mm := m.cfg.Metrics; mm != nil {
				mm.Dispatches.Add(context.Background(), 1)
			}
		}
	}

	if mm := m.cfg.Metrics; mm != nil {
		if wasOpen {
			mm.RecordSessionEnd(context.Background(), reason)
		}
		if endErr != nil {
			mm.SessionErrors.Add(context.Background(), 1)
		}
	}
	slog.Info("session: torn down",
		"session_id", connID, "reason", reason, "duration", duration)
	return true
}

// emitFrame ships one capture block upstream. The pipeline has already
// consulted SafeToSend; the session pointer is re-read because teardown
// can race with an in-flight block.
func (m *Manager) emitFrame(frame audio.Frame) {
	m.mu.Lock()
	sess := m.sess
	wd := m.wd
	m.mu.Unlock()
	if sess == nil {
		return
	}
	blob := audio.EncodeBlob(audio.Float32ToPCM16(frame.Samples), frame.SampleRate)
	if err := sess.SendAudio(blob); err != nil {
		slog.Debug("session: send audio failed", "err", err)
		return
	}
	if wd != nil {
		wd.MarkTraffic()
	}
	if mm := m.cfg.Metrics; mm != nil {
		mm.AudioChunksIn.Add(context.Background(), 1)
	}
}

func (m *Manager) currentGen(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
