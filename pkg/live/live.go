// Package live defines the Provider interface for realtime speech backends.
//
// A live provider wraps a hosted multimodal model that accepts streamed audio
// input and returns synthesised audio output over a single, stateful
// connection. The central abstraction is SessionHandle: a bidirectional,
// multiplexed channel that carries audio, transcription deltas, barge-in
// signals, and tool calls concurrently. Sessions are long-lived (seconds to
// minutes).
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"time"

	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/audio"
)

// Role identifies the speaker of a transcript event.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// TranscriptEvent is a streamed transcription fragment from the session.
// Text carries an incremental delta; TurnComplete marks the boundary at which
// accumulated deltas form one whole utterance. A pure boundary event has
// empty Text.
type TranscriptEvent struct {
	Role         Role
	Text         string
	TurnComplete bool
}

// ToolCallHandler is invoked by the session whenever the model requests a
// tool call. The handler receives the tool name and a JSON-encoded arguments
// string and returns a result string to be sent back as the structured
// acknowledgement. The handler runs on the session's receive goroutine and
// must not block for longer than necessary or call blocking session methods.
type ToolCallHandler func(name string, args string) (string, error)

// ToolDefinition declares one callable tool offered to the model at session
// setup.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Voice selects the synthesised voice identity (provider-specific id).
	Voice string

	// Instructions is the system-level prompt defining the persona.
	Instructions string

	// Tools is the set of tool definitions declared at setup. Tool calls are
	// surfaced via the handler set with OnToolCall.
	Tools []ToolDefinition

	// ResponseModalities selects the response types ("AUDIO", "TEXT").
	// Defaults to audio when empty.
	ResponseModalities []string
}

// Capabilities describes static properties of a live provider.
type Capabilities struct {
	// MaxSessionDuration is the hard upper bound on session lifetime imposed
	// by the provider. Zero means no documented limit.
	MaxSessionDuration time.Duration

	// Voices lists the voice identities available for this provider.
	Voices []string
}

// SessionHandle represents an open live session. It is an interface so that
// test code can supply scripted implementations without a network connection.
//
// The session is the hot path of the voice pipeline — every method must
// return quickly, and consumers must drain the channels promptly to prevent
// backpressure from stalling the receive loop. All channels are closed when
// the session ends; after they close, call Err to check whether the session
// ended cleanly.
type SessionHandle interface {
	// SendAudio delivers one wire-form audio chunk to the model. Returns an
	// error if the session is closed or the write fails.
	SendAudio(blob audio.Blob) error

	// Audio emits raw s16le PCM byte chunks as the model speaks.
	Audio() <-chan []byte

	// Transcripts emits transcription deltas and turn-completion markers for
	// both user speech and model output.
	Transcripts() <-chan TranscriptEvent

	// Interrupts signals barge-in: the model detected user speech while it
	// was still producing audio, and local playback must flush immediately.
	Interrupts() <-chan struct{}

	// OnToolCall registers the handler invoked synchronously for model tool
	// calls. Only one handler is active at a time; nil clears it.
	OnToolCall(handler ToolCallHandler)

	// OnError registers a callback for non-fatal error events from the
	// provider (e.g. in-band error messages on a live socket).
	OnError(handler func(error))

	// Err returns the error that caused the session to terminate, or nil if
	// it ended cleanly.
	Err() error

	// Close terminates the session and closes all channels. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any realtime speech backend.
type Provider interface {
	// Connect establishes a new live session. The returned SessionHandle is
	// ready to accept audio once the setup exchange completes; the caller
	// owns it and must call Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() Capabilities
}
