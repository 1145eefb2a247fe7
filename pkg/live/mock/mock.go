// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and feed controlled sessions into the
// session manager. Use Session to drive the audio/transcript/interrupt
// streams and inspect which methods were invoked.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/audio"
	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	Ctx context.Context
	Cfg live.SessionConfig
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by Connect. If nil, Connect
	// returns a fresh default Session.
	Session live.SessionHandle

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectFunc, if non-nil, is called instead of the default behaviour.
	// Useful for returning a different session per attempt.
	ConnectFunc func(ctx context.Context, cfg live.SessionConfig) (live.SessionHandle, error)

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities live.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	fn := p.ConnectFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, cfg)
	}
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// Capabilities returns ProviderCapabilities.
func (p *Provider) Capabilities() live.Capabilities {
	return p.ProviderCapabilities
}

// Calls returns a snapshot of recorded Connect calls.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ConnectCall(nil), p.ConnectCalls...)
}

var _ live.Provider = (*Provider)(nil)

// Session is a scripted implementation of live.SessionHandle. Drive the
// session from a test by writing to AudioCh, TranscriptsCh, and
// InterruptsCh, then calling Close (or EndWithErr) to end it.
type Session struct {
	AudioCh       chan []byte
	TranscriptsCh chan live.TranscriptEvent
	InterruptsCh  chan struct{}

	mu          sync.Mutex
	sent        []audio.Blob
	toolHandler live.ToolCallHandler
	errHandler  func(error)
	errVal      error
	closed      bool
	closeOnce   sync.Once
}

// NewSession returns a Session with buffered channels ready for scripting.
func NewSession() *Session {
	return &Session{
		AudioCh:       make(chan []byte, 64),
		TranscriptsCh: make(chan live.TranscriptEvent, 32),
		InterruptsCh:  make(chan struct{}, 1),
	}
}

// SendAudio records the blob. Returns an error after Close.
func (s *Session) SendAudio(blob audio.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mock: session closed")
	}
	s.sent = append(s.sent, blob)
	return nil
}

// Sent returns a snapshot of all blobs passed to SendAudio.
func (s *Session) Sent() []audio.Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.Blob(nil), s.sent...)
}

func (s *Session) Audio() <-chan []byte                     { return s.AudioCh }
func (s *Session) Transcripts() <-chan live.TranscriptEvent { return s.TranscriptsCh }
func (s *Session) Interrupts() <-chan struct{}              { return s.InterruptsCh }

// OnToolCall stores the handler so tests can invoke it via CallTool.
func (s *Session) OnToolCall(handler live.ToolCallHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolHandler = handler
}

// OnError stores the handler so tests can invoke it via EmitError.
func (s *Session) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errHandler = handler
}

// CallTool invokes the registered tool handler, simulating a model tool call.
func (s *Session) CallTool(name, args string) (string, error) {
	s.mu.Lock()
	handler := s.toolHandler
	s.mu.Unlock()
	if handler == nil {
		return "", fmt.Errorf("mock: no tool handler registered")
	}
	return handler(name, args)
}

// EmitError invokes the registered error handler, simulating an in-band
// provider error.
func (s *Session) EmitError(err error) {
	s.mu.Lock()
	handler := s.errHandler
	s.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

// Err returns the error set by EndWithErr, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// EndWithErr sets the terminal error and closes the session channels,
// simulating an unexpected connection loss.
func (s *Session) EndWithErr(err error) {
	s.mu.Lock()
	if s.errVal == nil {
		s.errVal = err
	}
	s.mu.Unlock()
	s.closeStreams()
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close marks the session closed and closes all channels. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeStreams()
	return nil
}

func (s *Session) closeStreams() {
	s.closeOnce.Do(func() {
		close(s.AudioCh)
		close(s.TranscriptsCh)
		close(s.InterruptsCh)
	})
}

var _ live.SessionHandle = (*Session)(nil)
