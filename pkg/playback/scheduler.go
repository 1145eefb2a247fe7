// Package playback renders remote audio chunks with no audible gaps and
// stops instantly on interruption.
//
// The Scheduler keeps a running next-start position on the output timeline.
// Each decoded chunk is scheduled at max(nextStart, now), back-to-back even
// when chunks arrive in bursts and never in the past, and the position
// advances by the chunk's duration. An interruption stops every scheduled source,
// clears the set, and resets the position to now so the next chunk plays
// immediately rather than queueing behind stale timing.
package playback

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/audio"
)

// Sink receives processed s16le PCM for device output. Write may block
// briefly while the device drains. Implementations must tolerate concurrent
// Close.
type Sink interface {
	Write(pcm []byte) error
	Close() error
}

// Config holds the playback parameters.
type Config struct {
	// SampleRate of the model's output audio in Hz. Defaults to 24000.
	SampleRate int

	// Channels of the output audio. Defaults to 1.
	Channels int
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 24000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
}

// Scheduler schedules decoded buffers on the output timeline. All exported
// methods are safe for concurrent use.
type Scheduler struct {
	cfg   Config
	clock Clock
	sink  Sink

	mu        sync.Mutex
	nextStart time.Duration
	sources   map[int]*time.Timer
	nextID    int
	gain      *gainStage
	closed    bool
}

// A source stays in the set from scheduling until its audio has finished
// playing (or it is interrupted); the timer in the set is whichever of its
// start/end timers is currently armed.

// NewScheduler creates a Scheduler writing to sink on the given clock.
// The next-start position is initialised to the clock's current time.
func NewScheduler(clock Clock, sink Sink, cfg Config) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		cfg:       cfg,
		clock:     clock,
		sink:      sink,
		nextStart: clock.Now(),
		sources:   make(map[int]*time.Timer),
		gain:      newGainStage(),
	}
}

// Enqueue decodes one raw PCM chunk and schedules it after any previously
// scheduled audio. A chunk that fails to decode is logged and dropped; the
// scheduler keeps accepting subsequent chunks.
func (s *Scheduler) Enqueue(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("playback: scheduler closed")
	}

	buf := audio.PCM16ToFloat32(pcm, s.cfg.SampleRate, s.cfg.Channels)
	if len(buf.Samples) == 0 {
		// Per-chunk failure only; session state is unaffected.
		slog.Warn("playback: dropping undecodable chunk", "bytes", len(pcm))
		return nil
	}

	now := s.clock.Now()
	start := s.nextStart
	if start < now {
		start = now
	}
	s.nextStart = start + buf.Duration()

	id := s.nextID
	s.nextID++
	s.sources[id] = time.AfterFunc(start-now, func() {
		s.play(id, buf)
	})
	return nil
}

// play renders one scheduled buffer unless it was interrupted first. The
// source remains active until the buffer's duration elapses, so a burst of
// queued audio stays interruptible while audible.
func (s *Scheduler) play(id int, buf audio.Buffer) {
	s.mu.Lock()
	if _, active := s.sources[id]; !active || s.closed {
		s.mu.Unlock()
		return
	}

	samples := make([]float32, len(buf.Samples))
	copy(samples, buf.Samples)
	s.gain.process(samples)

	s.sources[id] = time.AfterFunc(buf.Duration(), func() {
		s.mu.Lock()
		delete(s.sources, id)
		s.mu.Unlock()
	})
	s.mu.Unlock()

	if err := s.sink.Write(audio.Float32ToPCM16(samples)); err != nil {
		slog.Warn("playback: sink write failed", "err", err)
	}
}

// Interrupt stops and discards every scheduled and playing source, clears
// the set, and resets the next-start position to the clock's current time.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.sources {
		timer.Stop()
		delete(s.sources, id)
	}
	s.nextStart = s.clock.Now()
}

// SetMuted switches the output gain target (0 when muted, a fixed boost
// otherwise). The change ramps over a short window to avoid clicks.
func (s *Scheduler) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gain.setMuted(muted)
}

// Pending reports the number of sources scheduled or playing.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// NextStart returns the current next-start position on the output timeline.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Close interrupts all sources and closes the sink. Idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, timer := range s.sources {
		timer.Stop()
		delete(s.sources, id)
	}
	s.mu.Unlock()
	return s.sink.Close()
}
