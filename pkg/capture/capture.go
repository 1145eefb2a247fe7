// Package capture turns a live audio source into a sequence of fixed-size
// frames on a dedicated goroutine, independent of the caller's event flow.
//
// The pipeline buffers incoming samples into blocks of a configured size,
// carrying remainder samples into the next block so partial samples are never
// dropped, applies RMS loudness normalization, and hands complete blocks to
// an emit callback. Emission is gated: every block synchronously re-checks
// the owning session's safe-to-send gate, because teardown can race with
// in-flight reads.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/audio"
	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/vad"
)

// Source delivers batches of mono float samples from an audio device or
// equivalent. Read blocks until samples are available, the source is
// exhausted (io.EOF), or ctx is cancelled. Batch sizes are source-defined
// and unrelated to the pipeline block size.
type Source interface {
	Read(ctx context.Context) ([]float32, error)
	SampleRate() int
	Close() error
}

// Gate is the synchronous safe-to-send check consulted before every emitted
// block. Implementations must be cheap and safe for concurrent use.
type Gate interface {
	SafeToSend() bool
}

// Config holds the capture pipeline parameters.
type Config struct {
	// BlockSize is the number of samples per emitted frame. Defaults to 4096.
	BlockSize int

	// SampleRate is the pipeline rate in Hz. Source audio at a different rate
	// is resampled. Defaults to 16000.
	SampleRate int

	// TargetRMS enables loudness normalization toward this RMS level when
	// positive. Zero disables normalization.
	TargetRMS float64

	// SpeechThreshold is the RMS level above which a block updates the
	// last-speech marker. Defaults to vad.DefaultThreshold.
	SpeechThreshold float64
}

func (c *Config) applyDefaults() {
	if c.BlockSize <= 0 {
		c.BlockSize = 4096
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = vad.DefaultThreshold
	}
}

// Pipeline frames a Source into fixed-size blocks and emits them while the
// gate is open. Create with New, start with Start, and stop with Stop.
// All exported methods are safe for concurrent use.
type Pipeline struct {
	cfg    Config
	source Source
	gate   Gate
	emit   func(audio.Frame)

	mu         sync.Mutex
	lastSpeech time.Time
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a capture pipeline delivering frames to emit. The gate is
// consulted synchronously per block; blocks produced while it is closed are
// discarded, never queued.
func New(source Source, gate Gate, emit func(audio.Frame), cfg Config) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		cfg:    cfg,
		source: source,
		gate:   gate,
		emit:   emit,
	}
}

// Start begins reading from the source on a dedicated goroutine. The first
// read is performed synchronously so that device setup failures (permission
// denied, device unavailable) surface to the caller as a connect-time error
// instead of a silent dead pipeline.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("capture: pipeline already running")
	}

	runCtx, cancel := context.WithCancel(ctx)

	first, err := p.source.Read(runCtx)
	if err != nil {
		cancel()
		p.mu.Unlock()
		return fmt.Errorf("capture: source setup: %w", err)
	}

	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		p.run(runCtx, first)
	}()
	return nil
}

// Stop halts the read loop and waits for it to exit. Safe to call multiple
// times and before Start.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// LastSpeech returns the time the most recent speech-bearing block was seen.
// Zero if no speech has been detected yet. Used by external silence-timeout
// policies only; the pipeline itself streams silence like any other audio.
func (p *Pipeline) LastSpeech() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSpeech
}

// run is the framing loop. It stays allocation-light: the carry buffer is
// reused across reads and only emitted blocks are copied out.
func (p *Pipeline) run(ctx context.Context, first []float32) {
	start := time.Now()
	carry := make([]float32, 0, p.cfg.BlockSize*2)

	ingest := func(samples []float32) {
		if p.source.SampleRate() != p.cfg.SampleRate {
			samples = audio.ResampleFloat32(samples, p.source.SampleRate(), p.cfg.SampleRate)
		}
		carry = append(carry, samples...)

		for len(carry) >= p.cfg.BlockSize {
			block := make([]float32, p.cfg.BlockSize)
			copy(block, carry[:p.cfg.BlockSize])
			n := copy(carry, carry[p.cfg.BlockSize:])
			carry = carry[:n]

			p.emitBlock(ctx, block, time.Since(start))
		}
	}

	ingest(first)

	for {
		samples, err := p.source.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("capture: source read ended", "err", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		ingest(samples)
	}
}

// emitBlock normalizes, stamps speech, and emits one complete block. The
// gate check happens last and synchronously, immediately before emission.
func (p *Pipeline) emitBlock(ctx context.Context, block []float32, ts time.Duration) {
	if p.cfg.TargetRMS > 0 {
		audio.NormalizeRMS(block, p.cfg.TargetRMS)
	}

	if vad.HasSpeech(block, p.cfg.SpeechThreshold) {
		p.mu.Lock()
		p.lastSpeech = time.Now()
		p.mu.Unlock()
	}

	// Teardown races with in-flight reads; both checks must come after all
	// processing, right before the handoff.
	if ctx.Err() != nil || !p.gate.SafeToSend() {
		return
	}

	p.emit(audio.Frame{
		Samples:    block,
		SampleRate: p.cfg.SampleRate,
		Channels:   1,
		Timestamp:  ts,
	})
}
