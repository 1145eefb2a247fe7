package capture_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/audio"
	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/capture"
)

// sliceSource replays fixed batches of samples, then blocks until the
// context is cancelled.
type sliceSource struct {
	rate    int
	batches [][]float32
	idx     int
	readErr error
}

func (s *sliceSource) Read(ctx context.Context) ([]float32, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.idx < len(s.batches) {
		b := s.batches[s.idx]
		s.idx++
		return b, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *sliceSource) SampleRate() int { return s.rate }
func (s *sliceSource) Close() error    { return nil }

// openGate always allows sending.
type openGate struct{}

func (openGate) SafeToSend() bool { return true }

// boolGate allows sending when set.
type boolGate struct {
	mu   sync.Mutex
	open bool
}

func (g *boolGate) SafeToSend() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

func (g *boolGate) set(open bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = open
}

// collector gathers emitted frames.
type collector struct {
	mu     sync.Mutex
	frames []audio.Frame
	ch     chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 64)}
}

func (c *collector) emit(f audio.Frame) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []audio.Frame {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		c.mu.Lock()
		got := len(c.frames)
		c.mu.Unlock()
		if got >= n {
			break
		}
		select {
		case <-c.ch:
		case <-deadline:
			t.Fatalf("timeout waiting for %d frames, have %d", n, got)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audio.Frame(nil), c.frames...)
}

func constant(level float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = level
	}
	return out
}

func TestPipeline_FramesWithRemainderCarry(t *testing.T) {
	t.Parallel()

	// 3 batches of 100 samples with BlockSize 64 → 4 complete blocks (256
	// samples), 44 samples carried and never emitted as a partial block.
	src := &sliceSource{rate: 16000, batches: [][]float32{
		constant(0.1, 100), constant(0.1, 100), constant(0.1, 100),
	}}
	col := newCollector()
	p := capture.New(src, openGate{}, col.emit, capture.Config{BlockSize: 64, SampleRate: 16000})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	frames := col.wait(t, 4)
	for i, f := range frames[:4] {
		if len(f.Samples) != 64 {
			t.Errorf("frame %d: %d samples, want 64", i, len(f.Samples))
		}
		if f.SampleRate != 16000 || f.Channels != 1 {
			t.Errorf("frame %d: format %d/%d", i, f.SampleRate, f.Channels)
		}
	}
}

func TestPipeline_ResamplesSource(t *testing.T) {
	t.Parallel()

	// 48 kHz source into a 16 kHz pipeline: 300 source samples → 100
	// pipeline samples → one 64-sample block emitted.
	src := &sliceSource{rate: 48000, batches: [][]float32{constant(0.1, 300)}}
	col := newCollector()
	p := capture.New(src, openGate{}, col.emit, capture.Config{BlockSize: 64, SampleRate: 16000})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	frames := col.wait(t, 1)
	if len(frames[0].Samples) != 64 {
		t.Errorf("got %d samples, want 64", len(frames[0].Samples))
	}
}

func TestPipeline_GateClosedDiscardsBlocks(t *testing.T) {
	t.Parallel()

	gate := &boolGate{}
	src := &sliceSource{rate: 16000, batches: [][]float32{constant(0.1, 256)}}
	col := newCollector()
	p := capture.New(src, gate, col.emit, capture.Config{BlockSize: 64, SampleRate: 16000})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	// Gate never opened: nothing may be emitted even though blocks complete.
	time.Sleep(100 * time.Millisecond)
	col.mu.Lock()
	n := len(col.frames)
	col.mu.Unlock()
	if n != 0 {
		t.Fatalf("emitted %d frames through a closed gate", n)
	}
}

func TestPipeline_SetupFailurePropagates(t *testing.T) {
	t.Parallel()

	src := &sliceSource{rate: 16000, readErr: errors.New("permission denied")}
	p := capture.New(src, openGate{}, func(audio.Frame) {}, capture.Config{})

	err := p.Start(context.Background())
	if err == nil {
		t.Fatal("expected setup error")
	}
}

func TestPipeline_LastSpeechUpdates(t *testing.T) {
	t.Parallel()

	src := &sliceSource{rate: 16000, batches: [][]float32{constant(0.2, 128)}}
	col := newCollector()
	p := capture.New(src, openGate{}, col.emit, capture.Config{BlockSize: 64, SampleRate: 16000})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	col.wait(t, 2)
	if p.LastSpeech().IsZero() {
		t.Fatal("loud frames did not update last-speech marker")
	}
}

func TestPipeline_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	src := &sliceSource{rate: 16000, batches: [][]float32{constant(0.1, 64)}}
	p := capture.New(src, openGate{}, func(audio.Frame) {}, capture.Config{BlockSize: 64})

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Stop()
	p.Stop()
}

func TestReaderSource_ReadsPCM(t *testing.T) {
	t.Parallel()

	pcm := audio.Float32ToPCM16(constant(0.25, 32))
	src := capture.NewReaderSource(bytes.NewReader(pcm), 16000, 32)

	samples, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(samples) != 32 {
		t.Fatalf("got %d samples, want 32", len(samples))
	}
}
