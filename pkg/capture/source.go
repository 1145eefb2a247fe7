package capture

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/audio"
)

// ReaderSource adapts a stream of little-endian 16-bit mono PCM (e.g. a pipe
// from a recording tool, or a file) into a capture Source.
type ReaderSource struct {
	r          io.Reader
	sampleRate int
	batch      int

	mu     sync.Mutex
	closed bool
	buf    []byte
}

// NewReaderSource wraps r, which must deliver s16le mono PCM at sampleRate.
// batchSamples controls how many samples each Read returns (default 1024).
func NewReaderSource(r io.Reader, sampleRate, batchSamples int) *ReaderSource {
	if batchSamples <= 0 {
		batchSamples = 1024
	}
	return &ReaderSource{
		r:          r,
		sampleRate: sampleRate,
		batch:      batchSamples,
		buf:        make([]byte, batchSamples*2),
	}
}

// Read returns the next batch of samples. Short reads at end of stream yield
// a short batch; a zero-length read reports io.EOF.
func (s *ReaderSource) Read(ctx context.Context) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("capture: source closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, err := io.ReadAtLeast(s.r, s.buf, 2)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}

	buf := audio.PCM16ToFloat32(s.buf[:n], s.sampleRate, 1)
	return buf.Samples, nil
}

// SampleRate returns the PCM rate declared at construction.
func (s *ReaderSource) SampleRate() int { return s.sampleRate }

// Close marks the source closed. The underlying reader is not closed; the
// caller owns it.
func (s *ReaderSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Source = (*ReaderSource)(nil)

// ToneSource generates a continuous sine tone. Useful for end-to-end testing
// of the capture path without a microphone.
type ToneSource struct {
	sampleRate int
	freq       float64
	amplitude  float64
	batch      int
	phase      float64
}

// NewToneSource returns a source producing a freq Hz tone at the given
// amplitude and sample rate.
func NewToneSource(sampleRate int, freq, amplitude float64) *ToneSource {
	return &ToneSource{
		sampleRate: sampleRate,
		freq:       freq,
		amplitude:  amplitude,
		batch:      1024,
	}
}

// Read synthesises the next batch of tone samples, paced to real time so
// the tone streams at the same rate a device would deliver it.
func (s *ToneSource) Read(ctx context.Context) ([]float32, error) {
	batchDur := time.Duration(s.batch) * time.Second / time.Duration(s.sampleRate)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(batchDur):
	}
	out := make([]float32, s.batch)
	step := 2 * math.Pi * s.freq / float64(s.sampleRate)
	for i := range out {
		out[i] = float32(s.amplitude * math.Sin(s.phase))
		s.phase += step
	}
	return out, nil
}

// SampleRate returns the configured rate.
func (s *ToneSource) SampleRate() int { return s.sampleRate }

// Close is a no-op.
func (s *ToneSource) Close() error { return nil }

var _ Source = (*ToneSource)(nil)
