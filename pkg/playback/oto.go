package playback

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// OtoSink renders PCM through the system audio device using oto. The oto
// context is a process-wide singleton: NewOtoSink initialises it once and
// later calls reuse it with the same format.
type OtoSink struct {
	player *oto.Player
	pipe   *pcmPipe
}

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// NewOtoSink opens (or reuses) the process-wide audio context and starts a
// player at the given format.
func NewOtoSink(sampleRate, channels int) (*OtoSink, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
	})
	if otoErr != nil {
		return nil, fmt.Errorf("playback: audio context: %w", otoErr)
	}

	pipe := newPCMPipe()
	player := otoCtx.NewPlayer(pipe)
	player.Play()

	return &OtoSink{player: player, pipe: pipe}, nil
}

// Write pushes processed PCM to the device.
func (s *OtoSink) Write(pcm []byte) error {
	return s.pipe.push(pcm)
}

// Close stops the player. The shared context stays open for the next session.
func (s *OtoSink) Close() error {
	s.pipe.close()
	return s.player.Close()
}

var _ Sink = (*OtoSink)(nil)

// pcmPipe is a small blocking FIFO bridging the scheduler's pushes to oto's
// pull-based reader.
type pcmPipe struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newPCMPipe() *pcmPipe {
	p := &pcmPipe{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pcmPipe) push(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("playback: sink closed")
	}
	p.buf = append(p.buf, b...)
	p.cond.Signal()
	return nil
}

// Read implements io.Reader for the oto player. It blocks until data is
// available or the pipe closes.
func (p *pcmPipe) Read(out []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.buf) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.buf) == 0 && p.closed {
		return 0, io.EOF
	}
	n := copy(out, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

func (p *pcmPipe) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
}
