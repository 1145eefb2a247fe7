package playback

// Output-path processing: a dynamics compressor followed by a gain stage.
// Gain changes ramp over a short sample window instead of stepping, so mute
// and unmute do not click.

const (
	// unmutedGain is the fixed boost applied when not muted. Values above 1
	// compensate for the model's conservative output level.
	unmutedGain = 1.4

	// rampSamples is the window over which a gain change is interpolated.
	// 480 samples is 20 ms at 24 kHz.
	rampSamples = 480

	// Compressor knee: amplitudes above the threshold are compressed at the
	// configured ratio.
	compThreshold = 0.6
	compRatio     = 3.0
)

// gainStage applies ramped gain to successive sample blocks. Not safe for
// concurrent use; the scheduler serialises access.
type gainStage struct {
	current float32
	target  float32
}

func newGainStage() *gainStage {
	return &gainStage{current: unmutedGain, target: unmutedGain}
}

// setMuted selects the gain target. The transition happens gradually as
// subsequent blocks are processed.
func (g *gainStage) setMuted(muted bool) {
	if muted {
		g.target = 0
	} else {
		g.target = unmutedGain
	}
}

// process applies compression and ramped gain to samples in place.
func (g *gainStage) process(samples []float32) {
	step := (g.target - g.current) / rampSamples

	for i, s := range samples {
		s = compress(s)

		if g.current != g.target {
			g.current += step
			// Snap when the ramp overshoots its target.
			if (step > 0 && g.current > g.target) || (step < 0 && g.current < g.target) {
				g.current = g.target
			}
		}

		v := s * g.current
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		samples[i] = v
	}
}

// compress applies a feed-forward compressor with a hard knee: amplitude
// beyond the threshold grows at 1/ratio.
func compress(s float32) float32 {
	abs := s
	if abs < 0 {
		abs = -abs
	}
	if abs <= compThreshold {
		return s
	}
	compressed := compThreshold + (abs-compThreshold)/compRatio
	if s < 0 {
		return -compressed
	}
	return compressed
}
