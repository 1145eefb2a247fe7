// Package vad provides the lightweight voice-activity heuristics used by the
// capture pipeline.
//
// The heuristic is RMS energy against a fixed threshold — deliberately crude.
// It is used only to timestamp "last speech seen" for silence policies; the
// remote model does the real turn detection, so silence is still streamed.
package vad

import "math"

// DefaultThreshold is the RMS energy above which a frame counts as speech.
const DefaultThreshold = 0.01

// RMS computes the root-mean-square energy of a frame of float samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// HasSpeech reports whether the frame's RMS energy strictly exceeds
// threshold. A frame whose energy equals the threshold exactly is silence.
func HasSpeech(samples []float32, threshold float64) bool {
	return RMS(samples) > threshold
}

// Detector is a stateful speech detector with hysteresis: a run of
// consecutive speech frames is required to enter the speaking state and a
// longer run of silence frames to leave it, avoiding flicker at the
// threshold boundary. Not safe for concurrent use; create one per stream.
type Detector struct {
	speechThreshold  float64
	silenceThreshold float64
	speechFrames     int
	silenceFrames    int

	inSpeech     bool
	speechCount  int
	silenceCount int
}

// NewDetector returns a Detector tuned for 16 kHz frames of a few tens of
// milliseconds: ~3 frames of speech to trigger, ~30 frames of silence to end.
func NewDetector() *Detector {
	return &Detector{
		speechThreshold:  0.015,
		silenceThreshold: 0.008,
		speechFrames:     3,
		silenceFrames:    30,
	}
}

// Process feeds one frame and reports the current speaking state.
func (d *Detector) Process(samples []float32) bool {
	level := RMS(samples)

	if d.inSpeech {
		if level < d.silenceThreshold {
			d.silenceCount++
			d.speechCount = 0
			if d.silenceCount >= d.silenceFrames {
				d.inSpeech = false
				d.silenceCount = 0
			}
		} else {
			d.silenceCount = 0
		}
	} else {
		if level >= d.speechThreshold {
			d.speechCount++
			d.silenceCount = 0
			if d.speechCount >= d.speechFrames {
				d.inSpeech = true
				d.speechCount = 0
			}
		} else {
			d.speechCount = 0
		}
	}

	return d.inSpeech
}

// Reset clears accumulated state. Use when the audio stream restarts so the
// previous segment does not bleed into the next.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.speechCount = 0
	d.silenceCount = 0
}
