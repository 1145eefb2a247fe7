package audio

import "time"

// Frame represents a single fixed-size block of captured audio flowing through
// the pipeline. Frames are the atomic unit of audio transport — captured from
// the input source, checked for speech, encoded, and streamed to the remote
// model.
type Frame struct {
	// Samples holds floating-point PCM in the range [-1, 1].
	Samples []float32

	// SampleRate in Hz (16000 for the model's realtime input).
	SampleRate int

	// Channels: 1 for mono capture.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := len(f.Samples) / f.Channels
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Buffer is a decoded chunk of model output audio ready for playback
// scheduling. It is owned exclusively by the playback pipeline.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration returns the playback duration of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}

// Blob is an audio chunk in wire form: base64-encoded little-endian 16-bit
// PCM plus the MIME type the remote endpoint expects. Immutable once built.
type Blob struct {
	// Data is the base64 encoding of s16le PCM bytes.
	Data string

	// MIMEType is "audio/pcm;rate=<sampleRate>".
	MIMEType string
}
