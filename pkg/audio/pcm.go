package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Float32ToPCM16 converts floating-point samples in [-1, 1] to little-endian
// signed 16-bit PCM. Samples outside the range are clamped. Negative samples
// scale by 32768 and positive samples by 32767 so that both extremes map onto
// representable int16 values.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// PCM16ToFloat32 converts little-endian signed 16-bit PCM bytes into a
// playback Buffer, dividing each sample by 32768. Byte order is forced to
// little-endian regardless of the host. Input lengths that are not a multiple
// of 2×channels are truncated to the largest whole frame count rather than
// rejected — trailing partial samples are discarded.
func PCM16ToFloat32(pcm []byte, sampleRate, channels int) Buffer {
	if channels <= 0 {
		channels = 1
	}
	frameBytes := 2 * channels
	frames := len(pcm) / frameBytes
	samples := make([]float32, frames*channels)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(v) / 32768
	}
	return Buffer{Samples: samples, SampleRate: sampleRate, Channels: channels}
}

// EncodeBlob wraps raw s16le PCM bytes in the wire form the realtime endpoint
// expects: base64 text with a rate-carrying MIME type.
func EncodeBlob(pcm []byte, sampleRate int) Blob {
	return Blob{
		Data:     base64.StdEncoding.EncodeToString(pcm),
		MIMEType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
	}
}

// DecodeBlob recovers the raw PCM bytes from a wire blob.
func DecodeBlob(b Blob) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(b.Data)
	if err != nil {
		return nil, fmt.Errorf("audio: decode blob: %w", err)
	}
	return data, nil
}
