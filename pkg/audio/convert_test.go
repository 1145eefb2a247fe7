package audio_test

import (
	"math"
	"testing"

	"github.com/Tommy0Storm/BUA-XI-sub000/pkg/audio"
)

func TestResampleFloat32_SameRate(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := audio.ResampleFloat32(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
}

func TestResampleFloat32_Downsample(t *testing.T) {
	// 6 samples at 48kHz → 2 samples at 16kHz (1/3x)
	in := []float32{0, 0.1, 0.2, 0.3, 0.4, 0.5}
	out := audio.ResampleFloat32(in, 48000, 16000)
	if len(out) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(out))
	}
	if out[0] != 0 {
		t.Errorf("first sample: got %f, want 0", out[0])
	}
}

func TestResampleFloat32_Upsample(t *testing.T) {
	in := []float32{0, 1}
	out := audio.ResampleFloat32(in, 16000, 48000)
	if len(out) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(out))
	}
	// Linear interpolation must be monotone for a monotone input.
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Errorf("samples not monotone at %d: %f < %f", i, out[i], out[i-1])
		}
	}
}

func TestNormalizeRMS_ScalesTowardTarget(t *testing.T) {
	samples := make([]float32, 256)
	for i := range samples {
		samples[i] = 0.05 * float32(math.Sin(float64(i)/8))
	}
	audio.NormalizeRMS(samples, 0.2)

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < 0.18 || rms > 0.22 {
		t.Errorf("normalized RMS: got %f, want ≈0.2", rms)
	}
}

func TestNormalizeRMS_SilentFrameUntouched(t *testing.T) {
	samples := make([]float32, 64)
	audio.NormalizeRMS(samples, 0.2)
	for i, s := range samples {
		if s != 0 {
			t.Fatalf("sample %d: got %f, want 0", i, s)
		}
	}
}

func TestNormalizeRMS_ClampsLoudResult(t *testing.T) {
	samples := []float32{0.9, -0.9, 0.9, -0.9}
	audio.NormalizeRMS(samples, 5)
	for i, s := range samples {
		if s > 1 || s < -1 {
			t.Errorf("sample %d out of range: %f", i, s)
		}
	}
}
