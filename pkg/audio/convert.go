package audio

import "math"

// ResampleFloat32 resamples mono float samples from srcRate to dstRate using
// linear interpolation. If srcRate == dstRate the input is returned unchanged.
func ResampleFloat32(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := 0; i < dstLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// rmsFloor guards the normalization scale factor against division by zero on
// silent frames.
const rmsFloor = 1e-4

// NormalizeRMS scales samples in place so their RMS energy approaches
// targetRMS. Frames quieter than the floor are left untouched. Scaled samples
// are clamped to [-1, 1].
func NormalizeRMS(samples []float32, targetRMS float64) {
	if len(samples) == 0 || targetRMS <= 0 {
		return
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	measured := math.Sqrt(sum / float64(len(samples)))
	if measured < rmsFloor {
		return
	}
	scale := float32(targetRMS / measured)
	for i, s := range samples {
		v := s * scale
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		samples[i] = v
	}
}
