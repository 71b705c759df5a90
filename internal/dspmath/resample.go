package dspmath

import "fmt"

// Resample applies the stretcher's integer-ratio pitch resampler to
// samples. p is the pitch multiple: p == 1 is the identity; p > 1
// keeps every p-th sample (pitching up by skipping samples); p < -1
// linearly interpolates |p| samples between each adjacent pair
// (pitching down by stretching samples out); p == 0 is rejected.
func Resample(samples []float32, p int) ([]float32, error) {
	switch {
	case p == 0:
		return nil, fmt.Errorf("dspmath: pitch multiple must not be zero")
	case p == 1:
		out := make([]float32, len(samples))
		copy(out, samples)
		return out, nil
	case p > 1:
		out := make([]float32, 0, len(samples)/p+1)
		for i := 0; i < len(samples); i += p {
			out = append(out, samples[i])
		}
		return out, nil
	default: // p < -1 (p == -1 behaves like identity-by-magnitude-1, handled below)
		n := -p
		if n == 1 {
			out := make([]float32, len(samples))
			copy(out, samples)
			return out, nil
		}
		if len(samples) == 0 {
			return []float32{}, nil
		}
		out := make([]float32, 0, n*(len(samples)-1))
		for i := 0; i < len(samples)-1; i++ {
			start, end := samples[i], samples[i+1]
			for j := 0; j < n; j++ {
				ratio := float32(j) / float32(n)
				out = append(out, Lerp(start, end, ratio))
			}
		}
		return out, nil
	}
}
