// Package refft implements the re-synthesis engine at the heart of
// the phase vocoder: window a frame, take it into the frequency
// domain, randomize each bin's phase (optionally letting a
// hot-swappable kernel rewrite the spectrum first), and bring it back
// to the time domain.
package refft

import (
	"math"
	"math/rand"

	"github.com/mjibson/go-dsp/fft"
)

// ReFFT transforms windowed frames into phase-randomized
// resynthesis, optionally composed with a user-supplied spectral
// kernel. A ReFFT is owned by exactly one Stretcher and is not safe
// for concurrent use.
type ReFFT struct {
	windowLen int
	window    []float32

	kernelUpdates <-chan Kernel
	kernels       kernelStack

	rng *rand.Rand
}

// New builds a ReFFT over the given window function. The window's
// length fixes the transform size. Each engine gets its own
// randomly-seeded phase stream: sibling channels of one stretch run in
// lock-step, and identical streams would correlate their resynthesized
// phase instead of decorrelating it.
func New(window []float32) *ReFFT {
	return &ReFFT{
		windowLen: len(window),
		window:    window,
		rng:       rand.New(rand.NewSource(rand.Int63())),
	}
}

// WithKernelUpdates attaches a channel of newly hot-swapped kernels.
// Resynth drains it (non-blockingly) once per call, per the rule that
// a kernel swap mid-call never disturbs a call already in progress.
func (r *ReFFT) WithKernelUpdates(updates <-chan Kernel) *ReFFT {
	r.kernelUpdates = updates
	return r
}

// WindowLen reports the transform size.
func (r *ReFFT) WindowLen() int {
	return r.windowLen
}

// Resynth runs the full window -> FFT -> kernel -> phase-randomize ->
// IFFT -> window pipeline over samples, which may be shorter than the
// window (the tail is zero-padded). The elapsed time since the engine
// started is passed through to any active kernel.
func (r *ReFFT) Resynth(samples []float32, elapsedMs int64) []float32 {
	r.drainKernelUpdates()
	spectrum := r.forwardFFT(samples)
	spectrum = r.kernels.applyTopKernel(elapsedMs, spectrum)
	spectrum = r.randomizePhase(spectrum)
	return r.inverseFFT(spectrum)
}

func (r *ReFFT) drainKernelUpdates() {
	if r.kernelUpdates == nil {
		return
	}
	for {
		select {
		case k, ok := <-r.kernelUpdates:
			if !ok {
				r.kernelUpdates = nil
				return
			}
			r.kernels.push(k)
		default:
			return
		}
	}
}

func (r *ReFFT) forwardFFT(samples []float32) []complex128 {
	windowed := make([]complex128, r.windowLen)
	n := len(samples)
	if n > r.windowLen {
		n = r.windowLen
	}
	for i := 0; i < n; i++ {
		windowed[i] = complex(float64(samples[i])*float64(r.window[i]), 0)
	}
	// the remainder of windowed is already zero-valued, satisfying the
	// zero-pad-the-tail rule.
	return fft.FFT(windowed)
}

func (r *ReFFT) randomizePhase(spectrum []complex128) []complex128 {
	out := make([]complex128, len(spectrum))
	for i, c := range spectrum {
		magnitude := math.Hypot(real(c), imag(c))
		phase := r.rng.Float64() * 2 * math.Pi
		out[i] = complex(magnitude*math.Cos(phase), magnitude*math.Sin(phase))
	}
	return out
}

func (r *ReFFT) inverseFFT(spectrum []complex128) []float32 {
	// go-dsp's IFFT already divides by the transform length, unlike
	// rustfft's unnormalized inverse plan, so only the window
	// reweighting is left to do here.
	timeDomain := fft.IFFT(spectrum)
	out := make([]float32, r.windowLen)
	for i, c := range timeDomain {
		out[i] = float32(real(c)) * r.window[i]
	}
	return out
}
