// Package stretch implements the phase-vocoder time-stretcher: a
// per-channel overlap-add driver over internal/refft, and a
// multi-channel orchestrator that forwards one window per channel per
// tick.
package stretch

import (
	"fmt"
	"math"
	"time"

	"github.com/rocoder-audio/rocoder/internal/audio"
	"github.com/rocoder-audio/rocoder/internal/dspmath"
	"github.com/rocoder-audio/rocoder/internal/refft"
)

// Params configures a single-channel Stretcher.
type Params struct {
	// Factor is the stretch ratio; 5.0 means "5x slower."
	Factor float32
	// Amplitude is the output gain.
	Amplitude float32
	// PitchMultiple is the integer pitch shift: positive shifts up,
	// negative shifts down. Zero is invalid.
	PitchMultiple int
	// WindowLen is the FFT transform size; a power of two, typically
	// 8192 or 16384.
	WindowLen int
	// BufferDur bounds the maximum output latency, and in turn the
	// output channel's capacity (see ChannelBound).
	BufferDur time.Duration
}

// Stretcher drives refft.ReFFT over one channel's sample stream,
// producing a time-stretched (and optionally pitch-shifted) output
// window on demand.
type Stretcher struct {
	spec audio.Spec

	input    <-chan audio.Chunk
	inputBuf []float32

	// outputBuf always begins a call with exactly halfWindowLen
	// primed samples: the fade-in tail left over from the previous
	// call.
	outputBuf []float32

	reFFT *refft.ReFFT

	windowLen              int
	halfWindowLen          int
	sampleStepLen          int
	samplesNeededPerWindow int
	pitchMultiple          int
	correctedAmpFactor     float32
	ampCorrectionEnvelope  []float32

	done bool

	startedAt    time.Time
	channelBound int
}

// New builds a Stretcher reading from input, one channel's worth of a
// multi-channel stream.
func New(spec audio.Spec, input <-chan audio.Chunk, p Params, window []float32, kernelUpdates <-chan refft.Kernel) (*Stretcher, error) {
	if p.PitchMultiple == 0 {
		return nil, fmt.Errorf("stretch: pitch multiple must not be zero")
	}
	if len(window)%2 != 0 {
		return nil, fmt.Errorf("stretch: window length must be even, got %d", len(window))
	}

	pitchShiftedFactor := p.Factor * float32(abs(p.PitchMultiple))
	if p.PitchMultiple < 0 {
		pitchShiftedFactor = p.Factor / float32(abs(p.PitchMultiple))
	}

	windowLen := len(window)
	halfWindowLen := windowLen / 2

	var samplesNeededPerWindow int
	if p.PitchMultiple > 0 {
		samplesNeededPerWindow = windowLen * p.PitchMultiple
	} else {
		samplesNeededPerWindow = int(math.Ceil(float64(windowLen) / float64(-p.PitchMultiple)))
	}

	sampleStepLen := int(float32(windowLen) / (pitchShiftedFactor * 2))
	if sampleStepLen < 1 {
		sampleStepLen = 1
	}

	ampScale := pitchShiftedFactor / 4
	if ampScale < 4 {
		ampScale = 4
	}
	correctedAmpFactor := ampScale * p.Amplitude

	reFFT := refft.New(window)
	if kernelUpdates != nil {
		reFFT = reFFT.WithKernelUpdates(kernelUpdates)
	}

	return &Stretcher{
		spec:                   spec,
		input:                  input,
		outputBuf:              make([]float32, halfWindowLen),
		reFFT:                  reFFT,
		windowLen:              windowLen,
		halfWindowLen:          halfWindowLen,
		sampleStepLen:          sampleStepLen,
		samplesNeededPerWindow: samplesNeededPerWindow,
		pitchMultiple:          p.PitchMultiple,
		correctedAmpFactor:     correctedAmpFactor,
		ampCorrectionEnvelope:  dspmath.CrossfadeCompensationCurve(halfWindowLen),
		startedAt:              time.Now(),
		channelBound:           channelBound(windowLen, spec.SampleRate, p.BufferDur),
	}, nil
}

// channelBound is the maximum number of windows a stretcher's output
// channel should hold ahead of its consumer: the window's duration
// divided by bufferDur, rounded up, and at least 1.
func channelBound(windowLen int, sampleRate uint32, bufferDur time.Duration) int {
	if bufferDur <= 0 {
		return 1
	}
	windowDur := time.Duration(float64(windowLen) / float64(sampleRate) * float64(time.Second))
	bound := int(math.Ceil(float64(windowDur) / float64(bufferDur)))
	if bound < 1 {
		bound = 1
	}
	return bound
}

// ChannelBound reports the channel capacity NextWindow's consumer
// should use, derived from the window size, sample rate, and the
// Params.BufferDur latency budget given at construction.
func (s *Stretcher) ChannelBound() int {
	return s.channelBound
}

// IsDone reports whether the input stream has been fully consumed
// (including its zero-padded tail) and no more windows remain.
func (s *Stretcher) IsDone() bool {
	return s.done
}

// NextWindow produces the next output window. Once IsDone reports
// true, further calls return an empty chunk.
func (s *Stretcher) NextWindow() audio.Chunk {
	if s.done {
		return audio.Chunk{}
	}

	for len(s.outputBuf) < s.samplesNeededPerWindow+s.halfWindowLen {
		s.ensureInputLen(s.windowLen)

		elapsedMs := time.Since(s.startedAt).Milliseconds()
		frame := s.inputBuf
		if len(frame) > s.windowLen {
			frame = frame[:s.windowLen]
		}
		fftResult := s.reFFT.Resynth(frame, elapsedMs)

		for i := 0; i < s.halfWindowLen; i++ {
			s.outputBuf[i] = (fftResult[i] + s.outputBuf[i]) * s.ampCorrectionEnvelope[i] * s.correctedAmpFactor
		}
		s.outputBuf = append(s.outputBuf, fftResult[s.halfWindowLen:]...)

		s.inputBuf = truncateFront(s.inputBuf, s.sampleStepLen)
	}

	emitLen := s.samplesNeededPerWindow
	if emitLen > len(s.outputBuf) {
		emitLen = len(s.outputBuf)
	}
	result, err := dspmath.Resample(s.outputBuf[:emitLen], s.pitchMultiple)
	if err != nil {
		// pitchMultiple is validated at construction time; this
		// cannot happen.
		panic(err)
	}

	s.outputBuf = truncateFront(s.outputBuf, len(s.outputBuf)-s.halfWindowLen)

	return audio.Chunk(result)
}

func (s *Stretcher) ensureInputLen(n int) {
	for len(s.inputBuf) < n {
		chunk, ok := <-s.input
		if !ok {
			// Upstream disconnect is end-of-stream, not an error:
			// zero-pad the remainder so the current window can still
			// resynthesize, and report done so the driver stops
			// asking after it.
			pad := n - len(s.inputBuf)
			s.inputBuf = append(s.inputBuf, make([]float32, pad)...)
			s.done = true
			return
		}
		s.inputBuf = append(s.inputBuf, chunk...)
	}
}

func truncateFront(s []float32, n int) []float32 {
	if n <= 0 {
		return s
	}
	if n >= len(s) {
		return s[len(s):]
	}
	return s[n:]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
