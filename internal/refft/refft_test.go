package refft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocoder-audio/rocoder/internal/dspmath"
)

func TestResynthOutputLengthMatchesWindow(t *testing.T) {
	window := dspmath.Hanning(64)
	r := New(window)
	samples := make([]float32, 40)
	for i := range samples {
		samples[i] = float32(i) / 40
	}
	out := r.Resynth(samples, 0)
	assert.Len(t, out, 64)
}

func TestResynthZeroPadsShortInput(t *testing.T) {
	window := dspmath.Hanning(16)
	r := New(window)
	out := r.Resynth([]float32{1, 1, 1}, 0)
	require.Len(t, out, 16)
}

func TestResynthSilenceStaysQuiet(t *testing.T) {
	window := dspmath.Hanning(32)
	r := New(window)
	silence := make([]float32, 32)
	out := r.Resynth(silence, 0)
	for _, s := range out {
		assert.InDelta(t, 0, s, 1e-4)
	}
}

func TestKernelStackFallsBackOnPanic(t *testing.T) {
	var stack kernelStack
	good := func(elapsedMs int64, spectrum []complex128) []complex128 { return spectrum }
	bad := func(elapsedMs int64, spectrum []complex128) []complex128 { panic("boom") }
	stack.push(good)
	stack.push(bad)

	spectrum := []complex128{1, 2, 3}
	out := stack.applyTopKernel(0, spectrum)
	assert.Equal(t, spectrum, out)

	top, ok := stack.top()
	require.True(t, ok)
	assert.Equal(t, spectrum, top(0, spectrum))
}

func TestKernelStackEmptyIsPassthrough(t *testing.T) {
	var stack kernelStack
	spectrum := []complex128{1, 2, 3}
	out := stack.applyTopKernel(0, spectrum)
	assert.Equal(t, spectrum, out)
}

func TestKernelUpdatesAreDrainedBeforeCall(t *testing.T) {
	window := dspmath.Hanning(16)
	updates := make(chan Kernel, 1)
	r := New(window).WithKernelUpdates(updates)
	called := false
	updates <- func(elapsedMs int64, spectrum []complex128) []complex128 {
		called = true
		return spectrum
	}
	r.Resynth(make([]float32, 16), 0)
	assert.True(t, called)
}
