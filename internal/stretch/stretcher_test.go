package stretch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocoder-audio/rocoder/internal/audio"
	"github.com/rocoder-audio/rocoder/internal/dspmath"
)

func feedChunks(t *testing.T, samples []float32, chunkLen int) <-chan audio.Chunk {
	t.Helper()
	ch := make(chan audio.Chunk, 64)
	go func() {
		defer close(ch)
		for i := 0; i < len(samples); i += chunkLen {
			end := i + chunkLen
			if end > len(samples) {
				end = len(samples)
			}
			ch <- audio.Chunk(samples[i:end])
		}
	}()
	return ch
}

func TestNewRejectsZeroPitchMultiple(t *testing.T) {
	window := dspmath.Hanning(16)
	input := feedChunks(t, make([]float32, 64), 8)
	_, err := New(audio.Spec{Channels: 1, SampleRate: 44100}, input, Params{
		Factor: 2, Amplitude: 1, PitchMultiple: 0, WindowLen: 16, BufferDur: time.Second,
	}, window, nil)
	assert.Error(t, err)
}

func TestNextWindowProducesOutputAndEventuallyFinishes(t *testing.T) {
	window := dspmath.Hanning(32)
	samples := make([]float32, 256)
	for i := range samples {
		samples[i] = 0.1
	}
	input := feedChunks(t, samples, 16)
	s, err := New(audio.Spec{Channels: 1, SampleRate: 44100}, input, Params{
		Factor: 2, Amplitude: 1, PitchMultiple: 1, WindowLen: 32, BufferDur: time.Second,
	}, window, nil)
	require.NoError(t, err)

	windows := 0
	for !s.IsDone() && windows < 200 {
		out := s.NextWindow()
		assert.NotNil(t, out)
		windows++
	}
	assert.Less(t, windows, 200, "stretcher should terminate once input is exhausted and padded")
}

func TestEnsureInputLenPadsAndMarksDoneOnDisconnect(t *testing.T) {
	window := dspmath.Hanning(16)
	input := make(chan audio.Chunk, 3)
	input <- audio.Chunk{1, 2, 3}
	input <- audio.Chunk{4, 5}
	close(input)

	s, err := New(audio.Spec{Channels: 1, SampleRate: 44100}, input, Params{
		Factor: 2, Amplitude: 1, PitchMultiple: 1, WindowLen: 16, BufferDur: time.Second,
	}, window, nil)
	require.NoError(t, err)

	s.ensureInputLen(4)
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, s.inputBuf)
	assert.False(t, s.IsDone())

	s.ensureInputLen(9)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 0, 0, 0, 0}, s.inputBuf)
	assert.True(t, s.IsDone())
}

func TestChannelBoundIsAtLeastOne(t *testing.T) {
	window := dspmath.Hanning(32)
	input := feedChunks(t, make([]float32, 64), 8)
	s, err := New(audio.Spec{Channels: 1, SampleRate: 44100}, input, Params{
		Factor: 1, Amplitude: 1, PitchMultiple: 1, WindowLen: 32, BufferDur: time.Nanosecond,
	}, window, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s.ChannelBound(), 1)
}

func TestTruncateFront(t *testing.T) {
	s := []float32{1, 2, 3, 4, 5}
	assert.Equal(t, []float32{3, 4, 5}, truncateFront(s, 2))
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, truncateFront(s, 0))
	assert.Equal(t, []float32{}, truncateFront(s, 10))
}
