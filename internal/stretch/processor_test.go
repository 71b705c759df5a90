package stretch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocoder-audio/rocoder/internal/audio"
	"github.com/rocoder-audio/rocoder/internal/dspmath"
	"github.com/rocoder-audio/rocoder/internal/node"
)

func TestProcessorForwardsWindowsThenFinishes(t *testing.T) {
	window := dspmath.Hanning(32)
	samples := make([]float32, 256)
	input := feedChunks(t, samples, 16)
	s, err := New(audio.Spec{Channels: 1, SampleRate: 44100}, input, Params{
		Factor: 2, Amplitude: 1, PitchMultiple: 1, WindowLen: 32, BufferDur: time.Second,
	}, window, nil)
	require.NoError(t, err)

	proc, bus := NewProcessor(audio.Spec{Channels: 1, SampleRate: 44100}, []*Stretcher{s}, nil)
	n := node.Start[ControlMessage](proc)

	received := 0
	timeout := time.After(2 * time.Second)
loop:
	for {
		select {
		case _, ok := <-bus.Channels[0]:
			if !ok {
				break loop
			}
			received++
		case <-timeout:
			t.Fatal("timed out waiting for stretcher processor to finish")
		}
	}
	assert.Greater(t, received, 0)
	assert.Eventually(t, n.IsFinished, time.Second, 5*time.Millisecond)
}
