package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func generateBuffer(fillVal float32, length int, channels uint16, sampleRate uint32) *Buffer {
	spec := Spec{Channels: channels, SampleRate: sampleRate}
	buf := NewBuffer(spec)
	for i := range buf.Data {
		ch := make(Chunk, length)
		for j := range ch {
			ch[j] = fillVal
		}
		buf.Data[i] = ch
	}
	return buf
}

func TestClipBothArgsNil(t *testing.T) {
	buf := generateBuffer(0, 5, 2, 2)
	buf.Clip(nil, nil)
	assert.Equal(t, 5, buf.Len())
}

func TestClipOnlyStartOffset(t *testing.T) {
	buf := generateBuffer(0, 5, 2, 2)
	start := 500 * time.Millisecond
	buf.Clip(&start, nil)
	assert.Equal(t, 4, buf.Len())
}

func TestClipOnlyDuration(t *testing.T) {
	buf := generateBuffer(0, 5, 2, 2)
	dur := 500 * time.Millisecond
	buf.Clip(nil, &dur)
	assert.Equal(t, 1, buf.Len())
}

func TestClipBothGiven(t *testing.T) {
	buf := generateBuffer(0, 5, 2, 2)
	start := 500 * time.Millisecond
	dur := time.Second
	buf.Clip(&start, &dur)
	assert.Equal(t, 2, buf.Len())
}

func TestAmplify(t *testing.T) {
	buf := generateBuffer(5.0, 2, 2, 44100)
	buf.Amplify(2.0)
	assert.Equal(t, Chunk{10, 10}, buf.Data[0])
	assert.Equal(t, Chunk{10, 10}, buf.Data[1])
}

func TestRotateChannels(t *testing.T) {
	buf := generateBuffer(5.0, 2, 2, 44100)
	buf.Data[0][0] = 6.0
	buf.RotateChannels()
	assert.Equal(t, Chunk{5, 5}, buf.Data[0])
	assert.Equal(t, Chunk{6, 5}, buf.Data[1])
}

func TestDurationSampleRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rate := rapid.Uint32Range(1, 192000).Draw(t, "rate")
		spec := Spec{Channels: 2, SampleRate: rate}
		n := rapid.IntRange(0, 1_000_000).Draw(t, "n")
		got := spec.DurationToSample(spec.SampleToDuration(n))
		require.InDelta(t, n, got, 1)
	})
}

func TestBusDrain(t *testing.T) {
	spec := Spec{Channels: 2, SampleRate: 44100}
	bus, senders := NewBus(spec, 4, nil)
	go func() {
		senders[0] <- Chunk{1, 2}
		senders[0] <- Chunk{3}
		senders[1] <- Chunk{4, 5, 6}
		CloseAll(senders)
	}()
	buf := bus.Drain()
	assert.Equal(t, Chunk{1, 2, 3}, buf.Data[0])
	assert.Equal(t, Chunk{4, 5, 6}, buf.Data[1])
}

func TestBusDrainReadsBoundedChannelsConcurrently(t *testing.T) {
	// A round-robin producer over capacity-1 channels deadlocks
	// against any drain that finishes one channel before starting the
	// next: channel 1's buffer fills while channel 0 is being read.
	spec := Spec{Channels: 2, SampleRate: 44100}
	bus, senders := NewBus(spec, 1, nil)
	go func() {
		for i := 0; i < 8; i++ {
			for _, s := range senders {
				s <- Chunk{float32(i)}
			}
		}
		CloseAll(senders)
	}()
	buf := bus.Drain()
	assert.Len(t, buf.Data[0], 8)
	assert.Len(t, buf.Data[1], 8)
}
