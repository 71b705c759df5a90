package processor

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rocoder-audio/rocoder/internal/audio"
	"github.com/rocoder-audio/rocoder/internal/node"
)

// fakeSink is an ioaudio.Sink that hands its fill callback straight to
// the test so playback ticks can be driven by hand, with no real
// output device involved.
type fakeSink struct {
	fill    func(out []float32)
	stopped bool
}

func (s *fakeSink) Start(fill func(out []float32)) error {
	s.fill = fill
	return nil
}

func (s *fakeSink) Stop() error {
	s.stopped = true
	return nil
}

func TestPlayerConnectBusMixesIntoOutput(t *testing.T) {
	spec := audio.Spec{Channels: 1, SampleRate: 100}
	sink := &fakeSink{}
	p := NewPlayer(spec, sink)
	n := node.Start[PlayerMessage](p)
	defer n.Shutdown()

	require.Eventually(t, func() bool { return sink.fill != nil }, time.Second, time.Millisecond)

	bus, senders := audio.NewBus(spec, 4, nil)
	go func() {
		senders[0] <- audio.Chunk{1, 1, 1, 1}
		audio.CloseAll(senders)
	}()

	n.Send(ConnectBus(uuid.New(), bus, nil, false))

	require.Eventually(t, func() bool {
		out := make([]float32, 4)
		sink.fill(out)
		for _, s := range out {
			if s != 0 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPlayerShutdownStopsSinkImmediately(t *testing.T) {
	spec := audio.Spec{Channels: 1, SampleRate: 100}
	sink := &fakeSink{}
	p := NewPlayer(spec, sink)
	n := node.Start[PlayerMessage](p)

	require.Eventually(t, func() bool { return sink.fill != nil }, time.Second, time.Millisecond)

	n.Shutdown()
	require.Eventually(t, func() bool { return sink.stopped }, time.Second, time.Millisecond)
	require.True(t, n.IsFinished())
}
