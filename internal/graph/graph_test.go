package graph

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocoder-audio/rocoder/internal/audio"
)

// pumpSink is an ioaudio.Sink that drives its fill callback in a tight
// loop, standing in for a real output device's callback thread.
type pumpSink struct {
	stop      chan struct{}
	sawSignal atomic.Bool
}

func (s *pumpSink) Start(fill func(out []float32)) error {
	s.stop = make(chan struct{})
	go func() {
		out := make([]float32, 512)
		for {
			select {
			case <-s.stop:
				return
			default:
			}
			fill(out)
			for _, v := range out {
				if v != 0 {
					s.sawSignal.Store(true)
					break
				}
			}
		}
	}()
	return nil
}

func (s *pumpSink) Stop() error {
	close(s.stop)
	return nil
}

// captureWriter is an ioaudio.FileWriter that keeps the buffer it was
// handed so a test can inspect it.
type captureWriter struct {
	buf *audio.Buffer
}

func (w *captureWriter) WriteAll(buf *audio.Buffer) error {
	w.buf = buf
	return nil
}

func TestChunksOfPreservesEverySample(t *testing.T) {
	spec := audio.Spec{Channels: 2, SampleRate: 44100}
	buf := audio.NewBuffer(spec)
	for c := range buf.Data {
		buf.Data[c] = make(audio.Chunk, 3*chunkLen+17)
		for i := range buf.Data[c] {
			buf.Data[c][i] = float32(c)
		}
	}

	inputs := ChunksOf(buf)
	require.Len(t, inputs, 2)
	for c, ch := range inputs {
		total := 0
		for chunk := range ch {
			total += len(chunk)
			for _, s := range chunk {
				assert.Equal(t, float32(c), s)
			}
		}
		assert.Equal(t, 3*chunkLen+17, total)
	}
}

func TestChunksOfEmptyBufferClosesImmediately(t *testing.T) {
	buf := audio.NewBuffer(audio.Spec{Channels: 1, SampleRate: 44100})
	inputs := ChunksOf(buf)
	_, open := <-inputs[0]
	assert.False(t, open)
}

func TestExpectedOutputSamples(t *testing.T) {
	assert.Equal(t, 88200, ExpectedOutputSamples(44100, 2.0))
	assert.Equal(t, 22050, ExpectedOutputSamples(44100, 0.5))
}

func TestNewStretcherNodeRejectsBadOptions(t *testing.T) {
	_, _, err := NewStretcherNode(nil, Options{}, nil)
	assert.Error(t, err)

	buf := audio.NewBuffer(audio.Spec{Channels: 1, SampleRate: 44100})
	buf.Data[0] = make(audio.Chunk, 64)
	_, _, err = NewStretcherNode(ChunksOf(buf), Options{
		Spec:      buf.Spec,
		WindowLen: 0,
	}, nil)
	assert.Error(t, err)
}

func TestRunOfflineStretchesToApproximatelyFactorTimesInput(t *testing.T) {
	// Stereo on purpose: the per-channel output channels are bounded,
	// so this only completes if the drain side reads both channels
	// concurrently.
	spec := audio.Spec{Channels: 2, SampleRate: 44100}
	input := audio.NewBuffer(spec)
	for c := range input.Data {
		input.Data[c] = make(audio.Chunk, 44100)
		for i := range input.Data[c] {
			input.Data[c][i] = 0.5
		}
	}

	w := &captureWriter{}
	err := RunOffline(input, Options{
		Spec:          spec,
		WindowLen:     1024,
		BufferDur:     time.Second,
		Factor:        2.0,
		Amplitude:     1.0,
		PitchMultiple: 1,
	}, w)
	require.NoError(t, err)
	require.NotNil(t, w.buf)

	assert.InDelta(t, 88200, w.buf.Len(), 2*1024)

	var sumSquares float64
	head := w.buf.Data[0]
	if len(head) > 1024 {
		head = head[:1024]
	}
	for _, s := range head {
		sumSquares += float64(s) * float64(s)
	}
	rms := math.Sqrt(sumSquares / float64(len(head)))
	assert.Greater(t, rms, 0.0, "stretched output should carry energy within one window of the start")
}

func TestStartLivePlaysThroughSinkAndFinishes(t *testing.T) {
	spec := audio.Spec{Channels: 1, SampleRate: 44100}
	input := audio.NewBuffer(spec)
	input.Data[0] = make(audio.Chunk, 4096)
	for i := range input.Data[0] {
		input.Data[0][i] = 0.25
	}

	sink := &pumpSink{}
	expected := ExpectedOutputSamples(input.Len(), 2.0)
	live, err := StartLive(ChunksOf(input), &expected, sink, Options{
		Spec:          spec,
		WindowLen:     512,
		BufferDur:     time.Second,
		Factor:        2.0,
		Amplitude:     1.0,
		PitchMultiple: 1,
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		live.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("live pipeline did not finish draining a finite input")
	}
	assert.True(t, sink.sawSignal.Load())
}
