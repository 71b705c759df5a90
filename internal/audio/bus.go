package audio

import (
	"sync"
	"time"
)

// Bus is a streaming, multichannel pipe: one receive-only channel of
// Chunks per audio channel, produced by exactly one owner. Once a
// producer closes its send end, further receives on that channel
// report ok=false and the bus is considered terminated for that
// channel.
type Bus struct {
	Spec Spec
	// Channels holds one receive end per audio channel.
	Channels []<-chan Chunk
	// ExpectedTotalSamples, when known, lets a consumer report
	// playback progress as a percentage.
	ExpectedTotalSamples *int
}

// NewBus allocates a Bus along with the Chunk channels its producer
// should use to feed it, one pair per audio channel. bound is the
// channel capacity (0 for an unbuffered, i.e. synchronous, channel).
func NewBus(spec Spec, bound int, expectedTotalSamples *int) (*Bus, []chan Chunk) {
	senders := make([]chan Chunk, spec.Channels)
	receivers := make([]<-chan Chunk, spec.Channels)
	for i := range senders {
		c := make(chan Chunk, bound)
		senders[i] = c
		receivers[i] = c
	}
	return &Bus{Spec: spec, Channels: receivers, ExpectedTotalSamples: expectedTotalSamples}, senders
}

// CloseAll closes every sender in a producer's channel set. Call this
// exactly once, when the producer has no more data.
func CloseAll(senders []chan Chunk) {
	for _, s := range senders {
		close(s)
	}
}

// Drain blocks until every channel of the bus has closed, collecting
// everything it produced into a Buffer. It is meant for offline
// (file-to-file) consumption, where the whole stream is wanted before
// further processing. Channels are read concurrently: a producer that
// round-robins across bounded per-channel buffers would block forever
// against a reader that finished one channel before starting the next.
func (b *Bus) Drain() *Buffer {
	buf := NewBuffer(b.Spec)
	var wg sync.WaitGroup
	for i, ch := range b.Channels {
		wg.Add(1)
		go func(i int, ch <-chan Chunk) {
			defer wg.Done()
			var collected Chunk
			for chunk := range ch {
				collected = append(collected, chunk...)
			}
			buf.Data[i] = collected
		}(i, ch)
	}
	wg.Wait()
	return buf
}

// CollectChunk blocks receiving one Chunk from every channel of the
// bus, in channel order. It reports ok=false as soon as any channel is
// closed, at which point the bus is considered finished for this
// consumer. This is the mixer's per-layer pull primitive.
func (b *Bus) CollectChunk() (chunks []Chunk, ok bool) {
	chunks = make([]Chunk, len(b.Channels))
	for i, ch := range b.Channels {
		chunk, open := <-ch
		if !open {
			return nil, false
		}
		chunks[i] = chunk
	}
	return chunks, true
}

// RecvFrame pulls one Chunk from each channel of the bus, waiting up
// to timeout for each. It reports ok=false as soon as any channel is
// closed or times out, so a drain loop can detect end-of-stream across
// several independently-paced producers without blocking forever on a
// single slow one.
func (b *Bus) RecvFrame(timeout time.Duration) (frame []Chunk, ok bool) {
	frame = make([]Chunk, len(b.Channels))
	for i, ch := range b.Channels {
		select {
		case chunk, open := <-ch:
			if !open {
				return nil, false
			}
			frame[i] = chunk
		case <-time.After(timeout):
			return nil, false
		}
	}
	return frame, true
}
