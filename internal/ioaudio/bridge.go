package ioaudio

import "github.com/rocoder-audio/rocoder/internal/audio"

// deinterleave splits one interleaved frame into one audio.Chunk per
// channel.
func deinterleave(frame []float32, channels int) []audio.Chunk {
	if channels == 0 {
		return nil
	}
	n := len(frame) / channels
	out := make([]audio.Chunk, channels)
	for c := 0; c < channels; c++ {
		ch := make(audio.Chunk, n)
		for i := 0; i < n; i++ {
			ch[i] = frame[i*channels+c]
		}
		out[c] = ch
	}
	return out
}

// DeinterleaveInto drains raw until it closes, Tee-ing every frame
// into the per-channel senders (deinterleaved) and, if monitor is
// non-nil, into a level-metering tap. It closes senders once raw
// closes, and is meant to be run on its own goroutine by a device's
// owning processor (internal/processor.Recorder).
func DeinterleaveInto(raw <-chan []float32, channels int, senders []chan audio.Chunk, monitor *SharedAudioBuffer) {
	// A nil raw channel (NullDevice) blocks forever on receive here,
	// same as a real device that simply never produces: the bus never
	// closes and its consumer sees silence-by-absence rather than
	// end-of-stream.
	toSenders := make(chan []float32, 4)
	toMonitor := make(chan []float32, 4)
	Tee(raw, toSenders, toMonitor)

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		for frame := range toMonitor {
			if monitor != nil {
				monitor.Write(frame)
			}
		}
	}()

	for frame := range toSenders {
		for c, chunk := range deinterleave(frame, channels) {
			senders[c] <- chunk
		}
	}
	<-monitorDone
	audio.CloseAll(senders)
}
