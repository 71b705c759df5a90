// Package audio holds the data model shared by every stage of the
// rocoder pipeline: the stream format, a fully materialized buffer, and
// the streaming bus used to move chunks of samples between nodes.
package audio

import "time"

// Spec describes the format of an audio stream: channel count and
// sample rate. It is a small value type, freely copied.
type Spec struct {
	Channels   uint16
	SampleRate uint32
}

// SampleToDuration converts a sample offset into this spec's sample
// rate into a time.Duration.
func (s Spec) SampleToDuration(n int) time.Duration {
	return time.Duration(float64(n) / float64(s.SampleRate) * float64(time.Second))
}

// DurationToSample converts a duration into a sample offset at this
// spec's sample rate.
func (s Spec) DurationToSample(d time.Duration) int {
	return int(d.Seconds() * float64(s.SampleRate))
}

// Buffer is a fully materialized, multichannel audio buffer: one
// sample sequence per channel, all of equal length.
type Buffer struct {
	Data []Chunk
	Spec Spec
}

// NewBuffer allocates an empty Buffer with one (empty) channel slice
// per channel in spec.
func NewBuffer(spec Spec) *Buffer {
	data := make([]Chunk, spec.Channels)
	return &Buffer{Data: data, Spec: spec}
}

// Len returns the number of samples per channel, or 0 for a buffer
// with no channels.
func (a *Buffer) Len() int {
	if len(a.Data) == 0 {
		return 0
	}
	return len(a.Data[0])
}

// Clip truncates the buffer in place to the sample range described by
// an optional start offset and an optional duration. A nil start
// means "from the beginning"; a nil duration means "through the end."
func (a *Buffer) Clip(start, duration *time.Duration) {
	startPos := 0
	if start != nil {
		startPos = a.Spec.DurationToSample(*start)
	}
	endPos := a.Len()
	if duration != nil {
		endPos = startPos + a.Spec.DurationToSample(*duration)
	}
	for i, channel := range a.Data {
		a.Data[i] = channel[startPos:endPos]
	}
}

// Amplify multiplies every sample in every channel by factor, in
// place.
func (a *Buffer) Amplify(factor float32) {
	for _, channel := range a.Data {
		for i := range channel {
			channel[i] *= factor
		}
	}
}

// RotateChannels cyclically shifts the channel list one position to
// the right (so, in the stereo case, left and right swap). It rotates
// which channel slice occupies which position, not the samples within
// a channel.
func (a *Buffer) RotateChannels() {
	if len(a.Data) < 2 {
		return
	}
	last := a.Data[len(a.Data)-1]
	copy(a.Data[1:], a.Data[:len(a.Data)-1])
	a.Data[0] = last
}

// Interleave writes this buffer's channels into a single
// channel-interleaved float32 slice, the layout expected by most audio
// IO and file-writer contracts.
func (a *Buffer) Interleave() []float32 {
	n := a.Len()
	ch := len(a.Data)
	out := make([]float32, n*ch)
	for c, channel := range a.Data {
		for i, s := range channel {
			out[i*ch+c] = s
		}
	}
	return out
}
