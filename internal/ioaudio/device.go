// Package ioaudio implements the "thin audio IO interface" spec.md §1
// assumes as an external collaborator: producer (RawDevice) and
// consumer (Sink) contracts around interleaved float32 frames, a
// portaudio-backed microphone and speaker, null implementations for
// offline/headless use, and the Tee/SharedAudioBuffer plumbing that
// bridges a raw device into the bus-of-chunks shape the rest of the
// pipeline speaks.
package ioaudio

// RawDevice is a producer of interleaved audio frames: Channels()
// samples per frame, Channels()-many channels interleaved per the
// spec's Audio/Bus convention.
type RawDevice interface {
	// Start begins audio capture and returns a channel of
	// interleaved sample frames. The channel closes when the device
	// stops.
	Start() (<-chan []float32, error)
	// Stop terminates capture and closes the channel returned by
	// Start.
	Stop() error
	SampleRate() int
	Channels() int
}

// NullDevice is a RawDevice that never produces data: a nil channel
// blocks forever on receive, which is indistinguishable from silence
// to anything that only ever drains it on another goroutine gated by
// a control message.
type NullDevice struct {
	rate     int
	channels int
}

// NewNullDevice builds a RawDevice that never emits samples.
func NewNullDevice(sampleRate, channels int) *NullDevice {
	return &NullDevice{rate: sampleRate, channels: channels}
}

func (d *NullDevice) Start() (<-chan []float32, error) { return nil, nil }
func (d *NullDevice) Stop() error                      { return nil }
func (d *NullDevice) SampleRate() int                  { return d.rate }
func (d *NullDevice) Channels() int                    { return d.channels }
