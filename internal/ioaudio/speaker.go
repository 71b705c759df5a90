package ioaudio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Speaker is a Sink backed by the default portaudio output device. Its
// playback callback runs on portaudio's own thread and calls straight
// into whatever fill function Start was given — typically a Mixer's
// FillBuffer — the same way the original's cpal output callback locks
// the mixer and fills the buffer directly, with no channel hop.
type Speaker struct {
	sampleRate  int
	channels    int
	stream      *portaudio.Stream
	isStreaming bool
}

// NewSpeaker initializes portaudio and builds a Sink over its default
// output device.
func NewSpeaker(sampleRate, channels int) (*Speaker, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("ioaudio: initializing portaudio: %w", err)
	}
	return &Speaker{sampleRate: sampleRate, channels: channels}, nil
}

// Start implements Sink.
func (s *Speaker) Start(fill func(out []float32)) error {
	host, err := portaudio.DefaultHostApi()
	if err != nil {
		return err
	}

	params := portaudio.HighLatencyParameters(nil, host.DefaultOutputDevice)
	params.Output.Channels = s.channels
	params.SampleRate = float64(s.sampleRate)

	stream, err := portaudio.OpenStream(params, fill)
	if err != nil {
		return fmt.Errorf("ioaudio: opening output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		return fmt.Errorf("ioaudio: starting output stream: %w", err)
	}
	s.stream = stream
	s.isStreaming = true
	return nil
}

// Stop implements Sink.
func (s *Speaker) Stop() error {
	if !s.isStreaming {
		return nil
	}
	if err := s.stream.Close(); err != nil {
		portaudio.Terminate()
		return err
	}
	s.isStreaming = false
	return portaudio.Terminate()
}
