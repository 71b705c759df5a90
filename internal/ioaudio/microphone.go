package ioaudio

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
)

// Microphone is a RawDevice backed by the default portaudio input
// device. Its audio callback runs on portaudio's own thread; it copies
// each buffer (portaudio reuses its own) and forwards it with a
// non-blocking send so a slow consumer drops frames instead of
// stalling the audio callback.
type Microphone struct {
	sampleRate  int
	channels    int
	stream      *portaudio.Stream
	frames      chan []float32
	isStreaming bool
}

// NewMicrophone initializes portaudio and builds a RawDevice over its
// default input device.
func NewMicrophone(sampleRate, channels int) (*Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("ioaudio: initializing portaudio: %w", err)
	}
	return &Microphone{sampleRate: sampleRate, channels: channels}, nil
}

func (m *Microphone) audioCallback(in []float32) {
	dup := make([]float32, len(in))
	copy(dup, in)
	select {
	case m.frames <- dup:
	default:
		log.Warn("microphone buffer full, dropping frame")
	}
}

// Start implements RawDevice.
func (m *Microphone) Start() (<-chan []float32, error) {
	m.frames = make(chan []float32, 16)

	host, err := portaudio.DefaultHostApi()
	if err != nil {
		close(m.frames)
		return nil, err
	}

	params := portaudio.HighLatencyParameters(host.DefaultInputDevice, nil)
	params.Input.Channels = m.channels
	params.SampleRate = float64(m.sampleRate)

	stream, err := portaudio.OpenStream(params, m.audioCallback)
	if err != nil {
		close(m.frames)
		return nil, fmt.Errorf("ioaudio: opening input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		close(m.frames)
		return nil, fmt.Errorf("ioaudio: starting input stream: %w", err)
	}
	m.stream = stream
	m.isStreaming = true
	return m.frames, nil
}

// Stop implements RawDevice.
func (m *Microphone) Stop() error {
	if !m.isStreaming {
		return nil
	}
	if err := m.stream.Close(); err != nil {
		portaudio.Terminate()
		return err
	}
	m.isStreaming = false
	close(m.frames)
	return portaudio.Terminate()
}

func (m *Microphone) SampleRate() int { return m.sampleRate }
func (m *Microphone) Channels() int   { return m.channels }
