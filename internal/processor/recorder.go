// Package processor implements the concrete node.Processor
// implementations the spec names: Recorder (captures a live or fake
// device into a bus), Player (a mixer-backed sink consumer that
// accepts dynamically connected buses), and Installation (the
// event-triggered stretcher spawner coupling both of them to the
// running-amplitude detector).
package processor

import (
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rocoder-audio/rocoder/internal/audio"
	"github.com/rocoder-audio/rocoder/internal/ioaudio"
	"github.com/rocoder-audio/rocoder/internal/node"
)

// recorderPoll is how often the Recorder's main loop wakes to check
// for control messages when it has no other work pending.
const recorderPoll = 100 * time.Millisecond

// RecorderControlMessage is the Recorder's control-plane vocabulary.
type RecorderControlMessage int

const (
	recorderRunning RecorderControlMessage = iota
	recorderShutdown
)

// ShutdownMsg implements node.ControlMessage.
func (RecorderControlMessage) ShutdownMsg() RecorderControlMessage {
	return recorderShutdown
}

// Recorder captures a RawDevice's stream into an audio.Bus, mirroring
// a copy of the raw stream into a SharedAudioBuffer for level
// metering.
type Recorder struct {
	spec    audio.Spec
	device  ioaudio.RawDevice
	senders []chan audio.Chunk
	monitor *ioaudio.SharedAudioBuffer
}

// NewRecorder builds a Recorder over device, returning it alongside
// the bus its consumer (typically a StretcherProcessor or, in the
// installation controller, a recording ring) should read from.
// monitorCapacity sizes the level-metering tap's ring buffer, in
// samples; 0 disables the tap.
func NewRecorder(spec audio.Spec, device ioaudio.RawDevice, monitorCapacity int) (*Recorder, *audio.Bus) {
	bus, senders := audio.NewBus(spec, 0, nil)
	return &Recorder{
		spec:    spec,
		device:  device,
		senders: senders,
		monitor: ioaudio.NewSharedAudioBuffer(monitorCapacity),
	}, bus
}

// Monitor returns the Recorder's level-metering tap.
func (r *Recorder) Monitor() *ioaudio.SharedAudioBuffer {
	return r.monitor
}

// Start implements node.Processor.
func (r *Recorder) Start(finished *atomic.Bool) (chan<- RecorderControlMessage, <-chan struct{}) {
	ctrl := node.NewControlChannel[RecorderControlMessage]()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer finished.Store(true)

		raw, err := r.device.Start()
		if err != nil {
			log.Error("recorder: failed to start device", "err", err)
			audio.CloseAll(r.senders)
			return
		}
		go ioaudio.DeinterleaveInto(raw, int(r.spec.Channels), r.senders, r.monitor)

		for {
			select {
			case msg := <-ctrl:
				if msg == recorderShutdown {
					if err := r.device.Stop(); err != nil {
						log.Warn("recorder: error stopping device", "err", err)
					}
					return
				}
			default:
			}
			time.Sleep(recorderPoll)
		}
	}()

	return ctrl, done
}
