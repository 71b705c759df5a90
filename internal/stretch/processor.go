package stretch

import (
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/rocoder-audio/rocoder/internal/audio"
	"github.com/rocoder-audio/rocoder/internal/node"
)

// ControlMessage is the StretcherProcessor's control-plane vocabulary.
type ControlMessage int

const (
	// Running is a no-op placeholder; the processor only reacts to
	// Shutdown, but the type still needs a non-shutdown zero value.
	Running ControlMessage = iota
	// Shutdown asks the processor to stop after its current tick.
	Shutdown
)

// ShutdownMsg implements node.ControlMessage.
func (ControlMessage) ShutdownMsg() ControlMessage {
	return Shutdown
}

// channelLeg pairs one channel's Stretcher with the sender side of its
// output chunk channel.
type channelLeg struct {
	out       chan audio.Chunk
	stretcher *Stretcher
}

// Processor drives a Stretcher per audio channel in lock-step,
// assuming (as the spec does) that identical input lengths make every
// channel finish at the same tick.
type Processor struct {
	legs []channelLeg
}

// NewProcessor builds a Processor over one Stretcher per channel,
// returning it alongside the audio.Bus its consumer should read from.
func NewProcessor(spec audio.Spec, stretchers []*Stretcher, expectedTotalSamples *int) (*Processor, *audio.Bus) {
	legs := make([]channelLeg, len(stretchers))
	receivers := make([]<-chan audio.Chunk, len(stretchers))
	for i, s := range stretchers {
		ch := make(chan audio.Chunk, s.ChannelBound())
		legs[i] = channelLeg{out: ch, stretcher: s}
		receivers[i] = ch
	}
	return &Processor{legs: legs}, &audio.Bus{Spec: spec, Channels: receivers, ExpectedTotalSamples: expectedTotalSamples}
}

// Start implements node.Processor.
func (p *Processor) Start(finished *atomic.Bool) (chan<- ControlMessage, <-chan struct{}) {
	ctrl := node.NewControlChannel[ControlMessage]()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer finished.Store(true)
		defer closeLegs(p.legs)

		for {
			select {
			case msg := <-ctrl:
				if msg == Shutdown {
					return
				}
			default:
			}

			for _, leg := range p.legs {
				if leg.stretcher.IsDone() {
					log.Info("stretch process completed")
					return
				}
				leg.out <- leg.stretcher.NextWindow()
			}
		}
	}()

	return ctrl, done
}

func closeLegs(legs []channelLeg) {
	for _, leg := range legs {
		close(leg.out)
	}
}
