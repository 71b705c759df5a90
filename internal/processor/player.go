package processor

import (
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/rocoder-audio/rocoder/internal/audio"
	"github.com/rocoder-audio/rocoder/internal/ioaudio"
	"github.com/rocoder-audio/rocoder/internal/mixer"
	"github.com/rocoder-audio/rocoder/internal/node"
)

// playbackPoll is how often the Player's main loop wakes to check for
// shutdown conditions; the actual sample delivery happens on the
// sink's own callback thread, driven straight off the Mixer.
const playbackPoll = 250 * time.Millisecond

// fadeShutdownPadding is added to a fade-out's duration before the
// Player's deadline-based shutdown fires, giving the fade itself time
// to finish draining through the mixer.
const fadeShutdownPadding = time.Second

// PlayerMessageKind discriminates a PlayerMessage's variant, Go's
// nearest match to the source's two-armed control-message enum.
type PlayerMessageKind int

const (
	// PlayerShutdown requests the player stop, optionally fading all
	// layers to silence first.
	PlayerShutdown PlayerMessageKind = iota
	// PlayerConnectBus attaches a new bus as a mixer layer.
	PlayerConnectBus
)

// PlayerMessage is the Player's control-plane vocabulary.
type PlayerMessage struct {
	Kind PlayerMessageKind

	// ShutdownFade is set on a PlayerShutdown that should fade out
	// before stopping; nil means stop immediately.
	ShutdownFade *time.Duration

	// ConnectID, ConnectBus, ConnectFade, and ConnectShutdownWhenFinished
	// are set on a PlayerConnectBus message.
	ConnectID                   uuid.UUID
	ConnectBus                  *audio.Bus
	ConnectFade                 *time.Duration
	ConnectShutdownWhenFinished bool
}

// ShutdownWithFade builds a PlayerMessage that fades every layer to
// silence over fade before the player stops.
func ShutdownWithFade(fade time.Duration) PlayerMessage {
	return PlayerMessage{Kind: PlayerShutdown, ShutdownFade: &fade}
}

// ConnectBus builds a PlayerMessage that attaches bus as a new mixer
// layer under id, with an optional fade-in/out and whether the
// player's overall finished flag should raise when this layer ends.
func ConnectBus(id uuid.UUID, bus *audio.Bus, fade *time.Duration, shutdownWhenFinished bool) PlayerMessage {
	return PlayerMessage{
		Kind:                        PlayerConnectBus,
		ConnectID:                   id,
		ConnectBus:                  bus,
		ConnectFade:                 fade,
		ConnectShutdownWhenFinished: shutdownWhenFinished,
	}
}

// ShutdownMsg implements node.ControlMessage: the default shutdown is
// an immediate one.
func (PlayerMessage) ShutdownMsg() PlayerMessage {
	return PlayerMessage{Kind: PlayerShutdown}
}

// Player is the mixer-backed audio-output processor: it owns a Mixer
// and a Sink, and accepts ConnectBus messages to add playback layers
// at runtime (the installation controller's event-triggered buses, or
// a single offline/live stretch's output bus).
type Player struct {
	sink  ioaudio.Sink
	mixer *mixer.Mixer
}

// NewPlayer builds a Player over sink, with an initially empty Mixer
// for the given stream format.
func NewPlayer(spec audio.Spec, sink ioaudio.Sink) *Player {
	return &Player{sink: sink, mixer: mixer.New(spec)}
}

// Mixer exposes the Player's underlying Mixer, e.g. for an offline
// caller that wants to insert its one layer before starting the node.
func (p *Player) Mixer() *mixer.Mixer {
	return p.mixer
}

// Start implements node.Processor.
func (p *Player) Start(finished *atomic.Bool) (chan<- PlayerMessage, <-chan struct{}) {
	ctrl := node.NewControlChannel[PlayerMessage]()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer finished.Store(true)

		if err := p.sink.Start(p.mixer.FillBuffer); err != nil {
			log.Error("player: failed to start sink", "err", err)
			return
		}
		defer p.sink.Stop()

		var shutdownAfter *time.Time
		for {
			select {
			case msg := <-ctrl:
				switch msg.Kind {
				case PlayerShutdown:
					if msg.ShutdownFade == nil {
						return
					}
					p.mixer.FadeOutAllLayers(*msg.ShutdownFade)
					deadline := time.Now().Add(*msg.ShutdownFade + fadeShutdownPadding)
					shutdownAfter = &deadline
				case PlayerConnectBus:
					if err := p.mixer.InsertLayer(msg.ConnectID, msg.ConnectBus, msg.ConnectShutdownWhenFinished); err != nil {
						log.Warn("player: failed to connect bus", "err", err)
						continue
					}
					if err := p.mixer.FadeInOut(msg.ConnectID, msg.ConnectFade, msg.ConnectFade); err != nil {
						log.Warn("player: fade-in/out failed", "err", err)
					}
				}
			default:
			}

			if p.mixer.IsFinished() {
				return
			}
			if shutdownAfter != nil && time.Now().After(*shutdownAfter) {
				return
			}
			time.Sleep(playbackPoll)
		}
	}()

	return ctrl, done
}
