package processor

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rocoder-audio/rocoder/internal/audio"
	"github.com/rocoder-audio/rocoder/internal/detector"
	"github.com/rocoder-audio/rocoder/internal/dspmath"
	"github.com/rocoder-audio/rocoder/internal/ioaudio"
	"github.com/rocoder-audio/rocoder/internal/mixer"
	"github.com/rocoder-audio/rocoder/internal/node"
	"github.com/rocoder-audio/rocoder/internal/stretch"
)

// recBufChunks is the recording ring's capacity in chunks, per
// channel. Once full, pushing a new chunk silently evicts the oldest.
const recBufChunks = 256

// InstallationControlMessage is the Installation's control-plane
// vocabulary.
type InstallationControlMessage int

const (
	installationRunning InstallationControlMessage = iota
	installationShutdown
)

// ShutdownMsg implements node.ControlMessage.
func (InstallationControlMessage) ShutdownMsg() InstallationControlMessage {
	return installationShutdown
}

// InstallationConfig configures the listening-installation controller.
type InstallationConfig struct {
	Spec audio.Spec

	// MaxStretchers is parsed but, matching the source this spec was
	// distilled from, not enforced: the controller never evicts a
	// running stretcher to stay under this count.
	MaxStretchers uint8

	MaxSnippetDur time.Duration

	AmbientVolumeWindowDur time.Duration
	CurrentVolumeWindowDur time.Duration
	AmpActivationDBStep    float32

	WindowSizes []int

	MinStretchFactor float32
	MaxStretchFactor float32

	MinPauseBetweenEvents time.Duration
	MaxPauseBetweenEvents time.Duration
}

// DefaultInstallationConfig returns the installation controller's
// default configuration.
func DefaultInstallationConfig() InstallationConfig {
	return InstallationConfig{
		Spec:                   audio.Spec{Channels: 2, SampleRate: 44100},
		MaxStretchers:          10,
		MaxSnippetDur:          time.Second,
		AmbientVolumeWindowDur: 10 * time.Second,
		CurrentVolumeWindowDur: 300 * time.Millisecond,
		AmpActivationDBStep:    2.0,
		WindowSizes:            []int{8192},
		MinStretchFactor:       6.0,
		MaxStretchFactor:       12.0,
		MinPauseBetweenEvents:  0,
		MaxPauseBetweenEvents:  15 * time.Second,
	}
}

// Installation couples a Recorder, the stretcher pipeline, and a
// Player via running-amplitude thresholds: it listens continuously,
// and when ambient loudness rises and then falls back by a
// configured step, it spawns a stretcher over the captured snippet and
// feeds it into the player's mixer as a new layer.
type Installation struct {
	config InstallationConfig
	device ioaudio.RawDevice
	sink   ioaudio.Sink

	state          atomic.Int32
	stretcherNodes []*node.Node[stretch.ControlMessage]
}

// NewInstallation builds an Installation over the given config,
// capture device, and playback sink.
func NewInstallation(config InstallationConfig, device ioaudio.RawDevice, sink ioaudio.Sink) *Installation {
	return &Installation{config: config, device: device, sink: sink}
}

// State reports the controller's current listening state: detector.Idle
// or detector.Active.
func (inst *Installation) State() detector.ListeningState {
	return detector.ListeningState(inst.state.Load())
}

// Start implements node.Processor.
func (inst *Installation) Start(finished *atomic.Bool) (chan<- InstallationControlMessage, <-chan struct{}) {
	ctrl := node.NewControlChannel[InstallationControlMessage]()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer finished.Store(true)
		inst.run(ctrl)
	}()

	return ctrl, done
}

func (inst *Installation) run(ctrl <-chan InstallationControlMessage) {
	spec := inst.config.Spec

	recorder, recorderBus := NewRecorder(spec, inst.device, 0)
	recorderNode := node.Start[RecorderControlMessage](recorder)
	defer recorderNode.Shutdown()

	player := NewPlayer(spec, inst.sink)
	playerNode := node.Start[PlayerMessage](player)
	defer playerNode.Shutdown()

	channels := len(recorderBus.Channels)
	ambientWindowSamples := int(inst.config.AmbientVolumeWindowDur.Seconds() * float64(spec.SampleRate))
	currentWindowSamples := int(inst.config.CurrentVolumeWindowDur.Seconds() * float64(spec.SampleRate))
	ambient := detector.NewEMA(ambientWindowSamples, -50)
	current := detector.NewEMA(currentWindowSamples, -50)

	rings := make([]*recordingRing, channels)
	for i := range rings {
		rings[i] = newRecordingRing(recBufChunks)
	}

	listenStart := 0
	dontRecordUntil := time.Now()

	for {
		truncated := false
		for i, ch := range recorderBus.Channels {
			chunk, ok := <-ch
			if !ok {
				panic("installation: recorder unexpectedly stopped")
			}
			if rings[i].push(chunk) {
				truncated = true
			}
		}
		if truncated {
			listenStart--
			if listenStart < 0 {
				listenStart = 0
			}
		}

		chunkPower := maxChannelPower(rings)
		chunkLen := rings[0].lastLen()
		ambient.Update(chunkLen, chunkPower)
		current.Update(chunkLen, chunkPower)

		switch inst.State() {
		case detector.Idle:
			if detector.ShouldActivate(!time.Now().Before(dontRecordUntil), rings[0].len(), recBufChunks, current.Value(), ambient.Value(), inst.config.AmpActivationDBStep) {
				log.Info("installation: heard something, starting to listen",
					"current_amp", current.Value(), "ambient_amp", ambient.Value())
				inst.state.Store(int32(detector.Active))
				listenStart = rings[0].len()
			}
		case detector.Active:
			if detector.ShouldDeactivate(listenStart, current.Value(), ambient.Value(), inst.config.AmpActivationDBStep) {
				log.Info("installation: event ended, playing back",
					"current_amp", current.Value(), "ambient_amp", ambient.Value())
				inst.state.Store(int32(detector.Idle))

				pause := mixer.RandomDuration(inst.config.MinPauseBetweenEvents, inst.config.MaxPauseBetweenEvents)
				log.Info("installation: waiting until next event", "pause", pause)
				dontRecordUntil = time.Now().Add(pause)

				inst.spawnEvent(rings, listenStart, playerNode)
			}
		}

		select {
		case msg := <-ctrl:
			if msg == installationShutdown {
				return
			}
		default:
		}
	}
}

// spawnEvent builds one Stretcher per channel over the snippet
// captured since listenStart, wraps them in a stretch.Processor, and
// connects the resulting bus to the player as a new layer with a
// short fade.
func (inst *Installation) spawnEvent(rings []*recordingRing, listenStart int, playerNode *node.Node[PlayerMessage]) {
	windowSamples := inst.chooseWindow()
	window := dspmath.Hanning(windowSamples)
	factor := randFloat32Range(inst.config.MinStretchFactor, inst.config.MaxStretchFactor)

	stretchers := make([]*stretch.Stretcher, len(rings))
	totalInputSamples := 0
	for i, r := range rings {
		snippet := r.since(listenStart)
		in := make(chan audio.Chunk, len(snippet))
		n := 0
		for _, c := range snippet {
			in <- c
			n += len(c)
		}
		close(in)
		totalInputSamples = n

		s, err := stretch.New(inst.config.Spec, in, stretch.Params{
			Factor:        factor,
			Amplitude:     1.5,
			PitchMultiple: 1,
			WindowLen:     windowSamples,
			BufferDur:     4 * time.Second,
		}, window, nil)
		if err != nil {
			log.Warn("installation: failed to build event stretcher", "err", err)
			return
		}
		stretchers[i] = s
	}

	expected := int(float32(totalInputSamples) * factor)
	proc, bus := stretch.NewProcessor(inst.config.Spec, stretchers, &expected)
	stretcherNode := node.Start[stretch.ControlMessage](proc)
	inst.stretcherNodes = append(inst.stretcherNodes, stretcherNode)

	fade := 500 * time.Millisecond
	playerNode.Send(ConnectBus(mixer.NewLayerID(), bus, &fade, false))
}

func (inst *Installation) chooseWindow() int {
	return inst.config.WindowSizes[rand.Intn(len(inst.config.WindowSizes))]
}

func randFloat32Range(min, max float32) float32 {
	if max <= min {
		return min
	}
	return min + rand.Float32()*(max-min)
}

// maxChannelPower returns the highest power measurement across every
// ring's most recently pushed chunk, the "max-over-channels(power)"
// term of the EMA update rule.
func maxChannelPower(rings []*recordingRing) float32 {
	maxPower := float32(detector.MinDecibels)
	for _, r := range rings {
		if r.len() == 0 {
			continue
		}
		p := detector.Power(r.chunks[len(r.chunks)-1])
		if p > maxPower {
			maxPower = p
		}
	}
	return maxPower
}

// recordingRing is a bounded per-channel deque of captured chunks: the
// "recording buffer" spec.md §4.7 describes, holding at most cap
// chunks before silently dropping the oldest.
type recordingRing struct {
	chunks []audio.Chunk
	cap    int
}

func newRecordingRing(cap int) *recordingRing {
	return &recordingRing{cap: cap}
}

// push appends chunk, evicting the oldest entry if the ring was
// already full. It reports whether an eviction happened.
func (r *recordingRing) push(chunk audio.Chunk) (truncated bool) {
	if len(r.chunks) == r.cap {
		r.chunks = r.chunks[1:]
		truncated = true
	}
	r.chunks = append(r.chunks, chunk)
	return truncated
}

func (r *recordingRing) len() int {
	return len(r.chunks)
}

func (r *recordingRing) lastLen() int {
	if len(r.chunks) == 0 {
		return 0
	}
	return len(r.chunks[len(r.chunks)-1])
}

// since returns every chunk captured from index start onward, clamped
// to the ring's current bounds.
func (r *recordingRing) since(start int) []audio.Chunk {
	if start < 0 {
		start = 0
	}
	if start > len(r.chunks) {
		start = len(r.chunks)
	}
	return r.chunks[start:]
}
