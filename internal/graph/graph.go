// Package graph assembles complete rocoder pipelines: it wires input
// chunk streams through per-channel stretchers into either a live
// mixer-backed player or an offline drain-to-writer pass. This is the
// only package that knows how the nodes fit together; everything
// below it communicates purely over buses and control channels.
package graph

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rocoder-audio/rocoder/internal/audio"
	"github.com/rocoder-audio/rocoder/internal/dspmath"
	"github.com/rocoder-audio/rocoder/internal/hotswap"
	"github.com/rocoder-audio/rocoder/internal/ioaudio"
	"github.com/rocoder-audio/rocoder/internal/mixer"
	"github.com/rocoder-audio/rocoder/internal/node"
	"github.com/rocoder-audio/rocoder/internal/processor"
	"github.com/rocoder-audio/rocoder/internal/refft"
	"github.com/rocoder-audio/rocoder/internal/stretch"
)

// Options carries the stretch parameters the CLI surface exposes.
type Options struct {
	Spec audio.Spec

	WindowLen     int
	BufferDur     time.Duration
	Factor        float32
	Amplitude     float32
	PitchMultiple int

	// FreqKernelPath, when non-empty, is a source file hot-swapped
	// into every stretcher's spectral path.
	FreqKernelPath string

	// Fade is the entrance/exit fade applied to playback layers and,
	// offline, to the written buffer's edges.
	Fade time.Duration
}

// chunkLen is the transfer size used when slicing a materialized
// buffer onto chunk channels.
const chunkLen = 8192

// ChunksOf slices each of buf's channels into preloaded,
// already-closed chunk channels, the input shape a Stretcher consumes.
func ChunksOf(buf *audio.Buffer) []<-chan audio.Chunk {
	out := make([]<-chan audio.Chunk, len(buf.Data))
	for i, channel := range buf.Data {
		n := (len(channel) + chunkLen - 1) / chunkLen
		ch := make(chan audio.Chunk, n)
		for start := 0; start < len(channel); start += chunkLen {
			end := start + chunkLen
			if end > len(channel) {
				end = len(channel)
			}
			ch <- audio.Chunk(channel[start:end])
		}
		close(ch)
		out[i] = ch
	}
	return out
}

// ExpectedOutputSamples estimates a stretched stream's length, which
// the mixer needs up front to schedule a layer's exit fade.
func ExpectedOutputSamples(inputLen int, factor float32) int {
	return int(float32(inputLen) * factor)
}

// kernelFanout republishes every successfully built kernel library to
// each per-channel stretcher. Sends are non-blocking: a stretcher that
// already has four undrained updates queued just misses this one, the
// same contract hotswap.Watch itself holds to.
func kernelFanout(libs <-chan hotswap.Library, n int) []<-chan refft.Kernel {
	outs := make([]chan refft.Kernel, n)
	recvs := make([]<-chan refft.Kernel, n)
	for i := range outs {
		outs[i] = make(chan refft.Kernel, 4)
		recvs[i] = outs[i]
	}
	go func() {
		for lib := range libs {
			log.Info("loaded frequency kernel", "path", lib.SourcePath)
			for _, out := range outs {
				select {
				case out <- lib.Kernel:
				default:
					log.Warn("kernel update dropped for a busy stretcher", "path", lib.SourcePath)
				}
			}
		}
	}()
	return recvs
}

// NewStretcherNode builds one Stretcher per input channel, wraps them
// in a stretch.Processor, and starts it as a node, returning the node
// alongside the bus its output flows on.
func NewStretcherNode(inputs []<-chan audio.Chunk, opts Options, expectedTotalSamples *int) (*node.Node[stretch.ControlMessage], *audio.Bus, error) {
	if len(inputs) == 0 {
		return nil, nil, fmt.Errorf("graph: no input channels")
	}
	if opts.WindowLen <= 0 {
		return nil, nil, fmt.Errorf("graph: window length must be positive, got %d", opts.WindowLen)
	}
	window := dspmath.Hanning(opts.WindowLen)

	var kernelChans []<-chan refft.Kernel
	if opts.FreqKernelPath != "" {
		libs, err := hotswap.Watch(opts.FreqKernelPath)
		if err != nil {
			log.Warn("frequency kernel unavailable, stretching without it",
				"path", opts.FreqKernelPath, "err", err)
		} else {
			kernelChans = kernelFanout(libs, len(inputs))
		}
	}

	stretchers := make([]*stretch.Stretcher, len(inputs))
	for i, in := range inputs {
		var updates <-chan refft.Kernel
		if kernelChans != nil {
			updates = kernelChans[i]
		}
		s, err := stretch.New(opts.Spec, in, stretch.Params{
			Factor:        opts.Factor,
			Amplitude:     opts.Amplitude,
			PitchMultiple: opts.PitchMultiple,
			WindowLen:     opts.WindowLen,
			BufferDur:     opts.BufferDur,
		}, window, updates)
		if err != nil {
			return nil, nil, err
		}
		stretchers[i] = s
	}

	proc, bus := stretch.NewProcessor(opts.Spec, stretchers, expectedTotalSamples)
	return node.Start[stretch.ControlMessage](proc), bus, nil
}

// RunOffline stretches input in one blocking pass, fades the result's
// edges, and hands it to w.
func RunOffline(input *audio.Buffer, opts Options, w ioaudio.FileWriter) error {
	expected := ExpectedOutputSamples(input.Len(), opts.Factor)
	stretcherNode, bus, err := NewStretcherNode(ChunksOf(input), opts, &expected)
	if err != nil {
		return err
	}

	out := bus.Drain()
	stretcherNode.Wait()

	fadeSamples := out.Spec.DurationToSample(opts.Fade)
	if fadeSamples > out.Len()/2 {
		fadeSamples = out.Len() / 2
	}
	for _, channel := range out.Data {
		dspmath.FadeInAtSample(channel, 0, fadeSamples)
		dspmath.FadeOutAtSample(channel, len(channel)-fadeSamples, fadeSamples)
	}

	return w.WriteAll(out)
}

// Live is a running realtime pipeline: an optional recorder feeding
// the stretcher node, whose bus plays through a mixer-backed player.
type Live struct {
	recorder  *node.Node[processor.RecorderControlMessage]
	stretcher *node.Node[stretch.ControlMessage]
	player    *node.Node[processor.PlayerMessage]
	bus       *audio.Bus
}

// StartLive wires the given per-channel input streams through a
// stretcher node into a player over sink, fading the playback layer in
// (and, when expectedTotalSamples is known, out) over opts.Fade.
func StartLive(inputs []<-chan audio.Chunk, expectedTotalSamples *int, sink ioaudio.Sink, opts Options) (*Live, error) {
	stretcherNode, bus, err := NewStretcherNode(inputs, opts, expectedTotalSamples)
	if err != nil {
		return nil, err
	}

	player := processor.NewPlayer(opts.Spec, sink)
	playerNode := node.Start[processor.PlayerMessage](player)

	// A zero-length fade would pin the layer's envelope at silence;
	// no fade at all is what "don't fade" means.
	var fade *time.Duration
	if opts.Fade > 0 {
		fade = &opts.Fade
	}
	playerNode.Send(processor.ConnectBus(mixer.NewLayerID(), bus, fade, true))

	return &Live{stretcher: stretcherNode, player: playerNode, bus: bus}, nil
}

// StartLiveFromDevice puts a capture device in front of StartLive: the
// recorder's bus channels become the stretchers' inputs directly, so
// live input stretches with no intermediate materialization.
func StartLiveFromDevice(device ioaudio.RawDevice, sink ioaudio.Sink, opts Options) (*Live, error) {
	recorder, recorderBus := processor.NewRecorder(opts.Spec, device, 0)
	recorderNode := node.Start[processor.RecorderControlMessage](recorder)

	live, err := StartLive(recorderBus.Channels, nil, sink, opts)
	if err != nil {
		recorderNode.Shutdown()
		return nil, err
	}
	live.recorder = recorderNode
	return live, nil
}

// Wait blocks until the player exits — clean end-of-stream, or a
// FadeShutdown completing — then tears down the rest of the graph.
func (l *Live) Wait() {
	l.player.Wait()
	l.stopUpstream()
}

// FadeShutdown asks the player to fade every layer to silence over dur
// and then stop; Wait unblocks once it has.
func (l *Live) FadeShutdown(dur time.Duration) {
	l.player.Send(processor.ShutdownWithFade(dur))
}

// Stop tears the whole graph down immediately, without a fade.
func (l *Live) Stop() {
	l.player.Shutdown()
	l.stopUpstream()
}

// stopUpstream shuts down the stretcher (and recorder, if any) after
// the player has gone away. The bus is drained concurrently so a
// stretcher blocked mid-send on a full channel can reach its control
// check; the drain goroutines exit when the stretcher closes its legs.
func (l *Live) stopUpstream() {
	for _, ch := range l.bus.Channels {
		go func(c <-chan audio.Chunk) {
			for range c {
			}
		}(ch)
	}
	l.stretcher.Shutdown()
	if l.recorder != nil {
		l.recorder.Shutdown()
	}
}
