// rocoder stretches and pitch-shifts audio. With an input file it runs
// file-to-file (or file-to-speakers); without one it stretches the
// default input device live. Streams are headerless interleaved
// little-endian float32; "-" means stdin or stdout.
package main

import (
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/rocoder-audio/rocoder/internal/audio"
	"github.com/rocoder-audio/rocoder/internal/durfmt"
	"github.com/rocoder-audio/rocoder/internal/graph"
	"github.com/rocoder-audio/rocoder/internal/ioaudio"
)

// defaultSpec is the stream format assumed for raw input streams and
// used for device capture; raw streams carry no header to say
// otherwise.
var defaultSpec = audio.Spec{Channels: 2, SampleRate: 44100}

// interruptFade is how long the first SIGINT's graceful fade-out
// takes; a second SIGINT skips it.
const interruptFade = 3 * time.Second

func main() {
	window := pflag.IntP("window", "w", 16384, "FFT window length, in samples.")
	bufferStr := pflag.StringP("buffer", "b", "1", "Maximum lookahead latency ([[HH:]MM:]SS[.fff]).")
	factor := pflag.Float32P("factor", "f", 1.0, "Stretch ratio; 5 means 5x slower.")
	pitchMultiple := pflag.IntP("pitch_multiple", "p", 1, "Integer pitch multiplier; negative shifts down.")
	amplitude := pflag.Float32P("amplitude", "a", 1.0, "Output gain.")
	input := pflag.StringP("input", "i", "", "Input stream; \"-\" reads stdin. Omitted: record from the default device.")
	rotateChannels := pflag.Bool("rotate-channels", false, "Cyclically rotate the input's channel list.")
	freqKernel := pflag.String("freq-kernel", "", "Source file to hot-swap in as a spectral kernel.")
	fadeStr := pflag.StringP("fade", "x", "1", "Fade-in/out duration ([[HH:]MM:]SS[.fff]).")
	startStr := pflag.StringP("start", "s", "", "Clip start time in the input.")
	durationStr := pflag.StringP("duration", "d", "", "Clip duration in the input.")
	output := pflag.StringP("output", "o", "", "Output stream; \"-\" writes stdout. Omitted: live playback.")
	pflag.Parse()

	if *pitchMultiple == 0 {
		log.Fatal("pitch multiple must not be zero")
	}

	opts := graph.Options{
		Spec:           defaultSpec,
		WindowLen:      *window,
		BufferDur:      parseDurationFlag("buffer", *bufferStr),
		Factor:         *factor,
		Amplitude:      *amplitude,
		PitchMultiple:  *pitchMultiple,
		FreqKernelPath: *freqKernel,
		Fade:           parseDurationFlag("fade", *fadeStr),
	}

	var clipStart, clipDuration *time.Duration
	if *startStr != "" {
		d := parseDurationFlag("start", *startStr)
		clipStart = &d
	}
	if *durationStr != "" {
		d := parseDurationFlag("duration", *durationStr)
		clipDuration = &d
	}

	switch {
	case *input != "" && *output != "":
		runOffline(*input, *output, opts, clipStart, clipDuration, *rotateChannels)
	case *input != "":
		runLiveFromStream(*input, opts, clipStart, clipDuration, *rotateChannels)
	default:
		runLiveFromDevice(opts)
	}
}

func parseDurationFlag(name, value string) time.Duration {
	d, err := durfmt.Parse(value)
	if err != nil {
		log.Fatal("invalid duration flag", "flag", name, "value", value, "err", err)
	}
	return d
}

// readInput materializes the input stream and applies the clip and
// channel-rotation options.
func readInput(path string, opts graph.Options, clipStart, clipDuration *time.Duration, rotate bool) *audio.Buffer {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			log.Fatal("opening input", "path", path, "err", err)
		}
		defer f.Close()
		r = f
	}

	buf, err := ioaudio.NewRawReader(r, opts.Spec).ReadAll()
	if err != nil {
		log.Fatal("reading input", "path", path, "err", err)
	}
	if clipStart != nil || clipDuration != nil {
		buf.Clip(clipStart, clipDuration)
	}
	if rotate {
		buf.RotateChannels()
	}
	return buf
}

func runOffline(inputPath, outputPath string, opts graph.Options, clipStart, clipDuration *time.Duration, rotate bool) {
	buf := readInput(inputPath, opts, clipStart, clipDuration, rotate)

	var w io.Writer = os.Stdout
	if outputPath != "-" {
		f, err := os.Create(outputPath)
		if err != nil {
			log.Fatal("creating output", "path", outputPath, "err", err)
		}
		defer f.Close()
		w = f
	}

	log.Info("stretching", "input_samples", buf.Len(), "factor", opts.Factor)
	if err := graph.RunOffline(buf, opts, ioaudio.NewRawWriter(w)); err != nil {
		log.Fatal("stretch failed", "err", err)
	}
	log.Info("done", "output", outputPath)
}

func runLiveFromStream(inputPath string, opts graph.Options, clipStart, clipDuration *time.Duration, rotate bool) {
	buf := readInput(inputPath, opts, clipStart, clipDuration, rotate)

	speaker, err := ioaudio.NewSpeaker(int(opts.Spec.SampleRate), int(opts.Spec.Channels))
	if err != nil {
		log.Fatal("opening output device", "err", err)
	}

	expected := graph.ExpectedOutputSamples(buf.Len(), opts.Factor)
	live, err := graph.StartLive(graph.ChunksOf(buf), &expected, speaker, opts)
	if err != nil {
		log.Fatal("starting playback", "err", err)
	}
	waitOrInterrupt(live)
}

func runLiveFromDevice(opts graph.Options) {
	mic, err := ioaudio.NewMicrophone(int(opts.Spec.SampleRate), int(opts.Spec.Channels))
	if err != nil {
		log.Fatal("opening input device", "err", err)
	}
	speaker, err := ioaudio.NewSpeaker(int(opts.Spec.SampleRate), int(opts.Spec.Channels))
	if err != nil {
		log.Fatal("opening output device", "err", err)
	}

	live, err := graph.StartLiveFromDevice(mic, speaker, opts)
	if err != nil {
		log.Fatal("starting live stretch", "err", err)
	}
	waitOrInterrupt(live)
}

// waitOrInterrupt blocks until the pipeline ends on its own (exit 0),
// fading out on the first SIGINT and exiting immediately on a second
// (exit 1 either way).
func waitOrInterrupt(live *graph.Live) {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt)

	finished := make(chan struct{})
	go func() {
		live.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return
	case <-sig:
		log.Info("interrupted, fading out", "fade", interruptFade)
		live.FadeShutdown(interruptFade)
	}

	select {
	case <-finished:
	case <-sig:
		log.Warn("second interrupt, exiting immediately")
	}
	os.Exit(1)
}
