// installation runs the listening-installation mode: it records
// ambient audio continuously, detects acoustic events by running
// amplitude, and plays time-stretched echoes of them back into the
// room.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/rocoder-audio/rocoder/internal/audio"
	"github.com/rocoder-audio/rocoder/internal/ioaudio"
	"github.com/rocoder-audio/rocoder/internal/node"
	"github.com/rocoder-audio/rocoder/internal/processor"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "YAML configuration file; omitted runs the defaults.")
	pflag.Parse()

	config := processor.DefaultInstallationConfig()
	if *configPath != "" {
		loaded, err := loadConfig(*configPath, config)
		if err != nil {
			log.Fatal("loading config", "path", *configPath, "err", err)
		}
		config = loaded
	}

	mic, err := ioaudio.NewMicrophone(int(config.Spec.SampleRate), int(config.Spec.Channels))
	if err != nil {
		log.Fatal("opening input device", "err", err)
	}
	speaker, err := ioaudio.NewSpeaker(int(config.Spec.SampleRate), int(config.Spec.Channels))
	if err != nil {
		log.Fatal("opening output device", "err", err)
	}

	inst := processor.NewInstallation(config, mic, speaker)
	instNode := node.Start[processor.InstallationControlMessage](inst)
	log.Info("installation listening",
		"sample_rate", config.Spec.SampleRate,
		"channels", config.Spec.Channels,
		"activation_db_step", config.AmpActivationDBStep)

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt)
	<-sig
	log.Info("interrupted, shutting down")

	stopped := make(chan struct{})
	go func() {
		instNode.Shutdown()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-sig:
		log.Warn("second interrupt, exiting immediately")
	}
	os.Exit(1)
}

// duration is a time.Duration that unmarshals from YAML strings like
// "300ms" or "10s".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// fileConfig mirrors processor.InstallationConfig with YAML-friendly
// field types. Keys absent from the file keep the default they were
// seeded with.
type fileConfig struct {
	Channels   uint16 `yaml:"channels"`
	SampleRate uint32 `yaml:"sample_rate"`

	MaxStretchers uint8    `yaml:"max_stretchers"`
	MaxSnippetDur duration `yaml:"max_snippet_dur"`

	AmbientVolumeWindowDur duration `yaml:"ambient_volume_window_dur"`
	CurrentVolumeWindowDur duration `yaml:"current_volume_window_dur"`
	AmpActivationDBStep    float32  `yaml:"amp_activation_db_step"`

	WindowSizes []int `yaml:"window_sizes"`

	MinStretchFactor float32 `yaml:"min_stretch_factor"`
	MaxStretchFactor float32 `yaml:"max_stretch_factor"`

	MinPauseBetweenEvents duration `yaml:"min_pause_between_events"`
	MaxPauseBetweenEvents duration `yaml:"max_pause_between_events"`
}

func loadConfig(path string, defaults processor.InstallationConfig) (processor.InstallationConfig, error) {
	fc := fileConfig{
		Channels:               defaults.Spec.Channels,
		SampleRate:             defaults.Spec.SampleRate,
		MaxStretchers:          defaults.MaxStretchers,
		MaxSnippetDur:          duration(defaults.MaxSnippetDur),
		AmbientVolumeWindowDur: duration(defaults.AmbientVolumeWindowDur),
		CurrentVolumeWindowDur: duration(defaults.CurrentVolumeWindowDur),
		AmpActivationDBStep:    defaults.AmpActivationDBStep,
		WindowSizes:            defaults.WindowSizes,
		MinStretchFactor:       defaults.MinStretchFactor,
		MaxStretchFactor:       defaults.MaxStretchFactor,
		MinPauseBetweenEvents:  duration(defaults.MinPauseBetweenEvents),
		MaxPauseBetweenEvents:  duration(defaults.MaxPauseBetweenEvents),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return processor.InstallationConfig{}, err
	}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return processor.InstallationConfig{}, err
	}
	if len(fc.WindowSizes) == 0 {
		return processor.InstallationConfig{}, fmt.Errorf("window_sizes must not be empty")
	}

	return processor.InstallationConfig{
		Spec:                   audio.Spec{Channels: fc.Channels, SampleRate: fc.SampleRate},
		MaxStretchers:          fc.MaxStretchers,
		MaxSnippetDur:          time.Duration(fc.MaxSnippetDur),
		AmbientVolumeWindowDur: time.Duration(fc.AmbientVolumeWindowDur),
		CurrentVolumeWindowDur: time.Duration(fc.CurrentVolumeWindowDur),
		AmpActivationDBStep:    fc.AmpActivationDBStep,
		WindowSizes:            fc.WindowSizes,
		MinStretchFactor:       fc.MinStretchFactor,
		MaxStretchFactor:       fc.MaxStretchFactor,
		MinPauseBetweenEvents:  time.Duration(fc.MinPauseBetweenEvents),
		MaxPauseBetweenEvents:  time.Duration(fc.MaxPauseBetweenEvents),
	}, nil
}
