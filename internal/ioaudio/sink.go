package ioaudio

// Sink is a consumer of audio: it drives fill once per output buffer
// it needs filled, the same shape player_processor.rs's cpal output
// callback uses to call straight into the mixer (`mixer.fill_buffer(&mut
// buffer)`) with no intermediate channel hop.
type Sink interface {
	// Start begins playback, calling fill to populate each output
	// buffer as the underlying device requests one.
	Start(fill func(out []float32)) error
	Stop() error
}

// NullSink discards whatever it's given; it never calls fill. Used
// for headless runs (tests, the installation controller's recorder
// side) and any path that doesn't want live playback.
type NullSink struct{}

func (NullSink) Start(fill func(out []float32)) error { return nil }
func (NullSink) Stop() error                          { return nil }
