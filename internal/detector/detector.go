// Package detector implements the running-amplitude event detector:
// the peak-based decibel measurement, the pair of exponential moving
// averages (ambient and current) built on top of it, the idle/active
// transition conditions, and the percentile-based autocrop helper used
// to trim a captured snippet before stretching it.
package detector

import (
	"math"
	"sort"
)

// MinDecibels is the floor returned by Power for a silent (or
// numerically negligible) chunk, avoiding -Inf from log10(0).
const MinDecibels = -99999999.0

// Power measures a chunk's peak amplitude in decibels relative to full
// scale: 20*log10(max(|sample|)), floored at MinDecibels. It is
// numerically stable for an all-zero chunk.
func Power(samples []float32) float32 {
	var raw float32
	for _, s := range samples {
		a := s
		if a < 0 {
			a = -a
		}
		if a > raw {
			raw = a
		}
	}
	if raw == 0 {
		return MinDecibels
	}
	db := float32(20 * math.Log10(float64(raw)))
	if db < MinDecibels {
		return MinDecibels
	}
	return db
}

// EMA is a chunked exponential moving average over chunk power
// measurements, sized to a window of WindowSamples. Each update weighs
// the new chunk's power by how much of the window its length
// represents, per the update rule:
//
//	new = old*(N-L)/N + value*L/N
type EMA struct {
	WindowSamples int
	value         float32
}

// NewEMA builds an EMA over the given window size (in samples), seeded
// with an initial value.
func NewEMA(windowSamples int, initial float32) *EMA {
	return &EMA{WindowSamples: windowSamples, value: initial}
}

// Value returns the average's current value.
func (e *EMA) Value() float32 {
	return e.value
}

// Update folds in one new chunk's power measurement, where chunkLen is
// the number of samples the measurement was taken over.
func (e *EMA) Update(chunkLen int, power float32) float32 {
	n := float32(e.WindowSamples)
	l := float32(chunkLen)
	if l > n {
		l = n
	}
	e.value = e.value*((n-l)/n) + power*(l/n)
	return e.value
}

// ListeningState is the installation controller's two-state machine:
// Idle (listening for an event to begin) or Active (currently
// recording one).
type ListeningState int

const (
	Idle ListeningState = iota
	Active
)

// ShouldActivate reports whether an Idle controller should transition
// to Active: the cooldown from the previous event has elapsed, the
// recording ring is at least half full, and the current level has
// risen activationStep dB above the ambient level.
func ShouldActivate(cooldownElapsed bool, ringLen, ringCap int, current, ambient, activationStep float32) bool {
	return cooldownElapsed && ringLen >= ringCap/2 && current > ambient+activationStep
}

// ShouldDeactivate reports whether an Active controller should end the
// event: either the ring has fully overwritten the samples captured
// since the event started (listenStart decayed to zero), or the
// current level has dropped activationStep dB below ambient.
func ShouldDeactivate(listenStart int, current, ambient, activationStep float32) bool {
	return listenStart <= 0 || current < ambient-activationStep
}

// Autocrop finds the [start, end) index range of amplitudes that lie
// above the threshold_percentile noise floor, matching the source's
// determine_autocrop_points/determine_noise_threshold pair exactly
// (including its inclusive "last signal bin plus one, clamped" end
// rule). It reports ok=false if every amplitude is at or below the
// threshold.
func Autocrop(amplitudes []float32, percentile float64) (start, end int, ok bool) {
	if len(amplitudes) == 0 {
		return 0, 0, false
	}
	threshold := noiseThreshold(amplitudes, percentile)

	start = -1
	for i, a := range amplitudes {
		if a > threshold {
			start = i
			break
		}
	}
	if start == -1 {
		return 0, 0, false
	}

	lastSignal := -1
	for i := len(amplitudes) - 1; i >= 0; i-- {
		if amplitudes[i] > threshold {
			lastSignal = i
			break
		}
	}
	end = lastSignal + 1
	if end > len(amplitudes)-1 {
		end = len(amplitudes) - 1
	}
	return start, end, true
}

func noiseThreshold(amplitudes []float32, percentile float64) float32 {
	sorted := make([]float32, len(amplitudes))
	copy(sorted, amplitudes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(math.Floor(percentile / 100.0 * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
