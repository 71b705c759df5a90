// Package mixer combines multiple audio buses into a single
// interleaved output buffer, applying a per-layer, time-keyed
// amplitude envelope to each one.
package mixer

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rocoder-audio/rocoder/internal/audio"
	"github.com/rocoder-audio/rocoder/internal/dspmath"
)

// Keyframe is an amplitude waypoint in a Layer's envelope.
type Keyframe struct {
	SamplePos int
	Val       float32
}

func keyframeEqual(a, b Keyframe) bool {
	delta := a.Val - b.Val
	if delta < 0 {
		delta = -delta
	}
	return a.SamplePos == b.SamplePos && delta < 0.001
}

// Layer is one bus's playback entry in the Mixer.
type Layer struct {
	bus                  *audio.Bus
	shutdownWhenFinished bool

	frame    []audio.Chunk
	framePos int

	totalSamplesMixed int

	// keyframes is kept sorted by SamplePos descending: the active
	// pair is keyframes[len-1] (previous) and keyframes[len-2]
	// (next).
	keyframes []Keyframe

	lastStatusReportInstant time.Time
}

// Mixer combines any number of Layers into one interleaved stream. It
// is safe for concurrent use: the audio callback and control-plane
// operations (InsertLayer, fades) may run from different goroutines.
type Mixer struct {
	mu       sync.Mutex
	spec     audio.Spec
	layers   map[uuid.UUID]*Layer
	finished atomic.Bool
}

// New builds an empty Mixer for the given stream format.
func New(spec audio.Spec) *Mixer {
	return &Mixer{spec: spec, layers: make(map[uuid.UUID]*Layer)}
}

// IsFinished reports whether a layer with shutdownWhenFinished=true
// has disconnected, ending the mixer's overall output.
func (m *Mixer) IsFinished() bool {
	return m.finished.Load()
}

// InsertLayer adds bus as a new playback layer under id.
func (m *Mixer) InsertLayer(id uuid.UUID, bus *audio.Bus, shutdownWhenFinished bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.layers[id]; exists {
		return fmt.Errorf("mixer: layer %s already exists", id)
	}
	m.layers[id] = &Layer{bus: bus, shutdownWhenFinished: shutdownWhenFinished}
	return nil
}

// Fade places two keyframes on the layer: (startDur, startVal) and
// (startDur+dur, endVal).
func (m *Mixer) Fade(id uuid.UUID, startDur time.Duration, startVal float32, dur time.Duration, endVal float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	layer, ok := m.layers[id]
	if !ok {
		return fmt.Errorf("mixer: no such layer %s", id)
	}
	start := m.spec.DurationToSample(startDur)
	end := m.spec.DurationToSample(startDur + dur)
	layer.keyframes = append(layer.keyframes, Keyframe{SamplePos: start, Val: startVal}, Keyframe{SamplePos: end, Val: endVal})
	sortKeyframesDescending(layer.keyframes)
	return nil
}

// FadeFromNow places two keyframes starting at the layer's current
// mixed-sample position: one pinning the current amplitude there, and
// one reaching target at dur later.
func (m *Mixer) FadeFromNow(id uuid.UUID, target float32, dur time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fadeFromNowLocked(id, target, dur)
}

func (m *Mixer) fadeFromNowLocked(id uuid.UUID, target float32, dur time.Duration) error {
	layer, ok := m.layers[id]
	if !ok {
		return fmt.Errorf("mixer: no such layer %s", id)
	}
	currentAmp := layer.currentAmp()
	layer.keyframes = append(layer.keyframes,
		Keyframe{SamplePos: layer.totalSamplesMixed, Val: currentAmp},
		Keyframe{SamplePos: layer.totalSamplesMixed + m.spec.DurationToSample(dur), Val: target},
	)
	sortKeyframesDescending(layer.keyframes)
	return nil
}

// FadeInOut schedules a standard entrance (if fadeInDur is non-nil)
// and exit (if fadeOutDur is non-nil AND the bus reports an expected
// total sample count).
func (m *Mixer) FadeInOut(id uuid.UUID, fadeInDur, fadeOutDur *time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	layer, ok := m.layers[id]
	if !ok {
		return fmt.Errorf("mixer: no such layer %s", id)
	}
	if fadeInDur != nil {
		layer.keyframes = append(layer.keyframes,
			Keyframe{SamplePos: 0, Val: 0},
			Keyframe{SamplePos: m.spec.DurationToSample(*fadeInDur), Val: 1.0},
		)
	}
	if fadeOutDur != nil && layer.bus.ExpectedTotalSamples != nil {
		total := *layer.bus.ExpectedTotalSamples
		start := total - m.spec.DurationToSample(*fadeOutDur)
		if start < 0 {
			start = 0
		}
		layer.keyframes = append(layer.keyframes,
			Keyframe{SamplePos: start, Val: 1.0},
			Keyframe{SamplePos: total, Val: 0},
		)
	}
	sortKeyframesDescending(layer.keyframes)
	return nil
}

// FadeOutAllLayers fades every current layer to silence over dur and
// discards any keyframes scheduled after that fade ends, implementing
// a global soft shutdown.
func (m *Mixer) FadeOutAllLayers(dur time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, layer := range m.layers {
		m.fadeFromNowLocked(id, 0, dur)
		layer.clearKeyframesAfter(layer.totalSamplesMixed + m.spec.DurationToSample(dur))
	}
}

// FillBuffer writes interleaved samples into out, whose length must be
// a multiple of the mixer's channel count.
func (m *Mixer) FillBuffer(out []float32) {
	channels := int(m.spec.Channels)
	for i := range out {
		out[i] = 0
	}
	if channels == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	frames := len(out) / channels
	for f := 0; f < frames; f++ {
		for id, layer := range m.layers {
			layer.pruneKeyframes()

			if layer.frame == nil || layer.framePos >= shortestChannel(layer.frame) {
				frame, ok := layer.bus.CollectChunk()
				if !ok {
					delete(m.layers, id)
					if layer.shutdownWhenFinished {
						m.finished.Store(true)
					}
					continue
				}
				layer.frame = frame
				layer.framePos = 0
			}

			amp := layer.currentAmp()
			for c := 0; c < channels && c < len(layer.frame); c++ {
				if layer.framePos < len(layer.frame[c]) {
					out[f*channels+c] += layer.frame[c][layer.framePos] * amp
				}
			}
			layer.framePos++
			layer.totalSamplesMixed++
		}
	}
}

func shortestChannel(frame []audio.Chunk) int {
	if len(frame) == 0 {
		return 0
	}
	min := len(frame[0])
	for _, c := range frame[1:] {
		if len(c) < min {
			min = len(c)
		}
	}
	return min
}

// clearKeyframesAfter drops every keyframe scheduled past samplePos,
// preserving the descending sort.
func (l *Layer) clearKeyframesAfter(samplePos int) {
	kept := l.keyframes[:0]
	for _, k := range l.keyframes {
		if k.SamplePos <= samplePos {
			kept = append(kept, k)
		}
	}
	l.keyframes = kept
}

// pruneKeyframes drops the keyframe pair's stale "previous" entry once
// playback has advanced past the "next" one, sliding the active
// window forward.
func (l *Layer) pruneKeyframes() {
	for len(l.keyframes) > 1 {
		next := l.keyframes[len(l.keyframes)-2]
		if next.SamplePos >= l.totalSamplesMixed {
			break
		}
		l.keyframes = l.keyframes[:len(l.keyframes)-1]
	}
}

func (l *Layer) currentAmp() float32 {
	n := len(l.keyframes)
	switch {
	case n == 0:
		return 1.0
	case n == 1:
		return l.keyframes[0].Val
	default:
		prev := l.keyframes[n-1]
		next := l.keyframes[n-2]
		if next.SamplePos == prev.SamplePos {
			return next.Val
		}
		progress := float32(l.totalSamplesMixed-prev.SamplePos) / float32(next.SamplePos-prev.SamplePos)
		return dspmath.SqrtInterp(prev.Val, next.Val, progress)
	}
}

func sortKeyframesDescending(k []Keyframe) {
	// insertion sort: keyframe lists are tiny (a handful of fades per
	// layer), so this avoids pulling in sort.Slice's overhead for no
	// benefit.
	for i := 1; i < len(k); i++ {
		for j := i; j > 0 && k[j].SamplePos > k[j-1].SamplePos; j-- {
			k[j], k[j-1] = k[j-1], k[j]
		}
	}
}

// NewLayerID returns a fresh random layer identifier, the way the
// installation controller mints one per detected event.
func NewLayerID() uuid.UUID {
	return uuid.New()
}

// RandomDuration picks a uniform random duration in [min, max), or
// min when max <= min. It is
// exported for the installation controller's event-parameter rolls.
func RandomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
