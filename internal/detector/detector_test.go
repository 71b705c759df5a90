package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPowerFloorsAtMinDecibelsForSilence(t *testing.T) {
	assert.Equal(t, float32(MinDecibels), Power([]float32{0, 0, 0}))
	assert.Equal(t, float32(MinDecibels), Power(nil))
}

func TestPowerSingleSample(t *testing.T) {
	assert.InDelta(t, 0.0, Power([]float32{1.0}), 1e-4)
	assert.InDelta(t, -19.999999, Power([]float32{0.1}), 1e-3)
}

func TestPowerNeverBelowFloor(t *testing.T) {
	assert.GreaterOrEqual(t, Power([]float32{1e-20}), float32(MinDecibels))
}

func TestEMAUpdateWeightsByChunkFraction(t *testing.T) {
	ema := NewEMA(10, 0)
	got := ema.Update(5, 10)
	assert.InDelta(t, 5.0, got, 1e-6)
	got = ema.Update(10, 0)
	assert.InDelta(t, 0.0, got, 1e-6)
}

func TestShouldActivate(t *testing.T) {
	assert.True(t, ShouldActivate(true, 200, 256, 10, 0, 2))
	assert.False(t, ShouldActivate(false, 200, 256, 10, 0, 2), "cooldown not elapsed")
	assert.False(t, ShouldActivate(true, 100, 256, 10, 0, 2), "ring not half full")
	assert.False(t, ShouldActivate(true, 200, 256, 1, 0, 2), "not loud enough yet")
}

func TestShouldDeactivate(t *testing.T) {
	assert.True(t, ShouldDeactivate(0, 10, 0, 2), "listen start decayed to zero")
	assert.True(t, ShouldDeactivate(5, -5, 0, 2), "dropped below ambient")
	assert.False(t, ShouldDeactivate(5, 1, 0, 2))
}

func TestAutocropFindsSignalRange(t *testing.T) {
	amplitudes := []float32{0.0, 0.1, 1.0, 0.4, 0.8, 1.0, 0.1, 0.0}
	start, end, ok := Autocrop(amplitudes, 25)
	assert.True(t, ok)
	assert.Equal(t, 2, start)
	assert.Equal(t, 6, end)
}

func TestAutocropNoneFoundWhenAllBelowThreshold(t *testing.T) {
	_, _, ok := Autocrop([]float32{0, 0, 0}, 10)
	assert.False(t, ok)
}

func TestAutocropEmptyInput(t *testing.T) {
	_, _, ok := Autocrop(nil, 25)
	assert.False(t, ok)
}
