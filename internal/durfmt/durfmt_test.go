package durfmt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSecondsOnly(t *testing.T) {
	d, err := Parse("1")
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)
}

func TestParseMinutesAndSeconds(t *testing.T) {
	d, err := Parse("1:1")
	require.NoError(t, err)
	assert.Equal(t, 61*time.Second, d)
}

func TestParseHoursMinutesSeconds(t *testing.T) {
	d, err := Parse("1:1:1")
	require.NoError(t, err)
	assert.Equal(t, 3661*time.Second, d)
}

func TestParseFractionalSeconds(t *testing.T) {
	d, err := Parse("1:1:1.234")
	require.NoError(t, err)
	assert.Equal(t, 3661*time.Second+234*time.Millisecond, d)
}

func TestParseNonsenseFails(t *testing.T) {
	_, err := Parse("adkjfn")
	assert.Error(t, err)
}

func TestParseTooManyFieldsFails(t *testing.T) {
	_, err := Parse("1:2:3:4")
	assert.Error(t, err)
}

func TestParseFloatMinuteFails(t *testing.T) {
	_, err := Parse("1:2.9:4")
	assert.Error(t, err)
}

func TestParseFloatHourFails(t *testing.T) {
	_, err := Parse("1.9:2:4")
	assert.Error(t, err)
}
