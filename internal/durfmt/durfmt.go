// Package durfmt parses the "[hours:][minutes:]seconds" duration
// strings accepted by the rocoder CLI flags.
package durfmt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse parses a duration string of the form "S", "M:S", or "H:M:S",
// where S may have a fractional part and H/M must be whole numbers.
func Parse(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 1 || len(parts) > 3 {
		return 0, fmt.Errorf("durfmt: invalid duration specification %q", s)
	}
	// parts is in hours:minutes:seconds order when all three are
	// given, so work from the end (seconds) backward.
	secondsStr := parts[len(parts)-1]

	seconds, err := strconv.ParseFloat(secondsStr, 32)
	if err != nil {
		return 0, fmt.Errorf("durfmt: invalid seconds value %q: %w", secondsStr, err)
	}
	milliseconds := int64(float32(seconds) * 1000)
	dur := time.Duration(milliseconds) * time.Millisecond

	if len(parts) >= 2 {
		minutes, err := strconv.ParseUint(parts[len(parts)-2], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("durfmt: invalid minutes value %q: %w", parts[len(parts)-2], err)
		}
		dur += time.Duration(minutes) * 60 * time.Second
	}
	if len(parts) == 3 {
		hours, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("durfmt: invalid hours value %q: %w", parts[0], err)
		}
		dur += time.Duration(hours) * 60 * 60 * time.Second
	}
	return dur, nil
}
