// Package util provides small helpers shared across the engine.
package util

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatTimecode renders a millisecond timestamp as HH:MM:SS.mmm.
// Negative inputs are treated as zero.
func FormatTimecode(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := (ms % 3_600_000) / 60_000
	s := (ms % 60_000) / 1000
	frac := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, frac)
}

// ParseTimecode parses HH:MM:SS.mmm (or HH:MM:SS) back into milliseconds.
func ParseTimecode(tc string) (int64, error) {
	parts := strings.Split(tc, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timecode %q: want HH:MM:SS.mmm", tc)
	}

	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || h < 0 {
		return 0, fmt.Errorf("invalid hours in timecode %q", tc)
	}
	m, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minutes in timecode %q", tc)
	}

	secPart := parts[2]
	msPart := "0"
	if dot := strings.IndexByte(secPart, '.'); dot >= 0 {
		msPart = secPart[dot+1:]
		secPart = secPart[:dot]
	}
	s, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil || s < 0 || s > 59 {
		return 0, fmt.Errorf("invalid seconds in timecode %q", tc)
	}

	// Pad or truncate the fractional part to milliseconds.
	switch len(msPart) {
	case 0:
		msPart = "000"
	case 1:
		msPart += "00"
	case 2:
		msPart += "0"
	default:
		msPart = msPart[:3]
	}
	frac, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid milliseconds in timecode %q", tc)
	}

	return h*3_600_000 + m*60_000 + s*1000 + frac, nil
}

// ClampMs clamps v into [lo, hi]. If hi < lo the lower bound wins.
func ClampMs(v, lo, hi int64) int64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AbsMs returns the absolute value of a millisecond delta.
func AbsMs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
