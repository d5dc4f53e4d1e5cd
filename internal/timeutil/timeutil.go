package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration extends time.ParseDuration with day (d) and week (w) units.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration string")
	}

	if dur, err := time.ParseDuration(s); err == nil {
		return dur, nil
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}

	numStr := s[:len(s)-1]
	unit := s[len(s)-1:]

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration number: %s", numStr)
	}
	if num < 0 {
		return 0, fmt.Errorf("negative duration: %s", s)
	}

	switch unit {
	case "d":
		return time.Duration(num) * 24 * time.Hour, nil
	case "w":
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration unit: %s", unit)
	}
}

// ParseSince turns a history cutoff into an absolute time. It accepts
// RFC3339, a bare date, or a lookback like "7d", "-36h" or "2w"; lookbacks
// always point into the past. An empty string means no cutoff.
func ParseSince(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.UTC); err == nil {
		return &t, nil
	}

	dur, err := ParseDuration(strings.TrimPrefix(s, "-"))
	if err != nil {
		return nil, fmt.Errorf("invalid since value %q: %w", s, err)
	}
	t := now.Add(-dur)
	return &t, nil
}
