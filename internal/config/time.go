package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var absoluteLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
}

var durationPart = regexp.MustCompile(`(\d+)([wdhms])`)

// ParseSince parses the value of a --since flag: an absolute UTC date or
// timestamp, or a duration counted back from now (e.g. "36h", "2w", "1d12h").
func ParseSince(s string, now time.Time) (time.Time, error) {
	input := strings.TrimSpace(s)
	if input == "" {
		return time.Time{}, fmt.Errorf("time reference is empty")
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, input); err == nil {
			return t, nil
		}
	}

	d, err := ParseDuration(input)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-d), nil
}

// ParseDuration parses a Go duration, additionally accepting d (days) and w
// (weeks) units.
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	matches := durationPart.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("invalid duration: %s", s)
	}

	consumed := 0
	var total time.Duration
	for _, m := range matches {
		if m[0] != consumed {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		consumed = m[1]

		value, err := strconv.ParseInt(s[m[2]:m[3]], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		unit := time.Second
		switch s[m[4]:m[5]] {
		case "w":
			unit = 7 * 24 * time.Hour
		case "d":
			unit = 24 * time.Hour
		case "h":
			unit = time.Hour
		case "m":
			unit = time.Minute
		}
		total += unit * time.Duration(value)
	}

	if consumed != len(s) {
		return 0, fmt.Errorf("invalid duration: %s", s)
	}
	return total, nil
}
