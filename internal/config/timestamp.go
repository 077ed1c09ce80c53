package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var startTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseStartTime reads unix seconds, RFC3339, or a bare UTC date. Empty
// input yields the zero time. Sub-second precision is dropped.
func ParseStartTime(input string) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, nil
	}

	if secs, err := strconv.ParseInt(input, 10, 64); err == nil {
		if secs <= 0 {
			return time.Time{}, fmt.Errorf("start time must be positive: %d", secs)
		}
		return time.Unix(secs, 0).UTC(), nil
	}

	for _, layout := range startTimeLayouts {
		if tm, err := time.Parse(layout, input); err == nil {
			return tm.UTC().Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized start time %q", input)
}
