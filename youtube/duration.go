package youtube

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// maxShortLength is the longest video still classified as a short.
const maxShortLength = 60 * time.Second

var isoDurationRegex = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseDuration parses the ISO-8601 durations returned in contentDetails.duration
// (for example "PT1H2M3S" or "P1DT2H").
func parseDuration(s string) (time.Duration, error) {
	m := isoDurationRegex.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", s)
	}

	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", s, err)
		}
		d += time.Duration(n) * unit
	}
	return d, nil
}

// isShort reports whether a contentDetails.duration denotes a short.
// Unparseable or zero durations (upcoming streams report "P0D") are not shorts.
func isShort(duration string) bool {
	d, err := parseDuration(duration)
	if err != nil {
		return false
	}
	return d > 0 && d <= maxShortLength
}
