// Package timeline snaps arbitrary timestamps onto the discrete time steps
// of an overlay.
//
// Steps are kept in the order the overlay declares them. Nearest scans that
// order and keeps the first minimum, so on an exact tie the earlier step wins.
package timeline

import (
	"time"
)

// layouts are tried in order by Parse.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Parse parses an ISO-8601 timestamp. Timestamps without a zone are read as UTC.
func Parse(iso string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, iso); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// isoLayout is the canonical form used for tile requests and the wire:
// UTC with millisecond precision.
const isoLayout = "2006-01-02T15:04:05.000Z"

// Format renders t in UTC with millisecond precision, e.g.
// 2024-01-01T00:00:00.000Z.
func Format(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseSteps parses overlay time steps, dropping entries that do not parse.
// The declared order is preserved.
func ParseSteps(isos []string) []time.Time {
	steps := make([]time.Time, 0, len(isos))
	for _, iso := range isos {
		if t, ok := Parse(iso); ok {
			steps = append(steps, t)
		}
	}
	return steps
}

// Ascending reports whether every entry of isos parses and the parsed
// times strictly increase.
func Ascending(isos []string) bool {
	var prev time.Time
	for i, iso := range isos {
		t, ok := Parse(iso)
		if !ok || (i > 0 && !t.After(prev)) {
			return false
		}
		prev = t
	}
	return true
}

// Nearest returns the member of steps closest to q.
// Ties keep the earlier step. With no steps, q is returned unchanged.
func Nearest(steps []time.Time, q time.Time) time.Time {
	if len(steps) == 0 {
		return q
	}
	best := steps[0]
	bestDist := absDuration(best.Sub(q))
	for _, s := range steps[1:] {
		if d := absDuration(s.Sub(q)); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

// Contains reports whether q is exactly one of steps.
func Contains(steps []time.Time, q time.Time) bool {
	for _, s := range steps {
		if s.Equal(q) {
			return true
		}
	}
	return false
}

// Reconcile applies the overlay-change policy: a current time that is not an
// exact step is replaced by the parsed default. The boolean reports whether
// the time changed. An unparseable default leaves current untouched.
func Reconcile(current time.Time, steps []time.Time, defaultISO string) (time.Time, bool) {
	if Contains(steps, current) {
		return current, false
	}
	def, ok := Parse(defaultISO)
	if !ok {
		return current, false
	}
	return def, !def.Equal(current)
}

// Bounds returns the first and last step, or now for both when there are none.
func Bounds(steps []time.Time, now time.Time) (lo, hi time.Time) {
	if len(steps) == 0 {
		return now, now
	}
	return steps[0], steps[len(steps)-1]
}

// SliderDisabled reports whether a time slider over steps has nothing to choose.
func SliderDisabled(steps []time.Time) bool {
	return len(steps) <= 1
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
