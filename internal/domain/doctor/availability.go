package doctor

import (
	"regexp"

	"github.com/medibook/medibook/internal/platform/apperr"
)

// Window is one weekly availability interval, e.g. Monday 09:00-12:00.
type Window struct {
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

var weekdays = map[string]bool{
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
	"Friday": true, "Saturday": true, "Sunday": true,
}

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// IsClock reports whether s is a canonical 24-hour "HH:MM" time.
func IsClock(s string) bool {
	return clockPattern.MatchString(s)
}

// ValidateWindows checks every window independently. Overlaps and ordering
// between windows are not checked.
func ValidateWindows(windows []Window) error {
	for i, w := range windows {
		if !weekdays[w.Day] {
			return apperr.Validation("window %d: day %q is not a weekday name", i, w.Day)
		}
		if !IsClock(w.Start) || !IsClock(w.End) {
			return apperr.Validation("window %d: start and end must be HH:MM", i)
		}
		// Canonical HH:MM compares correctly as text.
		if w.Start >= w.End {
			return apperr.Validation("window %d: start %s must be before end %s", i, w.Start, w.End)
		}
	}
	return nil
}
