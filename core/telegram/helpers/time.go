package helpers

import (
	"regexp"
	"strings"
	"time"
)

// deadlinePattern matches the strict DD.MM.YYYY input format used by task
// creation flows. Anything else is rejected before time parsing runs.
var deadlinePattern = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)

const deadlineLayout = "02.01.2006"

// ParseDeadline parses strict DD.MM.YYYY input in the given location.
// It returns false for malformed input and for impossible dates (32.01.2026).
func ParseDeadline(input string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if !deadlinePattern.MatchString(s) {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(deadlineLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDeadline renders a deadline back in the DD.MM.YYYY wire format.
func FormatDeadline(t time.Time) string {
	return t.Format(deadlineLayout)
}

// DaysLeft reports whole days between now and the deadline, rounding up, so a
// deadline later today counts as 1 day. Past deadlines yield negative values.
func DaysLeft(deadline, now time.Time) int {
	diff := deadline.Sub(now)
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) > 0 {
		days++
	}
	return days
}
