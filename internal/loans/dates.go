package loans

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Clock returns the current instant.
type Clock func() time.Time

// CivilDate drops the clock part of t, keeping the Y/M/D as seen in t's own
// location, and returns it as midnight UTC.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a civil date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate parses YYYY-MM-DD into a civil date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return t, nil
}

func addDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

const secondsPerDay = 24 * 60 * 60

// daysBetween counts whole days from one civil date to another. It avoids
// time.Duration, which saturates at roughly 292 years.
func daysBetween(from, to time.Time) int {
	return int((CivilDate(to).Unix() - CivilDate(from).Unix()) / secondsPerDay)
}
