package loans

import "time"

// CalendarRule counts chargeable days over an inclusive date range, skipping
// the weekdays it was built to exclude.
type CalendarRule struct {
	excluded [7]bool
}

// DefaultCalendar charges Tuesday through Saturday.
var DefaultCalendar = NewCalendarRule(time.Monday, time.Sunday)

// NewCalendarRule excludes the given weekdays. Values outside Sunday..Saturday
// are ignored.
func NewCalendarRule(excluded ...time.Weekday) CalendarRule {
	var rule CalendarRule
	for _, day := range excluded {
		if !validWeekday(day) {
			continue
		}
		rule.excluded[day] = true
	}
	return rule
}

// Excludes reports whether day is never charged.
func (r CalendarRule) Excludes(day time.Weekday) bool {
	return validWeekday(day) && r.excluded[day]
}

func validWeekday(day time.Weekday) bool {
	return day >= time.Sunday && day <= time.Saturday
}

// ChargeableDays returns the number of non-excluded days in [from, to].
// It returns 0 when from is after to.
func (r CalendarRule) ChargeableDays(from, to time.Time) int {
	from, to = CivilDate(from), CivilDate(to)
	if from.After(to) {
		return 0
	}

	total := daysBetween(from, to) + 1
	perWeek := 0
	for _, skip := range r.excluded {
		if !skip {
			perWeek++
		}
	}

	count := (total / 7) * perWeek
	day := from.Weekday()
	for i := 0; i < total%7; i++ {
		if !r.excluded[day] {
			count++
		}
		day = (day + 1) % 7
	}
	return count
}
