package loans

import (
	"time"

	"github.com/angelmondragon/circulation-backend/pkg/enums"
)

// PeriodWindow returns the inclusive date range a reporting period covers.
// Weeks run Monday through Sunday.
func PeriodWindow(period enums.BorrowPeriod, today time.Time) (time.Time, time.Time) {
	today = CivilDate(today)
	switch period {
	case enums.BorrowPeriodLastWeek:
		monday := startOfWeek(today)
		return addDays(monday, -7), addDays(monday, -1)
	case enums.BorrowPeriodLastMonth:
		first := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		last := time.Date(today.Year(), today.Month(), 0, 0, 0, 0, 0, time.UTC)
		return first, last
	default:
		monday := startOfWeek(today)
		return monday, addDays(monday, 6)
	}
}

func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return addDays(day, -offset)
}
