package enums

import "strings"

// BorrowPeriod selects the date window used by top-chapter rankings.
type BorrowPeriod string

const (
	BorrowPeriodCurrentWeek BorrowPeriod = "currentweek"
	BorrowPeriodLastWeek    BorrowPeriod = "lastweek"
	BorrowPeriodLastMonth   BorrowPeriod = "lastmonth"
)

var borrowPeriods = valueSet[BorrowPeriod]{BorrowPeriodCurrentWeek, BorrowPeriodLastWeek, BorrowPeriodLastMonth}

func (p BorrowPeriod) IsValid() bool { return borrowPeriods.has(p) }

// ParseBorrowPeriod is case-insensitive and falls back to the current week.
func ParseBorrowPeriod(value string) BorrowPeriod {
	period, err := borrowPeriods.parse("borrow period", strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return BorrowPeriodCurrentWeek
	}
	return period
}
