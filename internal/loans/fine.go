package loans

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fine is the outcome of settling a loan group.
type Fine struct {
	IsLate             bool
	ChargeableLateDays int
	FeeAmount          decimal.Decimal
}

type FineCalculator struct {
	calendar   CalendarRule
	unitFine   decimal.Decimal
	periodDays int
}

// NewFineCalculator charges unitFine per chargeable late day under calendar.
func NewFineCalculator(calendar CalendarRule, unitFine decimal.Decimal, periodDays int) FineCalculator {
	return FineCalculator{calendar: calendar, unitFine: unitFine, periodDays: periodDays}
}

// Compute charges unitFine per chargeable day in (dueDate, returnDate].
// A return dated before the loan could have started is rejected.
func (c FineCalculator) Compute(dueDate, returnDate time.Time) (Fine, error) {
	due, returned := CivilDate(dueDate), CivilDate(returnDate)
	if returned.Before(addDays(due, -c.periodDays)) {
		return Fine{}, ErrInvalidDateOrdering
	}
	if !returned.After(due) {
		return Fine{FeeAmount: decimal.Zero}, nil
	}
	days := c.calendar.ChargeableDays(addDays(due, 1), returned)
	return Fine{
		IsLate:             true,
		ChargeableLateDays: days,
		FeeAmount:          c.unitFine.Mul(decimal.NewFromInt(int64(days))),
	}, nil
}
