package loans

import (
	"errors"

	pkgerrors "github.com/angelmondragon/circulation-backend/pkg/errors"
)

var (
	ErrOutstandingLoanConflict = errors.New("member already has an outstanding loan group")
	ErrDailyLimitExceeded      = errors.New("member already completed a loan cycle today")
	ErrEmptyRequest            = errors.New("loan request contains no items")
	ErrDuplicateItem           = errors.New("loan request lists the same item twice")
	ErrInvalidDateOrdering     = errors.New("return date precedes the loan start date")
	ErrLoanNotFound            = errors.New("no open loan group found for member")
)

type rejection struct {
	sentinel error
	code     pkgerrors.Code
	message  string
	reason   string
}

var rejections = []rejection{
	{ErrOutstandingLoanConflict, pkgerrors.CodeConflict, "member has an outstanding loan", "outstanding_loan"},
	{ErrDailyLimitExceeded, pkgerrors.CodeForbidden, "daily borrow limit reached", "daily_limit"},
	{ErrEmptyRequest, pkgerrors.CodeValidation, "at least one item is required", "empty_request"},
	{ErrDuplicateItem, pkgerrors.CodeValidation, "items must be unique", "duplicate_item"},
	{ErrInvalidDateOrdering, pkgerrors.CodeValidation, "return date precedes loan start", "invalid_date_ordering"},
	{ErrLoanNotFound, pkgerrors.CodeNotFound, "loan not found", "loan_not_found"},
}

// classify maps engine errors onto API error codes. The sentinel stays in
// the chain so errors.Is keeps working for callers.
func classify(err error) (error, string) {
	if err == nil {
		return nil, ""
	}
	for _, r := range rejections {
		if errors.Is(err, r.sentinel) {
			return pkgerrors.Wrap(r.code, err, r.message), r.reason
		}
	}
	if pkgerrors.As(err) != nil {
		return err, ""
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loan store unavailable"), ""
}
