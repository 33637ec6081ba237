package loans

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EligibilitySnapshot is the member state a borrow decision depends on.
type EligibilitySnapshot struct {
	HasOutstandingLoan         bool
	HasLoanHistory             bool
	LatestReturnedStartedToday bool
}

// CheckEligibility decides whether a member may open a new loan group.
func CheckEligibility(snapshot EligibilitySnapshot) error {
	if snapshot.HasOutstandingLoan {
		return ErrOutstandingLoanConflict
	}
	if snapshot.HasLoanHistory && snapshot.LatestReturnedStartedToday {
		return ErrDailyLimitExceeded
	}
	return nil
}

type eligibilityReader interface {
	HasOutstandingLoan(ctx context.Context, memberID uuid.UUID) (bool, error)
	HasAnyLoanHistory(ctx context.Context, memberID uuid.UUID) (bool, error)
	LatestReturnedLoanStartDate(ctx context.Context, memberID uuid.UUID) (*time.Time, error)
}

func loadEligibility(ctx context.Context, repo eligibilityReader, memberID uuid.UUID, today time.Time) (EligibilitySnapshot, error) {
	var snap EligibilitySnapshot
	outstanding, err := repo.HasOutstandingLoan(ctx, memberID)
	if err != nil {
		return snap, err
	}
	snap.HasOutstandingLoan = outstanding
	if outstanding {
		return snap, nil
	}

	history, err := repo.HasAnyLoanHistory(ctx, memberID)
	if err != nil {
		return snap, err
	}
	snap.HasLoanHistory = history
	if !history {
		return snap, nil
	}

	latest, err := repo.LatestReturnedLoanStartDate(ctx, memberID)
	if err != nil {
		return snap, err
	}
	snap.LatestReturnedStartedToday = latest != nil && CivilDate(*latest).Equal(CivilDate(today))
	return snap, nil
}
