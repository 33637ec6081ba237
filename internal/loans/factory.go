package loans

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/circulation-backend/pkg/db/models"
	"github.com/angelmondragon/circulation-backend/pkg/outbox/payloads"
)

// ItemRequest is one physical item the member wants to borrow or return.
type ItemRequest struct {
	ItemID  uuid.UUID
	Chapter payloads.ChapterDetails
}

// NewLoanGroup is the unsaved result of LoanFactory.Create.
type NewLoanGroup struct {
	LoanGroupID uuid.UUID
	MemberID    uuid.UUID
	StartDate   time.Time
	DueDate     time.Time
	Loans       []models.Loan
}

// LoanFactory assigns the group id and dates for a borrow.
type LoanFactory struct {
	periodDays int
	newID      func() uuid.UUID
}

// NewLoanFactory builds groups due periodDays after the borrow date.
func NewLoanFactory(periodDays int) LoanFactory {
	return LoanFactory{periodDays: periodDays, newID: uuid.New}
}

// Create builds one loan per item, all sharing the group id and dates.
func (f LoanFactory) Create(memberID uuid.UUID, items []ItemRequest, today time.Time) (*NewLoanGroup, error) {
	if len(items) == 0 {
		return nil, ErrEmptyRequest
	}
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ItemID]; dup {
			return nil, ErrDuplicateItem
		}
		seen[item.ItemID] = struct{}{}
	}

	newID := f.newID
	if newID == nil {
		newID = uuid.New
	}
	start := CivilDate(today)
	group := &NewLoanGroup{
		LoanGroupID: newID(),
		MemberID:    memberID,
		StartDate:   start,
		DueDate:     addDays(start, f.periodDays),
		Loans:       make([]models.Loan, 0, len(items)),
	}
	for _, item := range items {
		group.Loans = append(group.Loans, models.Loan{
			LoanGroupID: group.LoanGroupID,
			MemberID:    memberID,
			ItemID:      item.ItemID,
			ChapterID:   item.Chapter.ChapterID,
			StartDate:   group.StartDate,
			DueDate:     group.DueDate,
		})
	}
	return group, nil
}
