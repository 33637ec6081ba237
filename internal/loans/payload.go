package loans

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/circulation-backend/pkg/enums"
	"github.com/angelmondragon/circulation-backend/pkg/outbox/payloads"
)

// BorrowFacts are the settled facts of a borrow transition.
type BorrowFacts struct {
	MemberID      uuid.UUID
	LoanGroupID   uuid.UUID
	SourceService string
	StartDate     time.Time
	DueDate       time.Time
	Items         []ItemRequest
}

// ReturnFacts are the settled facts of a return transition.
type ReturnFacts struct {
	MemberID      uuid.UUID
	LoanGroupID   uuid.UUID
	SourceService string
	StartDate     time.Time
	DueDate       time.Time
	ReturnDate    time.Time
	Fine          Fine
	Items         []ItemRequest
}

// BuildBorrowEvent assembles the LIBRARY_BORROWED payload. Only the metadata
// timestamp depends on now.
func BuildBorrowEvent(facts BorrowFacts, now time.Time) payloads.BorrowEventPayload {
	chapters, books := itemSections(facts.Items)
	return payloads.BorrowEventPayload{
		Metadata: metadata(facts.MemberID, facts.LoanGroupID, facts.SourceService, enums.EventLibraryBorrowed, now),
		Data: payloads.BorrowEventData{
			NotificationData: payloads.BorrowNotificationData{
				BorrowID:        facts.LoanGroupID,
				BorrowStartDate: FormatDate(facts.StartDate),
				BorrowEndDate:   FormatDate(facts.DueDate),
				Chapters:        chapters,
			},
			InventoryData: payloads.InventoryData{Books: books},
		},
	}
}

// BuildReturnEvent assembles the LIBRARY_RETURNED payload.
func BuildReturnEvent(facts ReturnFacts, now time.Time) payloads.ReturnEventPayload {
	chapters, books := itemSections(facts.Items)
	return payloads.ReturnEventPayload{
		Metadata: metadata(facts.MemberID, facts.LoanGroupID, facts.SourceService, enums.EventLibraryReturned, now),
		Data: payloads.ReturnEventData{
			NotificationData: payloads.ReturnNotificationData{
				BorrowID:         facts.LoanGroupID,
				BorrowStartDate:  FormatDate(facts.StartDate),
				BorrowEndDate:    FormatDate(facts.DueDate),
				BorrowReturnDate: FormatDate(facts.ReturnDate),
				ReturnLately:     facts.Fine.IsLate,
				DaysLate:         facts.Fine.ChargeableLateDays,
				LateFee:          json.Number(facts.Fine.FeeAmount.String()),
				Chapters:         chapters,
			},
			InventoryData: payloads.InventoryData{Books: books},
		},
	}
}

func metadata(memberID, loanGroupID uuid.UUID, source string, eventType enums.OutboxEventType, now time.Time) payloads.Metadata {
	return payloads.Metadata{
		Timestamp:     now.UTC().Format(time.RFC3339),
		MemberCardID:  memberID,
		SourceService: source,
		EventType:     string(eventType),
		EventID:       loanGroupID,
	}
}

func itemSections(items []ItemRequest) ([]payloads.ChapterDetails, []payloads.BookRef) {
	chapters := make([]payloads.ChapterDetails, 0, len(items))
	books := make([]payloads.BookRef, 0, len(items))
	for _, item := range items {
		chapters = append(chapters, item.Chapter)
		books = append(books, payloads.BookRef{BookID: item.ItemID})
	}
	return chapters, books
}
