package loans

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/circulation-backend/pkg/enums"
)

// BorrowRequest opens a new loan group for the member.
type BorrowRequest struct {
	MemberID uuid.UUID
	Items    []ItemRequest
}

// ReturnRequest closes an open loan group. Items are echoed into the return
// event; when empty, the stored rows are used instead.
type ReturnRequest struct {
	MemberID    uuid.UUID
	LoanGroupID uuid.UUID
	Items       []ItemRequest
}

type BorrowConfirmation struct {
	LoanGroupID uuid.UUID `json:"loan_group_id"`
	StartDate   string    `json:"start_date"`
	DueDate     string    `json:"due_date"`
	ItemCount   int       `json:"item_count"`
}

type ReturnConfirmation struct {
	LoanGroupID        uuid.UUID       `json:"loan_group_id"`
	IsLate             bool            `json:"is_late"`
	ChargeableLateDays int             `json:"chargeable_late_days"`
	FeeAmount          decimal.Decimal `json:"fee_amount"`
}

type LoanItem struct {
	ItemID    uuid.UUID `json:"item_id"`
	ChapterID uuid.UUID `json:"chapter_id"`
}

// LoanGroupSummary is one borrow transaction in a member's history.
type LoanGroupSummary struct {
	LoanGroupID uuid.UUID       `json:"loan_group_id"`
	StartDate   string          `json:"start_date"`
	DueDate     string          `json:"due_date"`
	ReturnDate  *string         `json:"return_date"`
	IsLate      bool            `json:"is_late"`
	LateDays    int             `json:"late_days"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
	Items       []LoanItem      `json:"items"`
}

type HistoryPage struct {
	MemberID           uuid.UUID          `json:"member_id"`
	Groups             []LoanGroupSummary `json:"loan_groups"`
	HasUnreturned      bool               `json:"has_unreturned"`
	UnreturnedPosition *int               `json:"unreturned_position,omitempty"`
	Page               int                `json:"page"`
	Size               int                `json:"size"`
	Total              int64              `json:"total"`
	TotalPages         int                `json:"total_pages"`
}

type ChapterBorrowCount struct {
	ChapterID   uuid.UUID `json:"chapter_id"`
	BorrowCount int64     `json:"borrow_count"`
}

type TopChaptersPage struct {
	Period   enums.BorrowPeriod   `json:"period"`
	From     string               `json:"from"`
	To       string               `json:"to"`
	Chapters []ChapterBorrowCount `json:"chapters"`
	Page     int                  `json:"page"`
	Size     int                  `json:"size"`
	Total    int64                `json:"total"`
}
