package models

import (
	"time"

	"github.com/google/uuid"
)

// Loan is one borrowed item inside a loan group. ReturnDate is nil while the
// item is outstanding and is the only column mutated after insert.
type Loan struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement"`
	LoanGroupID uuid.UUID  `gorm:"column:loan_group_id;type:uuid;not null;uniqueIndex:ux_loans_group_item,priority:1"`
	MemberID    uuid.UUID  `gorm:"column:member_id;type:uuid;not null"`
	ItemID      uuid.UUID  `gorm:"column:item_id;type:uuid;not null;uniqueIndex:ux_loans_group_item,priority:2"`
	ChapterID   uuid.UUID  `gorm:"column:chapter_id;type:uuid;not null"`
	StartDate   time.Time  `gorm:"column:start_date;type:date;not null"`
	DueDate     time.Time  `gorm:"column:due_date;type:date;not null"`
	ReturnDate  *time.Time `gorm:"column:return_date;type:date"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (Loan) TableName() string { return "loans" }

// IsOutstanding reports whether the item has not been returned yet.
func (l Loan) IsOutstanding() bool {
	return l.ReturnDate == nil
}
