package payloads

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Field names in this file are consumed by the inventory and notification
// services and must stay stable.

// Metadata heads every loan event.
type Metadata struct {
	Timestamp     string    `json:"timestamp"`
	MemberCardID  uuid.UUID `json:"memberCardUUID"`
	SourceService string    `json:"source_service"`
	EventType     string    `json:"event_type"`
	EventID       uuid.UUID `json:"event_uuid"`
}

// ChapterDetails describes the edition/chapter an item belongs to.
type ChapterDetails struct {
	ChapterID       uuid.UUID `json:"chapter_uuid"`
	Title           string    `json:"title,omitempty"`
	SecondTitle     string    `json:"second_title,omitempty"`
	ChapterNumber   int       `json:"chapter_number,omitempty"`
	TotalPages      int       `json:"total_pages,omitempty"`
	CoverArtworkURL string    `json:"cover_artwork_url,omitempty"`
}

// BookRef identifies a physical item to decrement or restock.
type BookRef struct {
	BookID uuid.UUID `json:"book_uuid"`
}

type InventoryData struct {
	Books []BookRef `json:"books"`
}

type BorrowNotificationData struct {
	BorrowID        uuid.UUID        `json:"borrow_uuid"`
	BorrowStartDate string           `json:"borrow_start_date"`
	BorrowEndDate   string           `json:"borrow_end_date"`
	Chapters        []ChapterDetails `json:"chapters"`
}

type BorrowEventData struct {
	NotificationData BorrowNotificationData `json:"notification_data"`
	InventoryData    InventoryData          `json:"inventory_data"`
}

// BorrowEventPayload is published for LIBRARY_BORROWED.
type BorrowEventPayload struct {
	Metadata Metadata        `json:"metadata"`
	Data     BorrowEventData `json:"data"`
}

type ReturnNotificationData struct {
	BorrowID         uuid.UUID        `json:"borrow_uuid"`
	BorrowStartDate  string           `json:"borrow_start_date"`
	BorrowEndDate    string           `json:"borrow_end_date"`
	BorrowReturnDate string           `json:"borrow_return_date"`
	ReturnLately     bool             `json:"return_lately"`
	DaysLate         int              `json:"days_late"`
	LateFee          json.Number      `json:"late_fee"`
	Chapters         []ChapterDetails `json:"chapters"`
}

type ReturnEventData struct {
	NotificationData ReturnNotificationData `json:"notification_data"`
	InventoryData    InventoryData          `json:"inventory_data"`
}

// ReturnEventPayload is published for LIBRARY_RETURNED.
type ReturnEventPayload struct {
	Metadata Metadata        `json:"metadata"`
	Data     ReturnEventData `json:"data"`
}
