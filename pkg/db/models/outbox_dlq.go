package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/circulation-backend/pkg/enums"
)

// OutboxDLQ is an outbox row the publisher stopped retrying. EventID points
// at the original outbox_events.id.
type OutboxDLQ struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	EventID       uuid.UUID                  `gorm:"column:event_id;type:uuid;not null"`
	EventType     enums.OutboxEventType      `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType  `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID   uuid.UUID                  `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage            `gorm:"column:payload_json;type:jsonb;not null"`
	ErrorReason   enums.OutboxDLQErrorReason `gorm:"column:error_reason;type:text;not null"`
	ErrorMessage  *string                    `gorm:"column:error_message"`
	AttemptCount  int                        `gorm:"column:attempt_count;not null;default:0"`
	FailedAt      time.Time                  `gorm:"column:failed_at"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (OutboxDLQ) TableName() string { return "outbox_dlq" }

// DeadLetter copies a failed outbox row into a DLQ entry.
func DeadLetter(event OutboxEvent, reason enums.OutboxDLQErrorReason, cause string, at time.Time) OutboxDLQ {
	entry := OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		AttemptCount:  event.AttemptCount + 1,
		FailedAt:      at.UTC(),
	}
	if cause != "" {
		entry.ErrorMessage = &cause
	}
	return entry
}

// Replay rebuilds a fresh pending outbox row carrying the same payload.
func (d OutboxDLQ) Replay() OutboxEvent {
	return OutboxEvent{
		ID:            uuid.New(),
		EventType:     d.EventType,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		Payload:       d.Payload,
	}
}
