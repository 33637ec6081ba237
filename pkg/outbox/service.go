package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/circulation-backend/pkg/db/models"
	"github.com/angelmondragon/circulation-backend/pkg/enums"
	"github.com/angelmondragon/circulation-backend/pkg/logger"
)

// DomainEvent is what callers hand to Emit inside their write transaction.
// EventID defaults to a fresh UUID when nil.
type DomainEvent struct {
	EventID       uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("invalid outbox event type %q", e.EventType)
	case e.AggregateID == uuid.Nil:
		return errors.New("aggregate id required")
	}
	return nil
}

// row renders the event as a pending outbox row stamped at now.
func (e DomainEvent) row(now time.Time) (models.OutboxEvent, string, error) {
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	eventID := e.EventID
	if eventID == uuid.Nil {
		eventID = uuid.New()
	}
	envelope, err := newEnvelope(eventID, occurred, e.Actor, e.Data)
	if err != nil {
		return models.OutboxEvent{}, "", err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, "", fmt.Errorf("marshal envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       payload,
		CreatedAt:     now,
	}, envelope.EventID, nil
}

// Service queues loan events next to the state change that produced them.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{
		repo: repo,
		logg: logg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Emit records the event in the caller's transaction so it commits or rolls
// back together with the state change it describes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return err
	}
	row, eventID, err := event.row(s.now())
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("queue %s: %w", event.EventType, err)
	}

	if s.logg == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"aggregate_id":   event.AggregateID.String(),
		"aggregate_type": event.AggregateType,
		"event_id":       eventID,
		"event_type":     event.EventType,
		"outbox_id":      row.ID.String(),
	}), "outbox event queued")
	return nil
}
