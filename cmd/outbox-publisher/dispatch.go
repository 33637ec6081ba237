package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/circulation-backend/pkg/db/models"
	"github.com/angelmondragon/circulation-backend/pkg/enums"
	"github.com/angelmondragon/circulation-backend/pkg/outbox/registry"
)

const (
	publishTimeout = 15 * time.Second
	guardConsumer  = "outbox-publisher"
)

// outcome is what happens to a claimed row once its publish attempt is over.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

// verdict classifies a publish error for a row that has already been tried
// attempt-1 times.
func verdict(err error, attempt, maxAttempts int) (outcome, enums.OutboxDLQErrorReason) {
	var nonRetry registry.NonRetryableError
	switch {
	case err == nil:
		return outcomePublished, ""
	case errors.As(err, &nonRetry):
		return outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable
	case attempt >= maxAttempts:
		return outcomeDeadLetter, enums.OutboxDLQReasonMaxAttempts
	default:
		return outcomeRetry, ""
	}
}

// dispatch publishes one row and records the result in tx. It only returns
// an error when that bookkeeping fails, which aborts the batch.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	attempt := event.AttemptCount + 1
	fields := map[string]any{
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": attempt,
		"event_type":    string(event.EventType),
		"outbox_id":     event.ID.String(),
	}

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		err = registry.NewNonRetryableError(err)
	} else {
		fields["event_id"] = resolved.Envelope.EventID
		fields["topic"] = resolved.Descriptor.Topic
		if s.claimed(ctx, event, fields) {
			s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event already published")
			return s.markPublished(tx, event)
		}
		if err = s.publish(ctx, event, resolved); err != nil {
			s.unclaim(ctx, event, fields)
		}
	}

	result, reason := verdict(err, attempt, s.maxAttempts)
	switch result {
	case outcomePublished:
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return s.markPublished(tx, event)
	case outcomeRetry:
		s.metrics.IncFailed(string(event.EventType))
		s.logg.Warn(s.logg.WithFields(ctx, withError(fields, err)), "outbox publish failed")
		if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
		}
		return nil
	default:
		if reason == enums.OutboxDLQReasonMaxAttempts {
			err = fmt.Errorf("max publish attempts reached: %w", err)
		}
		return s.deadLetter(ctx, tx, event, reason, err, fields)
	}
}

func (s *Service) markPublished(tx *gorm.DB, event models.OutboxEvent) error {
	if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
		return fmt.Errorf("mark published %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = string(reason)
	s.logg.Warn(s.logg.WithFields(ctx, withError(fields, cause)), "outbox event will not be retried")

	if err := s.dlq.InsertTx(tx, models.DeadLetter(event, reason, cause.Error(), s.now())); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncDLQ(string(reason))
	return nil
}

// claimed consults the guard. Guard failures fall through to a publish;
// consumers dedupe on event_id anyway.
func (s *Service) claimed(ctx context.Context, event models.OutboxEvent, fields map[string]any) bool {
	if s.guard == nil {
		return false
	}
	seen, err := s.guard.Claim(ctx, guardConsumer, event.ID)
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, withError(fields, err)), "outbox publish guard unavailable")
		return false
	}
	return seen
}

func (s *Service) unclaim(ctx context.Context, event models.OutboxEvent, fields map[string]any) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Release(ctx, guardConsumer, event.ID); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, withError(fields, err)), "outbox publish guard release failed")
	}
}

// publish sends the wire payload, not the stored envelope. The loan group id
// is the ordering key so a borrow always precedes its return.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	key := event.OrderingKey()
	msg := &gcppubsub.Message{
		Data:        resolved.Envelope.Data,
		OrderingKey: key,
		Attributes: map[string]string{
			"aggregate_id":   event.AggregateID.String(),
			"aggregate_type": string(event.AggregateType),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
		},
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(ctx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(ctx); err != nil {
		// a failed ordered publish pauses the key until resumed
		pub.ResumePublish(key)
		return err
	}
	return nil
}

func (s *Service) publisherFor(topic string) publisher {
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.publisherFactory(topic)
	if pub != nil {
		s.publishers[topic] = pub
	}
	return pub
}

func withError(fields map[string]any, err error) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	if err != nil {
		out["error"] = err.Error()
	}
	return out
}
