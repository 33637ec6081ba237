package registry

import (
	"encoding/json"
	"errors"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/circulation-backend/pkg/config"
	"github.com/angelmondragon/circulation-backend/pkg/db/models"
	"github.com/angelmondragon/circulation-backend/pkg/enums"
	"github.com/angelmondragon/circulation-backend/pkg/outbox"
	"github.com/angelmondragon/circulation-backend/pkg/outbox/payloads"
)

// EventDescriptor routes one event type to its topic and payload schema.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// ResolvedEvent is a validated outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry knows every loan event the publisher can ship.
type EventRegistry struct {
	byType map[enums.OutboxEventType]EventDescriptor
}

// loanEvent builds a descriptor whose payload decodes into T.
func loanEvent[T any](eventType enums.OutboxEventType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: enums.AggregateLoanGroup,
		Topic:         topic,
		decode: func(raw json.RawMessage) (any, error) {
			var payload *T
			if err := json.Unmarshal(raw, &payload); err != nil {
				return nil, err
			}
			if payload == nil {
				return nil, errors.New("payload is null")
			}
			return payload, nil
		},
	}
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.BorrowTopic == "":
		return nil, errors.New("borrow topic is required")
	case cfg.ReturnTopic == "":
		return nil, errors.New("return topic is required")
	}

	descriptors := []EventDescriptor{
		loanEvent[payloads.BorrowEventPayload](enums.EventLibraryBorrowed, cfg.BorrowTopic),
		loanEvent[payloads.ReturnEventPayload](enums.EventLibraryReturned, cfg.ReturnTopic),
	}
	reg := &EventRegistry{byType: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.byType[desc.EventType] = desc
	}
	return reg, nil
}

// Topics returns the distinct destination topics in sorted order.
func (r *EventRegistry) Topics() []string {
	set := make(map[string]struct{}, len(r.byType))
	for _, desc := range r.byType {
		set[desc.Topic] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

// Resolve checks that the row is routable and that its envelope and payload
// decode. Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.byType[event.EventType]
	switch {
	case !ok:
		return nil, rejectf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, rejectf("%s expects aggregate %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, rejectf("%s row has no aggregate_id", event.EventType)
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, rejectf("%s: %w", event.EventType, err)
	}
	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, rejectf("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
