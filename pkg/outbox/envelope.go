package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the only envelope layout the publisher understands.
const EnvelopeVersion = 1

// ActorRef identifies the member whose action produced the event.
type ActorRef struct {
	MemberID uuid.UUID `json:"memberId"`
	Source   string    `json:"source,omitempty"`
}

// PayloadEnvelope is what outbox_events.payload holds. Only Data goes on the
// wire; the rest is bookkeeping for the publisher.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(eventID uuid.UUID, occurredAt time.Time, actor *ActorRef, data any) (PayloadEnvelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode event data: %w", err)
	}
	if isEmptyData(raw) {
		return PayloadEnvelope{}, fmt.Errorf("event data required")
	}
	return PayloadEnvelope{
		Version:    EnvelopeVersion,
		EventID:    eventID.String(),
		OccurredAt: occurredAt.UTC(),
		Actor:      actor,
		Data:       raw,
	}, nil
}

// DecodeEnvelope parses a stored payload and rejects versions it cannot read
// or envelopes with no data.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Version != EnvelopeVersion {
		return PayloadEnvelope{}, fmt.Errorf("unsupported envelope version %d", envelope.Version)
	}
	if _, err := uuid.Parse(envelope.EventID); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("envelope event id: %w", err)
	}
	if isEmptyData(envelope.Data) {
		return PayloadEnvelope{}, fmt.Errorf("envelope data missing")
	}
	return envelope, nil
}

func isEmptyData(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
