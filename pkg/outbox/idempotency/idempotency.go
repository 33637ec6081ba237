package idempotency

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL covers the longest redelivery window of the loan topics.
const DefaultTTL = 7 * 24 * time.Hour

var consumerNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

type store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager records which loan events a consumer has already handled, keyed
// `circ:idempotency:evt:<consumer>:<event_id>`.
type Manager struct {
	store store
	ttl   time.Duration
}

// NewManager builds a Manager; ttl 0 selects DefaultTTL.
func NewManager(s store, ttl time.Duration) (*Manager, error) {
	if s == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: s, ttl: ttl}, nil
}

// Claim marks eventID as handled by consumer. It reports true when a previous
// claim is still live, meaning the caller must skip the event.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return !claimed, nil
}

// Release drops a claim so the event can be handled again, typically after
// the handling failed.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if !consumerNameRe.MatchString(consumer) {
		return "", fmt.Errorf("invalid consumer name %q", consumer)
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
