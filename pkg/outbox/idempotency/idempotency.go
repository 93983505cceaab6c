// Package idempotency guards side effects that must happen once per event: notification
// sends from the notifier and Stripe webhook deliveries in the API.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// State is the outcome of a Claim.
type State int

const (
	// StateClaimed means the caller owns the send and must Confirm or Release it.
	StateClaimed State = iota
	// StateInFlight means another worker claimed the send and has not finished.
	StateInFlight
	// StateDelivered means the send already happened.
	StateDelivered
)

func (s State) String() string {
	switch s {
	case StateClaimed:
		return "claimed"
	case StateInFlight:
		return "in_flight"
	case StateDelivered:
		return "delivered"
	}
	return "unknown"
}

const (
	markInFlight  = "in_flight"
	markDelivered = "delivered"

	// DefaultClaimTTL bounds how long a crashed worker can block a resend.
	DefaultClaimTTL = 2 * time.Minute
)

type store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager keys marks as mb:idempotency:delivery:<consumer>:<event_id>. A claim is a short
// lived in-flight mark; Confirm replaces it with a delivered mark kept for deliveredTTL.
type Manager struct {
	store        store
	deliveredTTL time.Duration
	claimTTL     time.Duration
}

func NewManager(s store, deliveredTTL, claimTTL time.Duration) (*Manager, error) {
	if s == nil {
		return nil, errors.New("idempotency store is required")
	}
	if deliveredTTL < 0 {
		return nil, errors.New("delivered ttl must be non-negative")
	}
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &Manager{store: s, deliveredTTL: deliveredTTL, claimTTL: claimTTL}, nil
}

// Claim tries to take ownership of the send for eventID.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (State, error) {
	return m.ClaimRef(ctx, consumer, uuidRef(eventID))
}

// ClaimRef is Claim for events identified outside the outbox, such as Stripe evt_ ids.
func (m *Manager) ClaimRef(ctx context.Context, consumer, ref string) (State, error) {
	key, err := m.key(consumer, ref)
	if err != nil {
		return StateInFlight, err
	}
	// a mark can expire between SetNX and Get, so try twice before giving up
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := m.store.SetNX(ctx, key, markInFlight, m.claimTTL)
		if err != nil {
			return StateInFlight, fmt.Errorf("claim %s: %w", key, err)
		}
		if ok {
			return StateClaimed, nil
		}
		mark, err := m.store.Get(ctx, key)
		switch {
		case errors.Is(err, goredis.Nil):
			continue
		case err != nil:
			return StateInFlight, fmt.Errorf("read %s: %w", key, err)
		case mark == markDelivered:
			return StateDelivered, nil
		default:
			return StateInFlight, nil
		}
	}
	return StateInFlight, nil
}

// Confirm records a successful send.
func (m *Manager) Confirm(ctx context.Context, consumer string, eventID uuid.UUID) error {
	return m.ConfirmRef(ctx, consumer, uuidRef(eventID))
}

func (m *Manager) ConfirmRef(ctx context.Context, consumer, ref string) error {
	key, err := m.key(consumer, ref)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, markDelivered, m.deliveredTTL)
}

// Release drops a claim after a failed send so the retry can claim it again.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	return m.ReleaseRef(ctx, consumer, uuidRef(eventID))
}

func (m *Manager) ReleaseRef(ctx context.Context, consumer, ref string) error {
	key, err := m.key(consumer, ref)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer, ref string) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if ref == "" {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("delivery:"+consumer, ref), nil
}

func uuidRef(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
