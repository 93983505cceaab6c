package stripewebhook

import (
	"context"
	"errors"

	"github.com/angelmondragon/maskball-tickets/pkg/outbox/idempotency"
)

const guardConsumer = "stripe-webhook"

type claimManager interface {
	ClaimRef(ctx context.Context, consumer, ref string) (idempotency.State, error)
	ConfirmRef(ctx context.Context, consumer, ref string) error
	ReleaseRef(ctx context.Context, consumer, ref string) error
}

// EventGuard tracks Stripe event ids through claim, confirm and release so a redelivery that
// races the first attempt is retried instead of acknowledged.
type EventGuard struct {
	claims claimManager
}

func NewEventGuard(claims claimManager) (*EventGuard, error) {
	if claims == nil {
		return nil, errors.New("claim manager is required")
	}
	return &EventGuard{claims: claims}, nil
}

func (g *EventGuard) Claim(ctx context.Context, eventID string) (idempotency.State, error) {
	return g.claims.ClaimRef(ctx, guardConsumer, eventID)
}

func (g *EventGuard) Confirm(ctx context.Context, eventID string) error {
	return g.claims.ConfirmRef(ctx, guardConsumer, eventID)
}

func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	return g.claims.ReleaseRef(ctx, guardConsumer, eventID)
}

// NoopGuard processes every delivery. It is used when Redis is not configured; checkout
// settlement is idempotent on its own, so duplicates are still harmless.
type NoopGuard struct{}

func (NoopGuard) Claim(context.Context, string) (idempotency.State, error) {
	return idempotency.StateClaimed, nil
}
func (NoopGuard) Confirm(context.Context, string) error { return nil }
func (NoopGuard) Release(context.Context, string) error { return nil }
