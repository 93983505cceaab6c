package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox/idempotency"
)

type stubSettler struct {
	completed   []string
	failed      map[string]string
	completeErr error
	failErr     error
}

func (s *stubSettler) CompleteCardPayment(_ context.Context, id string) (*models.Order, error) {
	s.completed = append(s.completed, id)
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	return &models.Order{OrderNumber: "MASK-ABC12345"}, nil
}

func (s *stubSettler) FailCardPayment(_ context.Context, id, reason string) error {
	if s.failed == nil {
		s.failed = map[string]string{}
	}
	s.failed[id] = reason
	return s.failErr
}

func intentEvent(t *testing.T, eventType stripe.EventType, intent *stripe.PaymentIntent) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	return &stripe.Event{ID: "evt_1", Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func newTestService(t *testing.T, settler *stubSettler) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Checkout: settler})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func TestHandleEvent_SucceededCompletesCheckout(t *testing.T) {
	settler := &stubSettler{}
	svc := newTestService(t, settler)

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusSucceeded})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(settler.completed) != 1 || settler.completed[0] != "pi_123" {
		t.Fatalf("expected pi_123 completed, got %v", settler.completed)
	}
}

func TestHandleEvent_PaymentFailedReleases(t *testing.T) {
	settler := &stubSettler{}
	svc := newTestService(t, settler)

	event := intentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, &stripe.PaymentIntent{
		ID:               "pi_456",
		LastPaymentError: &stripe.Error{Msg: "Your card was declined."},
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if settler.failed["pi_456"] != "Your card was declined." {
		t.Fatalf("unexpected failure reason %q", settler.failed["pi_456"])
	}

	canceled := intentEvent(t, stripe.EventTypePaymentIntentCanceled, &stripe.PaymentIntent{
		ID:                 "pi_789",
		CancellationReason: stripe.PaymentIntentCancellationReasonAbandoned,
	})
	if err := svc.HandleEvent(context.Background(), canceled); err != nil {
		t.Fatalf("handle canceled: %v", err)
	}
	if settler.failed["pi_789"] != "canceled: abandoned" {
		t.Fatalf("unexpected cancel reason %q", settler.failed["pi_789"])
	}
}

func TestHandleEvent_AcknowledgesTerminalOutcomes(t *testing.T) {
	for _, err := range []error{
		pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found"),
		pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session already failed"),
		pkgerrors.New(pkgerrors.CodeSoldOut, "sold out"),
	} {
		svc := newTestService(t, &stubSettler{completeErr: err})
		event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{ID: "pi_1"})
		if got := svc.HandleEvent(context.Background(), event); got != nil {
			t.Fatalf("expected %v acknowledged, got %v", err, got)
		}
	}
}

func TestHandleEvent_PropagatesRetryableErrors(t *testing.T) {
	dbErr := pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("connection reset"), "create order")
	svc := newTestService(t, &stubSettler{completeErr: dbErr})

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{ID: "pi_1"})
	if err := svc.HandleEvent(context.Background(), event); !errors.Is(err, dbErr) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestHandleEvent_IgnoresOtherEvents(t *testing.T) {
	settler := &stubSettler{}
	svc := newTestService(t, settler)
	event := &stripe.Event{Type: stripe.EventTypeChargeRefunded, Data: &stripe.EventData{Raw: []byte(`{}`)}}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(settler.completed) != 0 || len(settler.failed) != 0 {
		t.Fatal("unexpected settlement for unrelated event")
	}
}

func TestHandleEvent_RejectsMissingIntentID(t *testing.T) {
	svc := newTestService(t, &stubSettler{})
	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{})
	if err := svc.HandleEvent(context.Background(), event); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type recordingClaims struct {
	calls []string
	state idempotency.State
}

func (r *recordingClaims) ClaimRef(_ context.Context, consumer, ref string) (idempotency.State, error) {
	r.calls = append(r.calls, "claim "+consumer+" "+ref)
	return r.state, nil
}

func (r *recordingClaims) ConfirmRef(_ context.Context, consumer, ref string) error {
	r.calls = append(r.calls, "confirm "+consumer+" "+ref)
	return nil
}

func (r *recordingClaims) ReleaseRef(_ context.Context, consumer, ref string) error {
	r.calls = append(r.calls, "release "+consumer+" "+ref)
	return nil
}

func TestEventGuardScopesClaimsToStripeWebhook(t *testing.T) {
	claims := &recordingClaims{state: idempotency.StateDelivered}
	guard, err := NewEventGuard(claims)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	ctx := context.Background()
	state, err := guard.Claim(ctx, "evt_1")
	if err != nil || state != idempotency.StateDelivered {
		t.Fatalf("claim: state=%v err=%v", state, err)
	}
	_ = guard.Release(ctx, "evt_1")
	_ = guard.Confirm(ctx, "evt_1")
	want := []string{"claim stripe-webhook evt_1", "release stripe-webhook evt_1", "confirm stripe-webhook evt_1"}
	if strings.Join(claims.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected calls %v", claims.calls)
	}
	if _, err := NewEventGuard(nil); err == nil {
		t.Fatal("expected error without a claim manager")
	}
	if state, _ := (NoopGuard{}).Claim(ctx, "evt_2"); state != idempotency.StateClaimed {
		t.Fatalf("noop guard should always claim, got %v", state)
	}
}
