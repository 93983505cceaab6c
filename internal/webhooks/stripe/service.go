// Package stripewebhook settles card checkouts from Stripe payment intent events.
package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
)

// PaymentSettler is the slice of checkout the webhook drives.
type PaymentSettler interface {
	CompleteCardPayment(ctx context.Context, providerPaymentID string) (*models.Order, error)
	FailCardPayment(ctx context.Context, providerPaymentID, reason string) error
}

type ServiceParams struct {
	Checkout PaymentSettler
	Logger   *logger.Logger
}

type Service struct {
	checkout PaymentSettler
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Checkout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service required")
	}
	return &Service{checkout: params.Checkout, logg: params.Logger}, nil
}

// HandleEvent applies one verified Stripe event. Outcomes that a retry cannot change, such as
// an unknown intent or a session that already settled, are acknowledged so Stripe stops
// redelivering them.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		intent, err := decodeIntent(event)
		if err != nil {
			return err
		}
		order, err := s.checkout.CompleteCardPayment(ctx, intent.ID)
		if err != nil {
			return s.settled(ctx, event, intent.ID, err)
		}
		if s.logg != nil {
			logCtx := s.logg.WithOrderNumber(ctx, order.OrderNumber)
			s.logg.Info(s.logg.WithField(logCtx, "provider_payment_id", intent.ID), "stripe payment settled")
		}
		return nil
	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		intent, err := decodeIntent(event)
		if err != nil {
			return err
		}
		if err := s.checkout.FailCardPayment(ctx, intent.ID, failureReason(event.Type, intent)); err != nil {
			return s.settled(ctx, event, intent.ID, err)
		}
		return nil
	default:
		return nil
	}
}

func (s *Service) settled(ctx context.Context, event *stripe.Event, intentID string, err error) error {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound),
		pkgerrors.IsCode(err, pkgerrors.CodeStateConflict),
		pkgerrors.IsCode(err, pkgerrors.CodeSoldOut):
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"stripe_event_id":     event.ID,
				"stripe_event_type":   string(event.Type),
				"provider_payment_id": intentID,
				"error":               err.Error(),
			})
			s.logg.Warn(logCtx, "stripe event acknowledged without settlement")
		}
		return nil
	default:
		return err
	}
}

func decodeIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	return &intent, nil
}

func failureReason(eventType stripe.EventType, intent *stripe.PaymentIntent) string {
	if eventType == stripe.EventTypePaymentIntentCanceled {
		if intent.CancellationReason != "" {
			return "canceled: " + string(intent.CancellationReason)
		}
		return "canceled"
	}
	if intent.LastPaymentError != nil {
		if intent.LastPaymentError.Msg != "" {
			return intent.LastPaymentError.Msg
		}
		if intent.LastPaymentError.Code != "" {
			return string(intent.LastPaymentError.Code)
		}
	}
	return "payment failed"
}
