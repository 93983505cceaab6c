package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
)

type paymentIntentAPI interface {
	Create(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	Retrieve(ctx context.Context, id string, params *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error)
	Cancel(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// StripeProvider collects card, Apple Pay and GrabPay payments through PaymentIntents.
type StripeProvider struct {
	intents paymentIntentAPI
}

// NewStripeProvider binds the provider to a Stripe API client.
func NewStripeProvider(api *stripe.Client) (*StripeProvider, error) {
	if api == nil {
		return nil, fmt.Errorf("stripe api client required")
	}
	return &StripeProvider{intents: api.V1PaymentIntents}, nil
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:             stripe.Int64(toMinorUnits(req.Amount)),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{stripeMethodType(req.Rail)}),
		Description:        stripe.String(req.Description),
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata("session_id", req.SessionID.String())
	params.AddMetadata("payment_rail", string(req.Rail))
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey("intent-" + req.SessionID.String())

	pi, err := p.intents.Create(ctx, params)
	if err != nil {
		return nil, classifyStripeError(err, "create payment intent")
	}
	return &Intent{ProviderPaymentID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (p *StripeProvider) IntentStatus(ctx context.Context, providerPaymentID string) (IntentStatus, error) {
	pi, err := p.intents.Retrieve(ctx, providerPaymentID, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		return "", classifyStripeError(err, "retrieve payment intent")
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return IntentSucceeded, nil
	case stripe.PaymentIntentStatusCanceled:
		return IntentCanceled, nil
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return IntentFailed, nil
		}
		return IntentPending, nil
	default:
		return IntentPending, nil
	}
}

func (p *StripeProvider) CancelIntent(ctx context.Context, providerPaymentID string) error {
	if _, err := p.intents.Cancel(ctx, providerPaymentID, &stripe.PaymentIntentCancelParams{}); err != nil {
		return classifyStripeError(err, "cancel payment intent")
	}
	return nil
}

func stripeMethodType(rail enums.PaymentRail) string {
	if rail == enums.PaymentRailGrabPay {
		return "grabpay"
	}
	// Apple Pay is a card wallet on Stripe.
	return "card"
}

// toMinorUnits converts a two-decimal amount into cents.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

// classifyStripeError separates outages from declines so checkout can degrade only on outages.
func classifyStripeError(err error, action string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError || stripeErr.Type == stripe.ErrorTypeAPI {
			return fmt.Errorf("%s: %w: %v", action, ErrProviderUnavailable, err)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s: %s", action, stripeErr.Msg))
	}
	return fmt.Errorf("%s: %w: %v", action, ErrProviderUnavailable, err)
}
