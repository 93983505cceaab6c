package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

// ErrProviderUnavailable marks outages (network, 5xx) as opposed to declined payments.
// Checkout degrades to the simulated provider on it.
var ErrProviderUnavailable = errors.New("payment provider unavailable")

// IntentRequest asks the provider to collect Amount for one checkout session.
type IntentRequest struct {
	SessionID     uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	Rail          enums.PaymentRail
	CustomerEmail string
	Description   string
	Metadata      map[string]string
}

// Intent is the provider-side handle the client completes payment against.
type Intent struct {
	ProviderPaymentID string
	ClientSecret      string
	Simulated         bool
}

// IntentStatus is the provider's view of a payment.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentSucceeded IntentStatus = "succeeded"
	IntentFailed    IntentStatus = "failed"
	IntentCanceled  IntentStatus = "canceled"
)

// Provider is the external payment collector.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	IntentStatus(ctx context.Context, providerPaymentID string) (IntentStatus, error)
	CancelIntent(ctx context.Context, providerPaymentID string) error
}

const simulatedPrefix = "sim_pi_"

// SimulatedProvider stands in for Stripe when it is not configured or unreachable. Every
// intent it creates is flagged simulated and reported as succeeded.
type SimulatedProvider struct{}

func NewSimulatedProvider() *SimulatedProvider { return &SimulatedProvider{} }

func (p *SimulatedProvider) Name() string { return "simulated" }

func (p *SimulatedProvider) CreateIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	id := simulatedPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	return &Intent{
		ProviderPaymentID: id,
		ClientSecret:      id + "_secret_simulated",
		Simulated:         true,
	}, nil
}

func (p *SimulatedProvider) IntentStatus(_ context.Context, providerPaymentID string) (IntentStatus, error) {
	if !IsSimulatedPaymentID(providerPaymentID) {
		return IntentFailed, nil
	}
	return IntentSucceeded, nil
}

func (p *SimulatedProvider) CancelIntent(context.Context, string) error { return nil }

// IsSimulatedPaymentID reports whether the id was minted by the simulated provider.
func IsSimulatedPaymentID(id string) bool {
	return strings.HasPrefix(id, simulatedPrefix)
}
