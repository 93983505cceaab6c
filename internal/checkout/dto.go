package checkout

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/maskball-tickets/internal/checkout/helpers"
	"github.com/angelmondragon/maskball-tickets/internal/inventory"
	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

// PayNowRequest is a manual bank transfer submission.
type PayNowRequest struct {
	Customer helpers.CustomerDetails
	Items    []inventory.Item
	Proof    *helpers.Proof
}

// CardRequest starts an online payment on one of the card rails.
type CardRequest struct {
	Customer helpers.CustomerDetails
	Items    []inventory.Item
	Rail     enums.PaymentRail
}

// CardIntent is returned to the client to complete payment with the provider.
type CardIntent struct {
	SessionID         uuid.UUID         `json:"session_id"`
	ProviderPaymentID string            `json:"provider_payment_id"`
	ClientSecret      string            `json:"client_secret"`
	Rail              enums.PaymentRail `json:"payment_rail"`
	Fees              FeeBreakdown      `json:"fees"`
	ExpiresAt         time.Time         `json:"expires_at"`
	Simulated         bool              `json:"simulated"`
}

// Quote is a priced cart for one rail; it is what the payment-selection step displays.
type Quote struct {
	Rail      enums.PaymentRail      `json:"payment_rail"`
	LineItems []models.OrderLineItem `json:"-"`
	Fees      FeeBreakdown           `json:"fees"`
}

// sessionLine is one priced line as stored in checkout_sessions.items.
type sessionLine struct {
	TicketTypeID   string          `json:"ticket_type_id"`
	TicketTypeName string          `json:"ticket_type_name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}
