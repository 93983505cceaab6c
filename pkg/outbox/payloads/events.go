// Package payloads holds the JSON bodies carried by outbox events.
package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

// LineItem is one purchased tier as shown in customer notifications.
type LineItem struct {
	TicketTypeName string          `json:"ticket_type_name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

// Ticket is one admission unit and the payload its QR code encodes.
type Ticket struct {
	TicketID   string `json:"ticket_id"`
	TicketType string `json:"ticket_type"`
	QRPayload  string `json:"qr_payload"`
}

// OrderNotification drives the customer confirmation message for confirmed, verified
// and rejected orders.
type OrderNotification struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	CustomerName  string              `json:"customer_name"`
	CustomerEmail string              `json:"customer_email"`
	LineItems     []LineItem          `json:"line_items"`
	TotalPaid     decimal.Decimal     `json:"total_paid"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentRail   enums.PaymentRail   `json:"payment_rail"`
	IsVerified    bool                `json:"is_verified"`
	Simulated     bool                `json:"simulated,omitempty"`
	Tickets       []Ticket            `json:"tickets"`
	Reason        string              `json:"reason,omitempty"`
}

// ReservationExpired reports a hold the reaper returned to stock.
type ReservationExpired struct {
	ReservationID uuid.UUID      `json:"reservation_id"`
	Reference     string         `json:"reference"`
	Items         map[string]int `json:"items"`
	ExpiredAt     time.Time      `json:"expired_at"`
}
