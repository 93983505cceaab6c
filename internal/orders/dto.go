package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NormalizeKey strips all whitespace and upper-cases an order number or ticket id for comparison.
func NormalizeKey(value string) string {
	return strings.ToUpper(strings.Join(strings.Fields(value), ""))
}

// QRPayload encodes the door scan payload for a ticket.
func QRPayload(orderNumber, ticketID string) string {
	return orderNumber + "|" + ticketID
}

// TicketUpdate reports the outcome of a ticket status change.
type TicketUpdate struct {
	Success     bool   `json:"success"`
	OrderNumber string `json:"order_number,omitempty"`
	TicketType  string `json:"ticket_type,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Stats aggregates order counts and revenue.
type Stats struct {
	Total          int             `json:"total"`
	Pending        int             `json:"pending"`
	Verified       int             `json:"verified"`
	Rejected       int             `json:"rejected"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	PendingRevenue decimal.Decimal `json:"pending_revenue"`
}

// LineItemDTO is the API view of one order line.
type LineItemDTO struct {
	TicketTypeID   string          `json:"ticket_type_id"`
	TicketTypeName string          `json:"ticket_type_name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

// TicketDTO is the API view of one individual ticket.
type TicketDTO struct {
	TicketID   string             `json:"ticket_id"`
	TicketType string             `json:"ticket_type"`
	QRPayload  string             `json:"qr_payload"`
	Status     enums.TicketStatus `json:"status"`
	ScannedAt  *time.Time         `json:"scanned_at,omitempty"`
	ScannedBy  *string            `json:"scanned_by,omitempty"`
}

// FeesDTO carries the stored fee breakdown when the order has one.
type FeesDTO struct {
	TicketSubtotal decimal.Decimal `json:"ticket_subtotal"`
	PlatformFee    decimal.Decimal `json:"platform_fee"`
	StripeFee      decimal.Decimal `json:"stripe_fee"`
	CustomerPays   decimal.Decimal `json:"customer_pays"`
}

// ProofDTO describes an attached payment proof without its bytes.
type ProofDTO struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// OrderDTO is the API view of an order.
type OrderDTO struct {
	ID                uuid.UUID           `json:"id"`
	OrderNumber       string              `json:"order_number"`
	Status            enums.OrderStatus   `json:"status"`
	PaymentMethod     enums.PaymentMethod `json:"payment_method"`
	PaymentRail       enums.PaymentRail   `json:"payment_rail"`
	CustomerName      string              `json:"customer_name"`
	CustomerEmail     string              `json:"customer_email"`
	CustomerPhone     string              `json:"customer_phone"`
	LineItems         []LineItemDTO       `json:"line_items"`
	TotalAmount       decimal.Decimal     `json:"total_amount"`
	Fees              *FeesDTO            `json:"fees,omitempty"`
	Tickets           []TicketDTO         `json:"tickets"`
	Proof             *ProofDTO           `json:"proof,omitempty"`
	AdminNotes        *string             `json:"admin_notes,omitempty"`
	ProviderPaymentID *string             `json:"provider_payment_id,omitempty"`
	Simulated         bool                `json:"simulated"`
	VerifiedAt        *time.Time          `json:"verified_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
}

// ToDTO maps a stored order onto its API view.
func ToDTO(o models.Order) OrderDTO {
	dto := OrderDTO{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		Status:            o.Status,
		PaymentMethod:     o.PaymentMethod,
		PaymentRail:       o.PaymentRail,
		CustomerName:      o.CustomerName,
		CustomerEmail:     o.CustomerEmail,
		CustomerPhone:     o.CustomerPhone,
		TotalAmount:       o.TotalAmount,
		AdminNotes:        o.AdminNotes,
		ProviderPaymentID: o.ProviderPaymentID,
		Simulated:         o.Simulated,
		VerifiedAt:        o.VerifiedAt,
		CreatedAt:         o.CreatedAt,
		LineItems:         make([]LineItemDTO, 0, len(o.LineItems)),
		Tickets:           make([]TicketDTO, 0, len(o.Tickets)),
	}
	for _, li := range o.LineItems {
		dto.LineItems = append(dto.LineItems, LineItemDTO{
			TicketTypeID:   li.TicketTypeID,
			TicketTypeName: li.TicketTypeName,
			Quantity:       li.Quantity,
			UnitPrice:      li.UnitPrice,
			Subtotal:       li.Subtotal(),
		})
	}
	for _, t := range o.Tickets {
		dto.Tickets = append(dto.Tickets, TicketDTO{
			TicketID:   t.TicketID,
			TicketType: t.TicketTypeName,
			QRPayload:  t.QRPayload,
			Status:     t.Status,
			ScannedAt:  t.ScannedAt,
			ScannedBy:  t.ScannedBy,
		})
	}
	if o.TicketSubtotal.Valid {
		dto.Fees = &FeesDTO{
			TicketSubtotal: o.TicketSubtotal.Decimal,
			PlatformFee:    o.PlatformFee.Decimal,
			StripeFee:      o.StripeFee.Decimal,
			CustomerPays:   o.CustomerPays.Decimal,
		}
	}
	if o.Proof != nil {
		dto.Proof = &ProofDTO{
			FileName:    o.Proof.FileName,
			ContentType: o.Proof.ContentType,
			SizeBytes:   o.Proof.SizeBytes,
		}
	}
	return dto
}

// TicketSummary renders line items as "2x Early Bird, 1x Table for 4".
func TicketSummary(items []models.OrderLineItem) string {
	parts := make([]string, 0, len(items))
	for _, li := range items {
		parts = append(parts, fmt.Sprintf("%dx %s", li.Quantity, li.TicketTypeName))
	}
	return strings.Join(parts, ", ")
}
