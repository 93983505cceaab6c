package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

// CheckoutSession carries a card checkout from payment intent to settlement.
type CheckoutSession struct {
	ID                uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	ReservationID     uuid.UUID                   `gorm:"column:reservation_id;type:uuid;not null"`
	ProviderPaymentID string                      `gorm:"column:provider_payment_id;not null;uniqueIndex"`
	PaymentRail       enums.PaymentRail           `gorm:"column:payment_rail;not null"`
	CustomerName      string                      `gorm:"column:customer_name;not null"`
	CustomerEmail     string                      `gorm:"column:customer_email;not null"`
	CustomerPhone     string                      `gorm:"column:customer_phone;not null"`
	Items             json.RawMessage             `gorm:"column:items;type:jsonb;not null"`
	TicketSubtotal    decimal.Decimal             `gorm:"column:ticket_subtotal;type:numeric(12,2);not null"`
	PlatformFee       decimal.Decimal             `gorm:"column:platform_fee;type:numeric(12,2);not null"`
	StripeFee         decimal.Decimal             `gorm:"column:stripe_fee;type:numeric(12,2);not null"`
	Total             decimal.Decimal             `gorm:"column:total;type:numeric(12,2);not null"`
	Status            enums.CheckoutSessionStatus `gorm:"column:status;not null;default:'awaiting_payment'"`
	Simulated         bool                        `gorm:"column:simulated;not null;default:false"`
	OrderID           *uuid.UUID                  `gorm:"column:order_id;type:uuid"`
	FailureReason     *string                     `gorm:"column:failure_reason"`
	ExpiresAt         time.Time                   `gorm:"column:expires_at;not null"`
	CreatedAt         time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}
