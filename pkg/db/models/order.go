package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

// Order is one customer purchase. Fee columns are nullable because early orders predate them.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber       string              `gorm:"column:order_number;not null"`
	OrderNumberKey    string              `gorm:"column:order_number_key;not null;uniqueIndex:orders_order_number_key_idx"`
	Status            enums.OrderStatus   `gorm:"column:status;not null;default:'pending'"`
	PaymentMethod     enums.PaymentMethod `gorm:"column:payment_method;not null"`
	PaymentRail       enums.PaymentRail   `gorm:"column:payment_rail;not null"`
	CustomerName      string              `gorm:"column:customer_name;not null"`
	CustomerEmail     string              `gorm:"column:customer_email;not null"`
	CustomerPhone     string              `gorm:"column:customer_phone;not null"`
	TotalAmount       decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	TicketSubtotal    decimal.NullDecimal `gorm:"column:ticket_subtotal;type:numeric(12,2)"`
	PlatformFee       decimal.NullDecimal `gorm:"column:platform_fee;type:numeric(12,2)"`
	StripeFee         decimal.NullDecimal `gorm:"column:stripe_fee;type:numeric(12,2)"`
	CustomerPays      decimal.NullDecimal `gorm:"column:customer_pays;type:numeric(12,2)"`
	ProviderPaymentID *string             `gorm:"column:provider_payment_id"`
	Simulated         bool                `gorm:"column:simulated;not null;default:false"`
	AdminNotes        *string             `gorm:"column:admin_notes"`
	VerifiedAt        *time.Time          `gorm:"column:verified_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	LineItems []OrderLineItem    `gorm:"foreignKey:OrderID"`
	Tickets   []IndividualTicket `gorm:"foreignKey:OrderID"`
	Proof     *PaymentProof      `gorm:"foreignKey:OrderID"`
}

// EffectiveSubtotal is the ticket subtotal used for revenue. Orders created before the fee
// breakdown existed fall back to the sum of their line items.
func (o Order) EffectiveSubtotal() decimal.Decimal {
	if o.TicketSubtotal.Valid {
		return o.TicketSubtotal.Decimal
	}
	total := decimal.Zero
	for _, li := range o.LineItems {
		total = total.Add(li.Subtotal())
	}
	return total
}

// Clone copies the order with its own line item and ticket slices.
func (o *Order) Clone() *Order {
	c := *o
	c.LineItems = append([]OrderLineItem(nil), o.LineItems...)
	c.Tickets = append([]IndividualTicket(nil), o.Tickets...)
	return &c
}

// OrderLineItem snapshots a tier and its price at purchase time.
type OrderLineItem struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	TicketTypeID   string          `gorm:"column:ticket_type_id;not null"`
	TicketTypeName string          `gorm:"column:ticket_type_name;not null"`
	Quantity       int             `gorm:"column:quantity;not null"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
}

// Subtotal returns price x quantity for the line.
func (li OrderLineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// IndividualTicket is one scannable admission unit inside an order.
type IndividualTicket struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	TicketID       string             `gorm:"column:ticket_id;not null"`
	TicketIDKey    string             `gorm:"column:ticket_id_key;not null;uniqueIndex:tickets_ticket_id_key_idx"`
	TicketTypeID   string             `gorm:"column:ticket_type_id;not null"`
	TicketTypeName string             `gorm:"column:ticket_type_name;not null"`
	QRPayload      string             `gorm:"column:qr_payload;not null"`
	Status         enums.TicketStatus `gorm:"column:status;not null;default:'valid'"`
	ScannedAt      *time.Time         `gorm:"column:scanned_at"`
	ScannedBy      *string            `gorm:"column:scanned_by"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// PaymentProof is the uploaded bank-transfer screenshot for a PayNow order.
type PaymentProof struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	FileName    string    `gorm:"column:file_name;not null"`
	ContentType string    `gorm:"column:content_type;not null"`
	SizeBytes   int64     `gorm:"column:size_bytes;not null"`
	Data        []byte    `gorm:"column:data;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
