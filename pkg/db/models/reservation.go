package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

// Reservation is a temporary hold against stock while an online payment is in flight.
type Reservation struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Reference string                  `gorm:"column:reference;not null;index"`
	Status    enums.ReservationStatus `gorm:"column:status;not null;default:'active'"`
	ExpiresAt time.Time               `gorm:"column:expires_at;not null;index"`
	Items     []ReservationItem       `gorm:"foreignKey:ReservationID"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// ReservationItem is the per-tier quantity held by a reservation.
type ReservationItem struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ReservationID uuid.UUID `gorm:"column:reservation_id;type:uuid;not null;index"`
	TicketTypeID  string    `gorm:"column:ticket_type_id;not null"`
	Quantity      int       `gorm:"column:quantity;not null"`
}
