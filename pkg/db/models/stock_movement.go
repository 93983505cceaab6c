package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

// StockMovement is an append-only journal entry for every ledger mutation.
type StockMovement struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	TicketTypeID string                  `gorm:"column:ticket_type_id;not null;index"`
	Type         enums.StockMovementType `gorm:"column:type;not null"`
	Quantity     int                     `gorm:"column:quantity;not null"`
	Reference    *string                 `gorm:"column:reference"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
}
