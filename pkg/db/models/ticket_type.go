package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketType is one ticket tier and its stock counters.
type TicketType struct {
	ID            string          `gorm:"column:id;primaryKey"`
	DisplayName   string          `gorm:"column:display_name;not null"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	TotalStock    int             `gorm:"column:total_stock;not null"`
	SoldCount     int             `gorm:"column:sold_count;not null;default:0"`
	ReservedCount int             `gorm:"column:reserved_count;not null;default:0"`
	SortOrder     int             `gorm:"column:sort_order;not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Available returns the units still purchasable, never negative.
func (t TicketType) Available() int {
	available := t.TotalStock - t.SoldCount - t.ReservedCount
	if available < 0 {
		return 0
	}
	return available
}
