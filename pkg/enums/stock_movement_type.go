package enums

import "fmt"

// StockMovementType labels an entry in the inventory movement journal.
type StockMovementType string

const (
	StockMovementReserve    StockMovementType = "reserve"
	StockMovementRelease    StockMovementType = "release"
	StockMovementConfirm    StockMovementType = "confirm"
	StockMovementDirectSell StockMovementType = "direct_sell"
	StockMovementRestock    StockMovementType = "restock"
	StockMovementReset      StockMovementType = "reset"
)

var validStockMovementTypes = []StockMovementType{
	StockMovementReserve,
	StockMovementRelease,
	StockMovementConfirm,
	StockMovementDirectSell,
	StockMovementRestock,
	StockMovementReset,
}

// IsValid reports whether the value matches a known movement type.
func (t StockMovementType) IsValid() bool {
	for _, candidate := range validStockMovementTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseStockMovementType converts raw input into StockMovementType.
func ParseStockMovementType(value string) (StockMovementType, error) {
	for _, candidate := range validStockMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock movement type %q", value)
}
