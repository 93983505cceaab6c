package admin

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/maskball-tickets/internal/inventory"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

// StatusChange is a staff request to move an order to a new status.
type StatusChange struct {
	OrderID       uuid.UUID
	Status        enums.OrderStatus
	Notes         *string
	OverrideToken string
	Staff         string
}

// ListFilter narrows the order list. Search matches order number, name, email or phone.
// Limit keeps only the newest N matches; zero means all.
type ListFilter struct {
	Status *enums.OrderStatus
	Search string
	Limit  int
}

func (f ListFilter) search() string {
	return strings.ToLower(strings.TrimSpace(f.Search))
}

// InventoryReport is the admin view of the ledger.
type InventoryReport struct {
	Totals inventory.Stats           `json:"totals"`
	Tiers  []inventory.TicketTypeDTO `json:"tiers"`
}

// ReconciliationRow compares the ledger's sold count with units counted from orders for one
// ticket type. It is an audit aid; the ledger stays authoritative.
type ReconciliationRow struct {
	TicketTypeID string `json:"ticket_type_id"`
	Name         string `json:"name"`
	LedgerSold   int    `json:"ledger_sold"`
	OrderUnits   int    `json:"order_units"`
	Difference   int    `json:"difference"`
	Matches      bool   `json:"matches"`
	Known        bool   `json:"known"`
}
