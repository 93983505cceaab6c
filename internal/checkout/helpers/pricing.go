package helpers

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/maskball-tickets/internal/inventory"
	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
)

// PriceItems snapshots tier names and prices into order lines and returns the ticket subtotal.
// Items must already be normalized; lines follow their order.
func PriceItems(items []inventory.Item, tiers []models.TicketType) ([]models.OrderLineItem, decimal.Decimal, error) {
	byID := make(map[string]models.TicketType, len(tiers))
	for _, t := range tiers {
		byID[t.ID] = t
	}
	lines := make([]models.OrderLineItem, 0, len(items))
	subtotal := decimal.Zero
	for _, item := range items {
		tier, ok := byID[item.TicketTypeID]
		if !ok {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("unknown ticket type %q", item.TicketTypeID)).
				WithDetails(map[string]any{"ticket_type_id": item.TicketTypeID, "known": KnownIDs(tiers)})
		}
		line := models.OrderLineItem{
			TicketTypeID:   tier.ID,
			TicketTypeName: tier.DisplayName,
			Quantity:       item.Quantity,
			UnitPrice:      tier.UnitPrice,
		}
		subtotal = subtotal.Add(line.Subtotal())
		lines = append(lines, line)
	}
	return lines, subtotal.Round(2), nil
}

// KnownIDs lists tier ids for not-found diagnostics.
func KnownIDs(tiers []models.TicketType) []string {
	ids := make([]string, 0, len(tiers))
	for _, t := range tiers {
		ids = append(ids, t.ID)
	}
	return ids
}

// ItemsFromLines rebuilds ledger items from order lines.
func ItemsFromLines(lines []models.OrderLineItem) []inventory.Item {
	items := make([]inventory.Item, 0, len(lines))
	for _, li := range lines {
		items = append(items, inventory.Item{TicketTypeID: li.TicketTypeID, Quantity: li.Quantity})
	}
	return items
}
