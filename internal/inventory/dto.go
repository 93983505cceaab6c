package inventory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/shopspring/decimal"
)

// Item is a requested quantity of one ticket type.
type Item struct {
	TicketTypeID string `json:"ticket_type_id" validate:"required,ticket_slug"`
	Quantity     int    `json:"quantity" validate:"required,min=1"`
}

// Shortage describes one item that could not be satisfied.
type Shortage struct {
	TicketTypeID string `json:"ticket_type_id"`
	Name         string `json:"name"`
	Requested    int    `json:"requested"`
	Available    int    `json:"available"`
}

// Message renders the customer facing explanation for the shortage.
func (s Shortage) Message() string {
	if s.Available <= 0 {
		return fmt.Sprintf("%s is sold out", s.Name)
	}
	return fmt.Sprintf("Only %d %s left", s.Available, s.Name)
}

// CartCheck is the read-only availability verdict for a cart.
type CartCheck struct {
	Valid     bool       `json:"valid"`
	Errors    []string   `json:"errors"`
	Shortages []Shortage `json:"shortages,omitempty"`
}

// Stats aggregates the counters across every ticket type.
type Stats struct {
	TotalStock int `json:"total_stock"`
	Sold       int `json:"sold"`
	Reserved   int `json:"reserved"`
	Available  int `json:"available"`
}

// TicketTypeDTO is the public view of one tier.
type TicketTypeDTO struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalStock int             `json:"total_stock"`
	Sold       int             `json:"sold"`
	Reserved   int             `json:"reserved"`
	Available  int             `json:"available"`
}

// ToDTO maps a stored tier onto its public view.
func ToDTO(t models.TicketType) TicketTypeDTO {
	return TicketTypeDTO{
		ID:         t.ID,
		Name:       t.DisplayName,
		UnitPrice:  t.UnitPrice,
		TotalStock: t.TotalStock,
		Sold:       t.SoldCount,
		Reserved:   t.ReservedCount,
		Available:  t.Available(),
	}
}

// ShortageMessages flattens shortages into their messages.
func ShortageMessages(shortages []Shortage) []string {
	out := make([]string, 0, len(shortages))
	for _, s := range shortages {
		out = append(out, s.Message())
	}
	return out
}

// SoldOutError converts shortages into the typed capacity error surfaced to callers.
func SoldOutError(shortages []Shortage) error {
	return pkgerrors.New(pkgerrors.CodeSoldOut, "sold out / insufficient stock").WithDetails(map[string]any{
		"errors":    ShortageMessages(shortages),
		"shortages": shortages,
	})
}

// NormalizeItems is the exported form of the cart normalization applied by every ledger operation.
func NormalizeItems(items []Item) ([]Item, error) {
	return normalizeItems(items)
}

// normalizeItems trims ids, merges duplicates and orders by id so locks and updates run in a stable order.
func normalizeItems(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	merged := make(map[string]int, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.TicketTypeID)
		if id == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket type id is required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"ticket_type_id": id, "quantity": item.Quantity})
		}
		merged[id] += item.Quantity
	}
	out := make([]Item, 0, len(merged))
	for id, qty := range merged {
		out = append(out, Item{TicketTypeID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketTypeID < out[j].TicketTypeID })
	return out, nil
}

func itemIDs(items []Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.TicketTypeID)
	}
	return ids
}

func reservationItems(res *models.Reservation) []Item {
	items := make([]Item, 0, len(res.Items))
	for _, ri := range res.Items {
		items = append(items, Item{TicketTypeID: ri.TicketTypeID, Quantity: ri.Quantity})
	}
	return items
}
