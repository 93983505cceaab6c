// Package ledger journals every stock mutation applied by the inventory service.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	"gorm.io/gorm"
)

// Journal records stock movements, optionally inside the caller's transaction.
type Journal interface {
	Record(ctx context.Context, tx *gorm.DB, entries []Entry) error
	History(ctx context.Context, ticketTypeID string, limit int) ([]models.StockMovement, error)
}

// Entry is one movement to journal.
type Entry struct {
	TicketTypeID string
	Type         enums.StockMovementType
	Quantity     int
	Reference    string
}

type journal struct {
	repo Repository
}

// NewJournal wires a journal with the provided repository.
func NewJournal(repo Repository) (Journal, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &journal{repo: repo}, nil
}

func (j *journal) Record(ctx context.Context, tx *gorm.DB, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]models.StockMovement, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.TicketTypeID) == "" {
			return fmt.Errorf("ticket type id is required")
		}
		if !entry.Type.IsValid() {
			return fmt.Errorf("invalid stock movement type %q", entry.Type)
		}
		if entry.Quantity < 0 {
			return fmt.Errorf("movement quantity must not be negative")
		}
		row := models.StockMovement{
			TicketTypeID: entry.TicketTypeID,
			Type:         entry.Type,
			Quantity:     entry.Quantity,
		}
		if ref := strings.TrimSpace(entry.Reference); ref != "" {
			row.Reference = &ref
		}
		rows = append(rows, row)
	}
	return j.repo.WithTx(tx).Create(ctx, rows)
}

func (j *journal) History(ctx context.Context, ticketTypeID string, limit int) ([]models.StockMovement, error) {
	if strings.TrimSpace(ticketTypeID) == "" {
		return nil, fmt.Errorf("ticket type id is required")
	}
	return j.repo.ListByTicketType(ctx, ticketTypeID, limit)
}
