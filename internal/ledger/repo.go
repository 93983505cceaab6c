package ledger

import (
	"context"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"gorm.io/gorm"
)

// Repository persists the stock movement journal.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, movements []models.StockMovement) error
	ListByTicketType(ctx context.Context, ticketTypeID string, limit int) ([]models.StockMovement, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a journal repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, movements []models.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&movements).Error
}

func (r *repository) ListByTicketType(ctx context.Context, ticketTypeID string, limit int) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	q := r.db.WithContext(ctx).
		Where("ticket_type_id = ?", ticketTypeID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}
