package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders and their tickets.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	ExistsByNumberKey(ctx context.Context, key string) (bool, error)
	List(ctx context.Context) ([]models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumberKey(ctx context.Context, key string) (*models.Order, error)
	FindTicketByKey(ctx context.Context, key string) (*models.IndividualTicket, error)
	FindProof(ctx context.Context, orderID uuid.UUID) (*models.PaymentProof, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	UpdateTicket(ctx context.Context, key string, guard *enums.TicketStatus, updates map[string]any) (bool, error)
	CreateTickets(ctx context.Context, tickets []models.IndividualTicket) error
	ListTickets(ctx context.Context, orderID uuid.UUID) ([]models.IndividualTicket, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order with its line items, tickets and proof.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) ExistsByNumberKey(ctx context.Context, key string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("order_number_key = ?", key).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) List(ctx context.Context) ([]models.Order, error) {
	var rows []models.Order
	err := r.withDetails(r.db.WithContext(ctx)).
		Order("created_at DESC").
		Order("order_number DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.withDetails(r.db.WithContext(ctx)).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByNumberKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	if err := r.withDetails(r.db.WithContext(ctx)).Where("order_number_key = ?", key).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindTicketByKey(ctx context.Context, key string) (*models.IndividualTicket, error) {
	var ticket models.IndividualTicket
	if err := r.db.WithContext(ctx).Where("ticket_id_key = ?", key).First(&ticket).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) FindProof(ctx context.Context, orderID uuid.UUID) (*models.PaymentProof, error) {
	var proof models.PaymentProof
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&proof).Error; err != nil {
		return nil, err
	}
	return &proof, nil
}

func (r *repository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// UpdateTicket applies updates to the ticket, optionally only while it still has the guard status.
func (r *repository) UpdateTicket(ctx context.Context, key string, guard *enums.TicketStatus, updates map[string]any) (bool, error) {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := r.db.WithContext(ctx).Model(&models.IndividualTicket{}).Where("ticket_id_key = ?", key)
	if guard != nil {
		q = q.Where("status = ?", *guard)
	}
	res := q.Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *repository) CreateTickets(ctx context.Context, tickets []models.IndividualTicket) error {
	if len(tickets) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&tickets).Error
}

func (r *repository) ListTickets(ctx context.Context, orderID uuid.UUID) ([]models.IndividualTicket, error) {
	var rows []models.IndividualTicket
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("ticket_id ASC").Find(&rows).Error
	return rows, err
}

// Delete removes the order and everything it owns.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	db := r.db.WithContext(ctx)
	for _, child := range []any{&models.IndividualTicket{}, &models.OrderLineItem{}, &models.PaymentProof{}} {
		if err := db.Where("order_id = ?", id).Delete(child).Error; err != nil {
			return false, err
		}
	}
	res := db.Where("id = ?", id).Delete(&models.Order{})
	return res.RowsAffected == 1, res.Error
}

// withDetails preloads line items, tickets and proof metadata. Proof bytes are served separately.
func (r *repository) withDetails(q *gorm.DB) *gorm.DB {
	return q.
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("ticket_type_name ASC") }).
		Preload("Tickets", func(db *gorm.DB) *gorm.DB { return db.Order("ticket_id ASC") }).
		Preload("Proof", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "order_id", "file_name", "content_type", "size_bytes", "created_at")
		})
}
