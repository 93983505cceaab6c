package inventory

import (
	"context"
	"time"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists ticket types and reservations. Counter updates are guarded so
// a zero RowsAffected means the guard rejected the change.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	List(ctx context.Context) ([]models.TicketType, error)
	Get(ctx context.Context, id string) (*models.TicketType, error)
	LockMany(ctx context.Context, ids []string) (map[string]models.TicketType, error)
	Upsert(ctx context.Context, tier models.TicketType) error

	AddReserved(ctx context.Context, id string, qty int) (bool, error)
	SubtractReserved(ctx context.Context, id string, qty int) error
	MoveReservedToSold(ctx context.Context, id string, qty int) (bool, error)
	AddSold(ctx context.Context, id string, qty int) (bool, error)
	SubtractSold(ctx context.Context, id string, qty int) error
	ResetCounters(ctx context.Context) (int64, error)

	CreateReservation(ctx context.Context, res *models.Reservation) error
	FindReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	TransitionReservation(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus) (bool, error)
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the inventory repository to the provided connection.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) List(ctx context.Context) ([]models.TicketType, error) {
	var rows []models.TicketType
	if err := r.db.WithContext(ctx).Order("sort_order ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Get(ctx context.Context, id string) (*models.TicketType, error) {
	var row models.TicketType
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// LockMany loads the rows, taking row locks where the dialect supports them.
func (r *repository) LockMany(ctx context.Context, ids []string) (map[string]models.TicketType, error) {
	q := r.db.WithContext(ctx).Where("id IN ?", ids)
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []models.TicketType
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]models.TicketType, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *repository) Upsert(ctx context.Context, tier models.TicketType) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "unit_price", "total_stock", "sort_order", "updated_at"}),
	}).Create(&tier).Error
}

func (r *repository) AddReserved(ctx context.Context, id string, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.TicketType{}).
		Where("id = ? AND sold_count + reserved_count + ? <= total_stock", id, qty).
		Updates(map[string]any{
			"reserved_count": gorm.Expr("reserved_count + ?", qty),
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) SubtractReserved(ctx context.Context, id string, qty int) error {
	return r.db.WithContext(ctx).Model(&models.TicketType{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"reserved_count": gorm.Expr("CASE WHEN reserved_count >= ? THEN reserved_count - ? ELSE 0 END", qty, qty),
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *repository) MoveReservedToSold(ctx context.Context, id string, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.TicketType{}).
		Where("id = ? AND sold_count + ? + (CASE WHEN reserved_count >= ? THEN reserved_count - ? ELSE 0 END) <= total_stock", id, qty, qty, qty).
		Updates(map[string]any{
			"sold_count":     gorm.Expr("sold_count + ?", qty),
			"reserved_count": gorm.Expr("CASE WHEN reserved_count >= ? THEN reserved_count - ? ELSE 0 END", qty, qty),
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) AddSold(ctx context.Context, id string, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.TicketType{}).
		Where("id = ? AND sold_count + reserved_count + ? <= total_stock", id, qty).
		Updates(map[string]any{
			"sold_count": gorm.Expr("sold_count + ?", qty),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) SubtractSold(ctx context.Context, id string, qty int) error {
	return r.db.WithContext(ctx).Model(&models.TicketType{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sold_count": gorm.Expr("CASE WHEN sold_count >= ? THEN sold_count - ? ELSE 0 END", qty, qty),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) ResetCounters(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.TicketType{}).
		Where("1 = 1").
		Updates(map[string]any{
			"sold_count":     0,
			"reserved_count": 0,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateReservation(ctx context.Context, res *models.Reservation) error {
	return r.db.WithContext(ctx).Create(res).Error
}

func (r *repository) FindReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var res models.Reservation
	if err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&res).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *repository) TransitionReservation(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	var rows []models.Reservation
	q := r.db.WithContext(ctx).Preload("Items").
		Where("status = ? AND expires_at <= ?", enums.ReservationStatusActive, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
