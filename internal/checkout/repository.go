package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

// Repository persists card checkout sessions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.CheckoutSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error)
	FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.CheckoutSession, error)
	MarkCompleted(ctx context.Context, id, orderID uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error)
}

// openStatuses are the session states a payment outcome may still settle.
var openStatuses = []enums.CheckoutSessionStatus{
	enums.CheckoutSessionAwaitingPayment,
	enums.CheckoutSessionExpired,
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout session repository backed by the provided DB.
func NewRepository(db *gorm.DB) Repository {
	if db == nil {
		return nil
	}
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.CheckoutSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := r.db.WithContext(ctx).Where("provider_payment_id = ?", providerPaymentID).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// MarkCompleted settles an open session exactly once.
func (r *repository) MarkCompleted(ctx context.Context, id, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.CheckoutSession{}).
		Where("id = ? AND status IN ?", id, openStatuses).
		Updates(map[string]any{
			"status":     enums.CheckoutSessionCompleted,
			"order_id":   orderID,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.CheckoutSession{}).
		Where("id = ? AND status IN ?", id, openStatuses).
		Updates(map[string]any{
			"status":         enums.CheckoutSessionFailed,
			"failure_reason": reason,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

// ExpireStale flags sessions still awaiting payment after their hold lapsed. A late success
// may still settle an expired session.
func (r *repository) ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error) {
	sub := r.db.WithContext(ctx).Model(&models.CheckoutSession{}).Select("id").
		Where("status = ? AND expires_at <= ?", enums.CheckoutSessionAwaitingPayment, now).
		Order("expires_at ASC")
	if limit > 0 {
		sub = sub.Limit(limit)
	}
	var ids []uuid.UUID
	if err := sub.Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&models.CheckoutSession{}).
		Where("id IN ? AND status = ?", ids, enums.CheckoutSessionAwaitingPayment).
		Updates(map[string]any{
			"status":     enums.CheckoutSessionExpired,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
