package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

const (
	maxDLQErrorLen  = 1024
	defaultDLQLimit = 50
)

// ErrDeadLetterNotFound is returned when no dead letter exists for an outbox event.
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// ErrNotRequeueable is returned for dead letters that would fail the same way again.
var ErrNotRequeueable = errors.New("dead letter cannot be requeued")

// DLQFilter narrows List. A nil Reason lists every reason.
type DLQFilter struct {
	Reason *enums.OutboxDLQErrorReason
	Limit  int
}

// DLQRepository stores notifications the notifier gave up on so staff can inspect them and
// send them again once the cause is fixed.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := clipUTF8(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// List returns dead letters, most recent failure first.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDLQLimit
	}
	q := r.db.WithContext(ctx).Order("failed_at DESC").Limit(limit)
	if filter.Reason != nil {
		q = q.Where("error_reason = ?", *filter.Reason)
	}
	var rows []models.OutboxDLQ
	return rows, q.Find(&rows).Error
}

// RequeueTx hands a dead-lettered event back to the notifier: the parked outbox row's
// attempts and last error are cleared and the dead letter is removed. The payload, and with
// it the delivery identity, is unchanged.
func (r *DLQRepository) RequeueTx(tx *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var entry models.OutboxDLQ
	if err := tx.Where("event_id = ?", eventID).Order("failed_at DESC").First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeadLetterNotFound
		}
		return nil, err
	}
	if !entry.ErrorReason.Requeueable() {
		return &entry, ErrNotRequeueable
	}
	res := tx.Model(&models.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL", eventID).
		Updates(map[string]any{"attempt_count": 0, "last_error": nil})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("outbox event %s missing or already delivered", eventID)
	}
	if err := tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteFailedBefore drops dead letters that failed before cutoff along with their parked
// outbox rows.
func (r *DLQRepository) DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	expired := tx.Session(&gorm.Session{NewDB: true}).Model(&models.OutboxDLQ{}).Select("event_id").Where("failed_at < ?", cutoff)
	if err := tx.Where("id IN (?) AND published_at IS NULL", expired).Delete(&models.OutboxEvent{}).Error; err != nil {
		return 0, err
	}
	res := tx.Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

func clipUTF8(message string, max int) string {
	if len(message) <= max {
		return message
	}
	cut := message[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
