package admin

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox"
)

type deadLetterStore interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	RequeueTx(tx *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error)
}

// FailedNotification is a customer message the notifier gave up on.
type FailedNotification struct {
	EventID     uuid.UUID                  `json:"event_id"`
	EventType   enums.OutboxEventType      `json:"event_type"`
	AggregateID uuid.UUID                  `json:"aggregate_id"`
	Reason      enums.OutboxDLQErrorReason `json:"reason"`
	Error       string                     `json:"error,omitempty"`
	Attempts    int                        `json:"attempts"`
	FailedAt    time.Time                  `json:"failed_at"`
	Requeueable bool                       `json:"requeueable"`
}

func (s *service) ListFailedNotifications(ctx context.Context, reason *enums.OutboxDLQErrorReason, limit int) ([]FailedNotification, error) {
	if s.deadLetters == nil {
		return []FailedNotification{}, nil
	}
	rows, err := s.deadLetters.List(ctx, outbox.DLQFilter{Reason: reason, Limit: limit})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list failed notifications")
	}
	out := make([]FailedNotification, 0, len(rows))
	for _, row := range rows {
		item := FailedNotification{
			EventID:     row.EventID,
			EventType:   row.EventType,
			AggregateID: row.AggregateID,
			Reason:      row.ErrorReason,
			Attempts:    row.AttemptCount,
			FailedAt:    row.FailedAt,
			Requeueable: row.ErrorReason.Requeueable(),
		}
		if row.ErrorMessage != nil {
			item.Error = *row.ErrorMessage
		}
		out = append(out, item)
	}
	return out, nil
}

// RequeueNotification sends a dead-lettered message back to the notifier, typically after
// the customer's email was corrected.
func (s *service) RequeueNotification(ctx context.Context, eventID uuid.UUID, staff string) error {
	if s.deadLetters == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no failed notifications are tracked")
	}
	var entry *models.OutboxDLQ
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = s.deadLetters.RequeueTx(tx, eventID)
		return err
	})
	switch {
	case errors.Is(err, outbox.ErrDeadLetterNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "failed notification not found")
	case errors.Is(err, outbox.ErrNotRequeueable):
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "notification failed as %s and cannot be retried", entry.ErrorReason)
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "requeue notification")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":   eventID.String(),
			"event_type": entry.EventType,
			"reason":     entry.ErrorReason,
			"staff":      strings.TrimSpace(staff),
		}), "admin.notification_requeued")
	}
	return nil
}
