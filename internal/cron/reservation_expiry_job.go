package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox/payloads"
)

const defaultExpiryBatch = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type holdExpirer interface {
	ExpireHolds(ctx context.Context, limit int) ([]models.Reservation, error)
}

type sessionExpirer interface {
	ExpireSessions(ctx context.Context, limit int) (int64, error)
}

// ReservationExpiryJobParams configure the reaper for abandoned holds.
type ReservationExpiryJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Inventory holdExpirer
	Checkout  sessionExpirer
	Outbox    outboxEmitter
	BatchSize int
}

// NewReservationExpiryJob builds the job that returns lapsed holds to stock and closes the
// checkout sessions that owned them.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &reservationExpiryJob{
		logg:      params.Logger,
		db:        params.DB,
		inventory: params.Inventory,
		checkout:  params.Checkout,
		outbox:    params.Outbox,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type reservationExpiryJob struct {
	logg      *logger.Logger
	db        txRunner
	inventory holdExpirer
	checkout  sessionExpirer
	outbox    outboxEmitter
	batch     int
	now       func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

// Run releases expired holds first, then flags their sessions. A hold released here is
// already back in stock even when queueing its event fails.
func (j *reservationExpiryJob) Run(ctx context.Context) error {
	expired, expireErr := j.inventory.ExpireHolds(ctx, j.batch)

	var errs error
	if expireErr != nil {
		errs = multierr.Append(errs, fmt.Errorf("expire holds: %w", expireErr))
	}
	if len(expired) > 0 {
		if err := j.emitExpired(ctx, expired); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("queue expiry events: %w", err))
		}
	}

	var sessions int64
	if j.checkout != nil {
		count, err := j.checkout.ExpireSessions(ctx, j.batch)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		sessions = count
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"holds_released":   len(expired),
		"sessions_expired": sessions,
	})
	j.logg.Info(logCtx, "reservation expiry sweep complete")
	return errs
}

func (j *reservationExpiryJob) emitExpired(ctx context.Context, holds []models.Reservation) error {
	at := j.now().UTC()
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		for _, hold := range holds {
			items := make(map[string]int, len(hold.Items))
			for _, item := range hold.Items {
				items[item.TicketTypeID] += item.Quantity
			}
			err := j.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventReservationExpired,
				AggregateType: enums.AggregateReservation,
				AggregateID:   hold.ID,
				Actor:         outbox.SystemActor("reservation-reaper"),
				Data: payloads.ReservationExpired{
					ReservationID: hold.ID,
					Reference:     hold.Reference,
					Items:         items,
					ExpiredAt:     at,
				},
				OccurredAt: at,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
