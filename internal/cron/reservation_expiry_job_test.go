package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox/payloads"
)

type fakeHoldExpirer struct {
	holds []models.Reservation
	err   error
	limit int
}

func (f *fakeHoldExpirer) ExpireHolds(_ context.Context, limit int) ([]models.Reservation, error) {
	f.limit = limit
	return f.holds, f.err
}

type fakeSessionExpirer struct {
	count int64
	calls int
}

func (f *fakeSessionExpirer) ExpireSessions(context.Context, int) (int64, error) {
	f.calls++
	return f.count, nil
}

type recordingEmitter struct {
	events []outbox.DomainEvent
	err    error
}

func (r *recordingEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func newReservationExpiryJob(t *testing.T, holds *fakeHoldExpirer, sessions *fakeSessionExpirer, emitter *recordingEmitter) *reservationExpiryJob {
	t.Helper()
	jobIface, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		DB:        passThroughTx{},
		Inventory: holds,
		Checkout:  sessions,
		Outbox:    emitter,
	})
	if err != nil {
		t.Fatalf("NewReservationExpiryJob: %v", err)
	}
	job, ok := jobIface.(*reservationExpiryJob)
	if !ok {
		t.Fatalf("expected reservationExpiryJob, got %T", jobIface)
	}
	return job
}

func TestReservationExpiryJobQueuesOneEventPerHold(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	holdID := uuid.New()
	holds := &fakeHoldExpirer{holds: []models.Reservation{{
		ID:        holdID,
		Reference: "checkout:abc",
		Items: []models.ReservationItem{
			{TicketTypeID: "vip", Quantity: 1},
			{TicketTypeID: "early-bird", Quantity: 2},
		},
	}}}
	sessions := &fakeSessionExpirer{count: 1}
	emitter := &recordingEmitter{}
	job := newReservationExpiryJob(t, holds, sessions, emitter)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if holds.limit != defaultExpiryBatch {
		t.Fatalf("expected batch %d, got %d", defaultExpiryBatch, holds.limit)
	}
	if sessions.calls != 1 {
		t.Fatalf("expected sessions expired once, got %d", sessions.calls)
	}
	if len(emitter.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(emitter.events))
	}
	event := emitter.events[0]
	if event.EventType != enums.EventReservationExpired || event.AggregateID != holdID {
		t.Fatalf("unexpected event %+v", event)
	}
	payload, ok := event.Data.(payloads.ReservationExpired)
	if !ok {
		t.Fatalf("unexpected payload %T", event.Data)
	}
	if payload.Items["early-bird"] != 2 || payload.Items["vip"] != 1 {
		t.Fatalf("unexpected items %v", payload.Items)
	}
	if !payload.ExpiredAt.Equal(now) {
		t.Fatalf("expected expired at %s, got %s", now, payload.ExpiredAt)
	}
}

func TestReservationExpiryJobNoHoldsStillExpiresSessions(t *testing.T) {
	sessions := &fakeSessionExpirer{}
	emitter := &recordingEmitter{}
	job := newReservationExpiryJob(t, &fakeHoldExpirer{}, sessions, emitter)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(emitter.events) != 0 {
		t.Fatalf("expected no events, got %d", len(emitter.events))
	}
	if sessions.calls != 1 {
		t.Fatalf("expected session sweep, got %d calls", sessions.calls)
	}
}

func TestReservationExpiryJobReportsPartialFailure(t *testing.T) {
	holds := &fakeHoldExpirer{
		holds: []models.Reservation{{ID: uuid.New(), Reference: "checkout:ok"}},
		err:   errors.New("reservation x: db locked"),
	}
	sessions := &fakeSessionExpirer{}
	emitter := &recordingEmitter{}
	job := newReservationExpiryJob(t, holds, sessions, emitter)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(emitter.events) != 1 {
		t.Fatalf("released holds must still be reported, got %d events", len(emitter.events))
	}
	if sessions.calls != 1 {
		t.Fatalf("session sweep must still run, got %d calls", sessions.calls)
	}
}

func TestReservationExpiryJobRequiresDependencies(t *testing.T) {
	if _, err := NewReservationExpiryJob(ReservationExpiryJobParams{}); err == nil {
		t.Fatal("expected error without logger")
	}
}
