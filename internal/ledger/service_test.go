package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	"gorm.io/gorm"
)

type fakeRepository struct {
	txBound  bool
	created  []models.StockMovement
	createFn func(ctx context.Context, movements []models.StockMovement) error
	history  []models.StockMovement
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	if tx != nil {
		f.txBound = true
	}
	return f
}

func (f *fakeRepository) Create(ctx context.Context, movements []models.StockMovement) error {
	if f.createFn != nil {
		return f.createFn(ctx, movements)
	}
	f.created = append(f.created, movements...)
	return nil
}

func (f *fakeRepository) ListByTicketType(ctx context.Context, ticketTypeID string, limit int) ([]models.StockMovement, error) {
	return f.history, nil
}

func TestJournal_Record(t *testing.T) {
	repo := &fakeRepository{}
	j, err := NewJournal(repo)
	if err != nil {
		t.Fatalf("unexpected journal error: %v", err)
	}

	err = j.Record(context.Background(), &gorm.DB{}, []Entry{
		{TicketTypeID: "early-bird", Type: enums.StockMovementDirectSell, Quantity: 3, Reference: "MASK-ABC12345"},
		{TicketTypeID: "vip", Type: enums.StockMovementReserve, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if !repo.txBound {
		t.Fatal("expected journal to write through the caller transaction")
	}
	if len(repo.created) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(repo.created))
	}
	if repo.created[0].Reference == nil || *repo.created[0].Reference != "MASK-ABC12345" {
		t.Fatalf("reference not preserved: %+v", repo.created[0])
	}
	if repo.created[1].Reference != nil {
		t.Fatalf("blank reference should stay nil")
	}
}

func TestJournal_RecordValidation(t *testing.T) {
	repo := &fakeRepository{}
	j, _ := NewJournal(repo)

	cases := []Entry{
		{TicketTypeID: "", Type: enums.StockMovementReserve, Quantity: 1},
		{TicketTypeID: "vip", Type: "teleport", Quantity: 1},
		{TicketTypeID: "vip", Type: enums.StockMovementRelease, Quantity: -1},
	}
	for _, entry := range cases {
		if err := j.Record(context.Background(), nil, []Entry{entry}); err == nil {
			t.Fatalf("expected validation error for %+v", entry)
		}
	}
	if len(repo.created) != 0 {
		t.Fatalf("nothing should be written on validation failure")
	}
}

func TestJournal_RecordPropagatesRepoError(t *testing.T) {
	repo := &fakeRepository{createFn: func(context.Context, []models.StockMovement) error {
		return errors.New("db down")
	}}
	j, _ := NewJournal(repo)
	err := j.Record(context.Background(), nil, []Entry{{TicketTypeID: "vip", Type: enums.StockMovementConfirm, Quantity: 1}})
	if err == nil {
		t.Fatal("expected repository error")
	}
}

func TestJournal_History(t *testing.T) {
	repo := &fakeRepository{history: []models.StockMovement{{TicketTypeID: "vip", Type: enums.StockMovementReset}}}
	j, _ := NewJournal(repo)
	got, err := j.History(context.Background(), "vip", 10)
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected history entry")
	}
	if _, err := j.History(context.Background(), " ", 10); err == nil {
		t.Fatal("expected blank ticket type to be rejected")
	}
}

func TestNewJournalRequiresRepo(t *testing.T) {
	if _, err := NewJournal(nil); err == nil {
		t.Fatal("expected nil repository to fail")
	}
}
