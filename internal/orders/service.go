// Package orders is the durable order store: creation, lookups, status changes and reporting.
package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	dbpkg "github.com/angelmondragon/maskball-tickets/pkg/db"
	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/keylock"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const orderNumberIndex = "orders_order_number_key_idx"

// ErrDuplicateOrderNumber is returned when the normalized order number already exists.
var ErrDuplicateOrderNumber = pkgerrors.New(pkgerrors.CodeConflict, "duplicate order number")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Store is the order store. It records state; transition policy lives with its callers.
//
// The *Tx variants run inside a caller-owned transaction; callers hold Lock for the order.
type Store interface {
	Create(ctx context.Context, order *models.Order) error
	GetAll(ctx context.Context) ([]models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	GetByTicketID(ctx context.Context, ticketID string) (*models.Order, *models.IndividualTicket, error)
	GetProof(ctx context.Context, orderID uuid.UUID) (*models.PaymentProof, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus, adminNotes *string) (*models.Order, error)
	UpdateTicketStatus(ctx context.Context, ticketID string, status enums.TicketStatus, scannedBy string) (TicketUpdate, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (Stats, error)
	ExportCSV(ctx context.Context, w io.Writer) error

	Lock(id uuid.UUID) func()
	CreateTx(ctx context.Context, tx *gorm.DB, order *models.Order) error
	GetTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Order, error)
	UpdateStatusTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.OrderStatus, adminNotes *string) error
	IssueTicketsTx(ctx context.Context, tx *gorm.DB, order *models.Order) ([]models.IndividualTicket, error)
}

type store struct {
	repo  Repository
	tx    txRunner
	locks *keylock.Locker
	logg  *logger.Logger
	now   func() time.Time
}

// NewStore builds the order store.
func NewStore(repo Repository, tx txRunner, logg *logger.Logger) (Store, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &store{
		repo:  repo,
		tx:    tx,
		locks: keylock.New(),
		logg:  logg,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *store) Lock(id uuid.UUID) func() {
	return s.locks.Lock(id.String())
}

func (s *store) Create(ctx context.Context, order *models.Order) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.CreateTx(ctx, tx, order)
	})
}

// CreateTx inserts the order after checking the normalized number is unused. The unique index
// on the normalized key settles races between concurrent creators.
func (s *store) CreateTx(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	key := NormalizeKey(order.OrderNumber)
	if key == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	if !order.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", order.Status))
	}
	order.OrderNumber = strings.TrimSpace(order.OrderNumber)
	order.OrderNumberKey = key
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	if order.Status == enums.OrderStatusVerified && order.VerifiedAt == nil {
		verifiedAt := order.CreatedAt
		order.VerifiedAt = &verifiedAt
	}

	repo := s.repo.WithTx(tx)
	exists, err := repo.ExistsByNumberKey(ctx, key)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order number")
	}
	if exists {
		return ErrDuplicateOrderNumber
	}
	if err := repo.Create(ctx, order); err != nil {
		if dbpkg.IsUniqueViolation(err, orderNumberIndex) {
			return ErrDuplicateOrderNumber
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderNumber(ctx, order.OrderNumber), map[string]any{
			"status":       string(order.Status),
			"payment_rail": string(order.PaymentRail),
			"tickets":      len(order.Tickets),
		})
		s.logg.Info(logCtx, "order.created")
	}
	return nil
}

func (s *store) GetAll(ctx context.Context) ([]models.Order, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

func (s *store) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.GetTx(ctx, nil, id)
}

func (s *store) GetTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	return order, nil
}

func (s *store) GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	key := NormalizeKey(orderNumber)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	order, err := s.repo.FindByNumberKey(ctx, key)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	return order, nil
}

func (s *store) GetByTicketID(ctx context.Context, ticketID string) (*models.Order, *models.IndividualTicket, error) {
	key := NormalizeKey(ticketID)
	if key == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id is required")
	}
	ticket, err := s.repo.FindTicketByKey(ctx, key)
	if err != nil {
		return nil, nil, notFoundOr(err, "ticket not found", "load ticket")
	}
	order, err := s.Get(ctx, ticket.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return order, ticket, nil
}

func (s *store) GetProof(ctx context.Context, orderID uuid.UUID) (*models.PaymentProof, error) {
	proof, err := s.repo.FindProof(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "payment proof not found", "load payment proof")
	}
	return proof, nil
}

func (s *store) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus, adminNotes *string) (*models.Order, error) {
	unlock := s.Lock(id)
	defer unlock()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.UpdateStatusTx(ctx, tx, id, status, adminNotes)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// UpdateStatusTx sets the status, stamping verifiedAt when the order becomes verified.
func (s *store) UpdateStatusTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.OrderStatus, adminNotes *string) error {
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", status))
	}
	updates := map[string]any{"status": status}
	if status == enums.OrderStatusVerified {
		updates["verified_at"] = s.now()
	}
	if adminNotes != nil {
		updates["admin_notes"] = strings.TrimSpace(*adminNotes)
	}
	ok, err := s.repo.WithTx(tx).UpdateOrder(ctx, id, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": id.String(), "status": string(status)})
		s.logg.Info(logCtx, "order.status_updated")
	}
	return nil
}

// IssueTicketsTx creates the order's individual tickets unless rows already exist in tx, and
// sets order.Tickets to what is persisted. The struct's own Tickets are ignored: a rerun
// transaction may carry tickets whose rows were rolled back.
func (s *store) IssueTicketsTx(ctx context.Context, tx *gorm.DB, order *models.Order) ([]models.IndividualTicket, error) {
	repo := s.repo.WithTx(tx)
	existing, err := repo.ListTickets(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tickets")
	}
	if len(existing) > 0 {
		order.Tickets = existing
		return existing, nil
	}
	tickets := BuildTickets(order)
	if err := repo.CreateTickets(ctx, tickets); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue tickets")
	}
	order.Tickets = tickets
	return tickets, nil
}

// UpdateTicketStatus locates the ticket by normalized id and applies the status. Marking a ticket
// used only succeeds while it is still valid, so redemption happens at most once.
func (s *store) UpdateTicketStatus(ctx context.Context, ticketID string, status enums.TicketStatus, scannedBy string) (TicketUpdate, error) {
	if !status.IsValid() {
		return TicketUpdate{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ticket status %q", status))
	}
	key := NormalizeKey(ticketID)
	ticket, err := s.repo.FindTicketByKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TicketUpdate{Success: false, Error: "ticket not found"}, nil
		}
		return TicketUpdate{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
	}
	order, err := s.Get(ctx, ticket.OrderID)
	if err != nil {
		return TicketUpdate{}, err
	}

	updates := map[string]any{"status": status}
	var guard *enums.TicketStatus
	if status == enums.TicketStatusUsed {
		valid := enums.TicketStatusValid
		guard = &valid
		updates["scanned_at"] = s.now()
		if by := strings.TrimSpace(scannedBy); by != "" {
			updates["scanned_by"] = by
		}
	}
	ok, err := s.repo.UpdateTicket(ctx, key, guard, updates)
	if err != nil {
		return TicketUpdate{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update ticket")
	}
	if !ok {
		return TicketUpdate{Success: false, OrderNumber: order.OrderNumber, TicketType: ticket.TicketTypeName, Error: "ticket is no longer valid"}, nil
	}
	if s.logg != nil {
		logCtx := s.logg.WithTicketID(s.logg.WithOrderNumber(ctx, order.OrderNumber), ticket.TicketID)
		s.logg.Info(s.logg.WithField(logCtx, "status", string(status)), "ticket.status_updated")
	}
	return TicketUpdate{Success: true, OrderNumber: order.OrderNumber, TicketType: ticket.TicketTypeName}, nil
}

func (s *store) Delete(ctx context.Context, id uuid.UUID) error {
	unlock := s.Lock(id)
	defer unlock()

	var deleted bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		deleted, txErr = s.repo.WithTx(tx).Delete(ctx, id)
		return txErr
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "order_id", id.String()), "order.deleted")
	}
	return nil
}

func notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
