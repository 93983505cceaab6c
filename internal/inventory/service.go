// Package inventory is the authoritative per-tier stock ledger: reservations, sales and availability.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/maskball-tickets/internal/ledger"
	"github.com/angelmondragon/maskball-tickets/pkg/catalog"
	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/keylock"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/angelmondragon/maskball-tickets/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Service exposes the ledger operations. Insufficient stock is reported through the
// boolean or shortage results, never as an error.
//
// The *Tx variants run inside a transaction owned by the caller, who must hold Lock
// for the same items until that transaction commits.
type Service interface {
	List(ctx context.Context) ([]models.TicketType, error)
	GetAvailable(ctx context.Context, ticketTypeID string) (int, error)
	CheckCartAvailability(ctx context.Context, items []Item) (CartCheck, error)
	Reserve(ctx context.Context, items []Item) (bool, error)
	Release(ctx context.Context, items []Item) error
	Confirm(ctx context.Context, items []Item) (bool, error)
	DirectSell(ctx context.Context, items []Item) (bool, error)
	ResetAll(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
	Seed(ctx context.Context, cat *catalog.Catalog) error

	Hold(ctx context.Context, reference string, items []Item, ttl time.Duration) (*models.Reservation, []Shortage, error)
	GetHold(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
	ReleaseHold(ctx context.Context, reservationID uuid.UUID, status enums.ReservationStatus) (bool, error)
	ExpireHolds(ctx context.Context, limit int) ([]models.Reservation, error)

	Lock(items []Item) func()
	DirectSellTx(ctx context.Context, tx *gorm.DB, items []Item, reference string) ([]Shortage, error)
	ConfirmHoldTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID, reference string) error
	RestockTx(ctx context.Context, tx *gorm.DB, items []Item, reference string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the ledger dependencies.
type ServiceParams struct {
	TxRunner txRunner
	Repo     Repository
	Journal  ledger.Journal
	Locks    *keylock.Locker
	Metrics  *metrics.LedgerMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	tx      txRunner
	repo    Repository
	journal ledger.Journal
	locks   *keylock.Locker
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// ErrHoldInactive is returned when a reservation was already confirmed, released or expired.
var ErrHoldInactive = pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is no longer active")

// errShort aborts a transaction once shortages were found so nothing is applied.
var errShort = errors.New("inventory short")

// errRace signals a guarded update lost despite the pre-check; the transaction is rolled back.
var errRace = errors.New("inventory guard rejected update")

func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Journal == nil {
		return nil, fmt.Errorf("ledger journal required")
	}
	if params.Locks == nil {
		params.Locks = keylock.New()
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:      params.TxRunner,
		repo:    params.Repo,
		journal: params.Journal,
		locks:   params.Locks,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     params.Now,
	}, nil
}

func (s *service) List(ctx context.Context) ([]models.TicketType, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ticket types")
	}
	return rows, nil
}

func (s *service) GetAvailable(ctx context.Context, ticketTypeID string) (int, error) {
	row, err := s.repo.Get(ctx, strings.TrimSpace(ticketTypeID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("unknown ticket type %q", ticketTypeID))
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket type")
	}
	return row.Available(), nil
}

func (s *service) CheckCartAvailability(ctx context.Context, items []Item) (CartCheck, error) {
	normalized, err := normalizeItems(items)
	if err != nil {
		return CartCheck{}, err
	}
	rows, err := s.repo.LockMany(ctx, itemIDs(normalized))
	if err != nil {
		return CartCheck{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket types")
	}

	check := CartCheck{Valid: true, Errors: []string{}}
	for _, item := range normalized {
		row, ok := rows[item.TicketTypeID]
		if !ok {
			check.Valid = false
			check.Errors = append(check.Errors, fmt.Sprintf("Unknown ticket type %s", item.TicketTypeID))
			continue
		}
		if available := row.Available(); item.Quantity > available {
			shortage := Shortage{TicketTypeID: row.ID, Name: row.DisplayName, Requested: item.Quantity, Available: available}
			check.Valid = false
			check.Shortages = append(check.Shortages, shortage)
			check.Errors = append(check.Errors, shortage.Message())
		}
	}
	return check, nil
}

func (s *service) Reserve(ctx context.Context, items []Item) (bool, error) {
	normalized, err := normalizeItems(items)
	if err != nil {
		return false, err
	}
	unlock := s.locks.LockAll(itemIDs(normalized))
	defer unlock()

	var shortages []Shortage
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		shortages, txErr = s.reserveTx(ctx, tx, normalized, "")
		return txErr
	})
	return s.settle(ctx, "reserve", normalized, shortages, err)
}

func (s *service) Release(ctx context.Context, items []Item) error {
	normalized, err := normalizeItems(items)
	if err != nil {
		return err
	}
	unlock := s.locks.LockAll(itemIDs(normalized))
	defer unlock()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.releaseTx(ctx, tx, normalized, "")
	})
	if _, settleErr := s.settle(ctx, "release", normalized, nil, err); settleErr != nil {
		return settleErr
	}
	return nil
}

func (s *service) Confirm(ctx context.Context, items []Item) (bool, error) {
	normalized, err := normalizeItems(items)
	if err != nil {
		return false, err
	}
	unlock := s.locks.LockAll(itemIDs(normalized))
	defer unlock()

	var shortages []Shortage
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		shortages, txErr = s.confirmTx(ctx, tx, normalized, "")
		return txErr
	})
	return s.settle(ctx, "confirm", normalized, shortages, err)
}

// DirectSell sells without a hold, all or nothing. Units held for pending card payments
// count against availability, so sold+reserved never exceeds total stock.
func (s *service) DirectSell(ctx context.Context, items []Item) (bool, error) {
	normalized, err := normalizeItems(items)
	if err != nil {
		return false, err
	}
	unlock := s.locks.LockAll(itemIDs(normalized))
	defer unlock()

	var shortages []Shortage
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		shortages, txErr = s.DirectSellTx(ctx, tx, normalized, "")
		if txErr == nil && len(shortages) > 0 {
			return errShort
		}
		return txErr
	})
	return s.settle(ctx, "direct_sell", normalized, shortages, err)
}

func (s *service) ResetAll(ctx context.Context) error {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ticket types")
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	unlock := s.locks.LockAll(ids)
	defer unlock()

	var reset int64
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		reset, txErr = s.repo.WithTx(tx).ResetCounters(ctx)
		if txErr != nil {
			return txErr
		}
		entries := make([]ledger.Entry, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, ledger.Entry{
				TicketTypeID: row.ID,
				Type:         enums.StockMovementReset,
				Quantity:     row.SoldCount + row.ReservedCount,
			})
		}
		return s.journal.Record(ctx, tx, entries)
	})
	if err != nil {
		s.metrics.Observe("reset", "error")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset inventory")
	}
	s.metrics.Observe("reset", "applied")
	if s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "ticket_types", reset), "inventory.reset_all")
	}
	return nil
}

func (s *service) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return Stats{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ticket types")
	}
	var stats Stats
	for _, row := range rows {
		stats.TotalStock += row.TotalStock
		stats.Sold += row.SoldCount
		stats.Reserved += row.ReservedCount
		stats.Available += row.Available()
	}
	return stats, nil
}

// Seed upserts the catalog tiers. Counters are never touched and a tier cannot shrink
// below what is already sold or held.
func (s *service) Seed(ctx context.Context, cat *catalog.Catalog) error {
	if cat == nil {
		return fmt.Errorf("catalog required")
	}
	ids := make([]string, 0, len(cat.Tiers))
	for _, tier := range cat.Tiers {
		ids = append(ids, tier.ID)
	}
	unlock := s.locks.LockAll(ids)
	defer unlock()

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.LockMany(ctx, ids)
		if err != nil {
			return err
		}
		for i, tier := range cat.Tiers {
			if row, ok := existing[tier.ID]; ok && tier.Stock < row.SoldCount+row.ReservedCount {
				return fmt.Errorf("tier %q: stock %d is below committed %d", tier.ID, tier.Stock, row.SoldCount+row.ReservedCount)
			}
			if err := repo.Upsert(ctx, models.TicketType{
				ID:          tier.ID,
				DisplayName: tier.Name,
				UnitPrice:   tier.Price,
				TotalStock:  tier.Stock,
				SortOrder:   i,
			}); err != nil {
				return fmt.Errorf("upsert tier %q: %w", tier.ID, err)
			}
		}
		if s.logg != nil {
			s.logg.Info(s.logg.WithField(ctx, "tiers", len(cat.Tiers)), "inventory.catalog_seeded")
		}
		return nil
	})
}

// Hold reserves the items and records a reservation that expires after ttl.
func (s *service) Hold(ctx context.Context, reference string, items []Item, ttl time.Duration) (*models.Reservation, []Shortage, error) {
	normalized, err := normalizeItems(items)
	if err != nil {
		return nil, nil, err
	}
	if ttl <= 0 {
		return nil, nil, fmt.Errorf("hold ttl must be positive")
	}
	unlock := s.locks.LockAll(itemIDs(normalized))
	defer unlock()

	var (
		shortages []Shortage
		hold      *models.Reservation
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		shortages, txErr = s.reserveTx(ctx, tx, normalized, reference)
		if txErr != nil {
			return txErr
		}
		hold = &models.Reservation{
			Reference: reference,
			Status:    enums.ReservationStatusActive,
			ExpiresAt: s.now().Add(ttl),
		}
		for _, item := range normalized {
			hold.Items = append(hold.Items, models.ReservationItem{TicketTypeID: item.TicketTypeID, Quantity: item.Quantity})
		}
		return s.repo.WithTx(tx).CreateReservation(ctx, hold)
	})
	ok, err := s.settle(ctx, "hold", normalized, shortages, err)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, shortages, nil
	}
	return hold, nil, nil
}

func (s *service) GetHold(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	hold, err := s.repo.FindReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	return hold, nil
}

// ReleaseHold returns an active hold to stock. It reports false when the hold had already left
// the active state, which makes repeated releases harmless.
func (s *service) ReleaseHold(ctx context.Context, reservationID uuid.UUID, status enums.ReservationStatus) (bool, error) {
	if status != enums.ReservationStatusReleased && status != enums.ReservationStatusExpired {
		return false, fmt.Errorf("release status must be released or expired, got %q", status)
	}
	hold, err := s.GetHold(ctx, reservationID)
	if err != nil {
		return false, err
	}
	if hold.Status != enums.ReservationStatusActive {
		return false, nil
	}
	items := reservationItems(hold)
	unlock := s.Lock(items)
	defer unlock()

	var released bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, txErr := s.repo.WithTx(tx).TransitionReservation(ctx, hold.ID, enums.ReservationStatusActive, status)
		if txErr != nil || !moved {
			return txErr
		}
		released = true
		return s.releaseTx(ctx, tx, items, hold.Reference)
	})
	if err != nil {
		s.metrics.Observe("release_hold", "error")
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release reservation")
	}
	if released {
		s.metrics.Observe("release_hold", string(status))
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"reservation_id": hold.ID.String(),
				"reference":      hold.Reference,
				"status":         string(status),
			})
			s.logg.Info(logCtx, "inventory.hold_released")
		}
	}
	return released, nil
}

// ExpireHolds releases every active hold past its expiry and returns the holds it released.
// Per-hold failures are collected so one bad row does not block the rest.
func (s *service) ExpireHolds(ctx context.Context, limit int) ([]models.Reservation, error) {
	candidates, err := s.repo.ListExpiredReservations(ctx, s.now(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired reservations")
	}
	var (
		expired []models.Reservation
		errList error
	)
	for _, hold := range candidates {
		released, releaseErr := s.ReleaseHold(ctx, hold.ID, enums.ReservationStatusExpired)
		if releaseErr != nil {
			errList = multierr.Append(errList, fmt.Errorf("reservation %s: %w", hold.ID, releaseErr))
			continue
		}
		if released {
			hold.Status = enums.ReservationStatusExpired
			expired = append(expired, hold)
		}
	}
	return expired, errList
}

func (s *service) Lock(items []Item) func() {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, strings.TrimSpace(item.TicketTypeID))
	}
	return s.locks.LockAll(ids)
}

// DirectSellTx moves stock straight to sold, counting held units as taken. Shortages are
// returned before anything is written.
func (s *service) DirectSellTx(ctx context.Context, tx *gorm.DB, items []Item, reference string) ([]Shortage, error) {
	normalized, err := normalizeItems(items)
	if err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)
	shortages, err := s.precheck(ctx, repo, normalized, func(row models.TicketType, qty int) bool {
		return row.SoldCount+row.ReservedCount+qty <= row.TotalStock
	})
	if err != nil || len(shortages) > 0 {
		return shortages, err
	}
	for _, item := range normalized {
		ok, err := repo.AddSold(ctx, item.TicketTypeID, item.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errRace
		}
	}
	return nil, s.journal.Record(ctx, tx, entriesFor(normalized, enums.StockMovementDirectSell, reference))
}

// ConfirmHoldTx converts an active hold into sold stock and marks it confirmed.
func (s *service) ConfirmHoldTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID, reference string) error {
	repo := s.repo.WithTx(tx)
	hold, err := repo.FindReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return err
	}
	moved, err := repo.TransitionReservation(ctx, hold.ID, enums.ReservationStatusActive, enums.ReservationStatusConfirmed)
	if err != nil {
		return err
	}
	if !moved {
		return ErrHoldInactive
	}
	items := reservationItems(hold)
	shortages, err := s.confirmTx(ctx, tx, items, reference)
	if len(shortages) > 0 {
		return SoldOutError(shortages)
	}
	if err != nil {
		return err
	}
	for _, item := range items {
		s.metrics.AddUnits("confirm", item.TicketTypeID, item.Quantity)
	}
	s.metrics.Observe("confirm_hold", "applied")
	return nil
}

// RestockTx returns sold units to stock, floored at zero.
func (s *service) RestockTx(ctx context.Context, tx *gorm.DB, items []Item, reference string) error {
	normalized, err := normalizeItems(items)
	if err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	for _, item := range normalized {
		if err := repo.SubtractSold(ctx, item.TicketTypeID, item.Quantity); err != nil {
			return err
		}
	}
	s.metrics.Observe("restock", "applied")
	return s.journal.Record(ctx, tx, entriesFor(normalized, enums.StockMovementRestock, reference))
}

func (s *service) reserveTx(ctx context.Context, tx *gorm.DB, items []Item, reference string) ([]Shortage, error) {
	repo := s.repo.WithTx(tx)
	shortages, err := s.precheck(ctx, repo, items, func(row models.TicketType, qty int) bool {
		return row.SoldCount+row.ReservedCount+qty <= row.TotalStock
	})
	if err != nil {
		return nil, err
	}
	if len(shortages) > 0 {
		return shortages, errShort
	}
	for _, item := range items {
		ok, err := repo.AddReserved(ctx, item.TicketTypeID, item.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errRace
		}
	}
	return nil, s.journal.Record(ctx, tx, entriesFor(items, enums.StockMovementReserve, reference))
}

func (s *service) releaseTx(ctx context.Context, tx *gorm.DB, items []Item, reference string) error {
	repo := s.repo.WithTx(tx)
	rows, err := repo.LockMany(ctx, itemIDs(items))
	if err != nil {
		return err
	}
	if missing := missingIDs(items, rows); len(missing) > 0 {
		return unknownTypes(missing)
	}
	for _, item := range items {
		if err := repo.SubtractReserved(ctx, item.TicketTypeID, item.Quantity); err != nil {
			return err
		}
	}
	return s.journal.Record(ctx, tx, entriesFor(items, enums.StockMovementRelease, reference))
}

func (s *service) confirmTx(ctx context.Context, tx *gorm.DB, items []Item, reference string) ([]Shortage, error) {
	repo := s.repo.WithTx(tx)
	shortages, err := s.precheck(ctx, repo, items, func(row models.TicketType, qty int) bool {
		reserved := row.ReservedCount - qty
		if reserved < 0 {
			reserved = 0
		}
		return row.SoldCount+qty+reserved <= row.TotalStock
	})
	if err != nil {
		return nil, err
	}
	if len(shortages) > 0 {
		return shortages, errShort
	}
	for _, item := range items {
		ok, err := repo.MoveReservedToSold(ctx, item.TicketTypeID, item.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errRace
		}
	}
	return nil, s.journal.Record(ctx, tx, entriesFor(items, enums.StockMovementConfirm, reference))
}

// precheck loads and locks the rows, failing on unknown ids and collecting shortages.
func (s *service) precheck(ctx context.Context, repo Repository, items []Item, fits func(models.TicketType, int) bool) ([]Shortage, error) {
	rows, err := repo.LockMany(ctx, itemIDs(items))
	if err != nil {
		return nil, err
	}
	if missing := missingIDs(items, rows); len(missing) > 0 {
		return nil, unknownTypes(missing)
	}
	var shortages []Shortage
	for _, item := range items {
		row := rows[item.TicketTypeID]
		if !fits(row, item.Quantity) {
			shortages = append(shortages, Shortage{
				TicketTypeID: row.ID,
				Name:         row.DisplayName,
				Requested:    item.Quantity,
				Available:    row.Available(),
			})
		}
	}
	return shortages, nil
}

// settle maps a transaction outcome onto the (applied, error) contract and records metrics.
func (s *service) settle(ctx context.Context, op string, items []Item, shortages []Shortage, err error) (bool, error) {
	switch {
	case err == nil:
		s.metrics.Observe(op, "applied")
		for _, item := range items {
			s.metrics.AddUnits(op, item.TicketTypeID, item.Quantity)
		}
		if s.logg != nil {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{"operation": op, "items": items}), "inventory.applied")
		}
		return true, nil
	case errors.Is(err, errShort), errors.Is(err, errRace):
		s.metrics.Observe(op, "short")
		if s.logg != nil {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{"operation": op, "shortages": ShortageMessages(shortages)}), "inventory.insufficient_stock")
		}
		return false, nil
	default:
		s.metrics.Observe(op, "error")
		if typed := pkgerrors.As(err); typed != nil {
			return false, typed
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("inventory %s", op))
	}
}

func entriesFor(items []Item, kind enums.StockMovementType, reference string) []ledger.Entry {
	entries := make([]ledger.Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, ledger.Entry{
			TicketTypeID: item.TicketTypeID,
			Type:         kind,
			Quantity:     item.Quantity,
			Reference:    reference,
		})
	}
	return entries
}

func missingIDs(items []Item, rows map[string]models.TicketType) []string {
	var missing []string
	for _, item := range items {
		if _, ok := rows[item.TicketTypeID]; !ok {
			missing = append(missing, item.TicketTypeID)
		}
	}
	return missing
}

func unknownTypes(ids []string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("unknown ticket type(s): %s", strings.Join(ids, ", "))).
		WithDetails(map[string]any{"ticket_type_ids": ids})
}
