// Package admin implements the staff back office: order review, status changes and
// inventory reporting.
package admin

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/maskball-tickets/internal/inventory"
	"github.com/angelmondragon/maskball-tickets/internal/notifications"
	"github.com/angelmondragon/maskball-tickets/internal/orders"
	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox"
)

// ErrOverrideRequired is returned when a verified order would be reverted without the override.
var ErrOverrideRequired = pkgerrors.New(pkgerrors.CodeForbidden, "admin override required to change a verified order")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type Service interface {
	ListOrders(ctx context.Context, filter ListFilter) ([]models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetProof(ctx context.Context, orderID uuid.UUID) (*models.PaymentProof, error)
	UpdateOrderStatus(ctx context.Context, change StatusChange) (*models.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	OrderStats(ctx context.Context) (orders.Stats, error)
	ExportOrders(ctx context.Context, w io.Writer) error
	InventoryStats(ctx context.Context) (InventoryReport, error)
	ResetInventory(ctx context.Context) error
	Reconcile(ctx context.Context) ([]ReconciliationRow, error)
	ListFailedNotifications(ctx context.Context, reason *enums.OutboxDLQErrorReason, limit int) ([]FailedNotification, error)
	RequeueNotification(ctx context.Context, eventID uuid.UUID, staff string) error
}

type ServiceParams struct {
	TxRunner  txRunner
	Orders    orders.Store
	Inventory inventory.Service
	Outbox    outboxPublisher
	Override  OverrideVerifier
	Logger    *logger.Logger

	// DeadLetters is optional; without it no failed notifications are listed.
	DeadLetters deadLetterStore
}

type service struct {
	tx          txRunner
	orders      orders.Store
	inventory   inventory.Service
	outbox      outboxPublisher
	override    OverrideVerifier
	deadLetters deadLetterStore
	logg        *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order store required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Override == nil {
		params.Override = HashedOverride{}
	}
	return &service{
		tx:          params.TxRunner,
		orders:      params.Orders,
		inventory:   params.Inventory,
		outbox:      params.Outbox,
		override:    params.Override,
		deadLetters: params.DeadLetters,
		logg:        params.Logger,
	}, nil
}

func (s *service) ListOrders(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	rows, err := s.orders.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	term := filter.search()
	out := rows[:0]
	for _, order := range rows {
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		if term != "" && !matches(order, term) {
			continue
		}
		out = append(out, order)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matches(order models.Order, term string) bool {
	for _, field := range []string{order.OrderNumber, order.CustomerName, order.CustomerEmail, order.CustomerPhone} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.orders.Get(ctx, id)
}

func (s *service) GetProof(ctx context.Context, orderID uuid.UUID) (*models.PaymentProof, error) {
	return s.orders.GetProof(ctx, orderID)
}

// UpdateOrderStatus applies a staff status change with its stock and notification side
// effects in one transaction:
//   - leaving verified requires the override token
//   - entering rejected returns the order's units to stock
//   - leaving rejected sells the units again and fails when stock ran out
//   - entering verified issues tickets when missing and queues the confirmation
func (s *service) UpdateOrderStatus(ctx context.Context, change StatusChange) (*models.Order, error) {
	if !change.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", change.Status))
	}
	unlock := s.orders.Lock(change.OrderID)
	defer unlock()

	order, err := s.orders.Get(ctx, change.OrderID)
	if err != nil {
		return nil, err
	}
	from, to := order.Status, change.Status
	if from == enums.OrderStatusVerified && to != enums.OrderStatusVerified && !s.override.Verify(change.OverrideToken) {
		s.logTransition(ctx, order, from, to, change.Staff, "admin.override_refused")
		return nil, ErrOverrideRequired
	}

	items := orderItems(order)
	if from != to && len(items) > 0 {
		unlockStock := s.inventory.Lock(items)
		defer unlockStock()
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// each attempt starts from the loaded order; a rerun must not see the last attempt's writes
		order := order.Clone()
		if from != to && len(items) > 0 {
			switch {
			case to == enums.OrderStatusRejected:
				if err := s.inventory.RestockTx(ctx, tx, items, order.OrderNumber); err != nil {
					return err
				}
			case from == enums.OrderStatusRejected:
				shortages, err := s.inventory.DirectSellTx(ctx, tx, items, order.OrderNumber)
				if len(shortages) > 0 {
					return inventory.SoldOutError(shortages)
				}
				if err != nil {
					return err
				}
			}
		}
		if err := s.orders.UpdateStatusTx(ctx, tx, order.ID, to, change.Notes); err != nil {
			return err
		}
		if from == to {
			return nil
		}
		order.Status = to
		switch to {
		case enums.OrderStatusVerified:
			if _, err := s.orders.IssueTicketsTx(ctx, tx, order); err != nil {
				return err
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderVerified,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actor(change.Staff),
				Data:          notifications.NewOrderNotification(order, ""),
			})
		case enums.OrderStatusRejected:
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderRejected,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actor(change.Staff),
				Data:          notifications.NewOrderNotification(order, notes(change.Notes)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, order, from, to, change.Staff, "admin.order_status_changed")
	return s.orders.Get(ctx, order.ID)
}

// DeleteOrder removes the order and its tickets. Stock is left untouched; reject first to
// return units.
func (s *service) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	return s.orders.Delete(ctx, id)
}

func (s *service) OrderStats(ctx context.Context) (orders.Stats, error) {
	return s.orders.Stats(ctx)
}

func (s *service) ExportOrders(ctx context.Context, w io.Writer) error {
	return s.orders.ExportCSV(ctx, w)
}

func (s *service) InventoryStats(ctx context.Context) (InventoryReport, error) {
	totals, err := s.inventory.Stats(ctx)
	if err != nil {
		return InventoryReport{}, err
	}
	rows, err := s.inventory.List(ctx)
	if err != nil {
		return InventoryReport{}, err
	}
	report := InventoryReport{Totals: totals, Tiers: make([]inventory.TicketTypeDTO, 0, len(rows))}
	for _, row := range rows {
		report.Tiers = append(report.Tiers, inventory.ToDTO(row))
	}
	return report, nil
}

func (s *service) ResetInventory(ctx context.Context) error {
	return s.inventory.ResetAll(ctx)
}

// Reconcile recounts sold units from pending and verified orders and compares them with the
// ledger. Line items whose ticket type no longer exists are reported as unknown.
func (s *service) Reconcile(ctx context.Context) ([]ReconciliationRow, error) {
	tiers, err := s.inventory.List(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.orders.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	counted := map[string]int{}
	names := map[string]string{}
	for _, order := range all {
		if order.Status == enums.OrderStatusRejected {
			continue
		}
		for _, li := range order.LineItems {
			counted[li.TicketTypeID] += li.Quantity
			if _, ok := names[li.TicketTypeID]; !ok {
				names[li.TicketTypeID] = li.TicketTypeName
			}
		}
	}

	rows := make([]ReconciliationRow, 0, len(tiers))
	for _, tier := range tiers {
		units := counted[tier.ID]
		delete(counted, tier.ID)
		rows = append(rows, ReconciliationRow{
			TicketTypeID: tier.ID,
			Name:         tier.DisplayName,
			LedgerSold:   tier.SoldCount,
			OrderUnits:   units,
			Difference:   tier.SoldCount - units,
			Matches:      tier.SoldCount == units,
			Known:        true,
		})
	}
	unknown := make([]string, 0, len(counted))
	for id := range counted {
		unknown = append(unknown, id)
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		rows = append(rows, ReconciliationRow{
			TicketTypeID: id,
			Name:         names[id],
			OrderUnits:   counted[id],
			Difference:   -counted[id],
		})
	}

	if s.logg != nil {
		mismatched := 0
		for _, row := range rows {
			if !row.Matches {
				mismatched++
			}
		}
		s.logg.Info(s.logg.WithField(ctx, "mismatched", mismatched), "admin.reconciliation_run")
	}
	return rows, nil
}

func (s *service) logTransition(ctx context.Context, order *models.Order, from, to enums.OrderStatus, staff, msg string) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithStaff(s.logg.WithOrderNumber(ctx, order.OrderNumber), staff, string(enums.StaffRoleAdmin))
	logCtx = s.logg.WithFields(logCtx, map[string]any{"from": string(from), "to": string(to)})
	if to == from {
		s.logg.Info(logCtx, "admin.order_notes_updated")
		return
	}
	s.logg.Info(logCtx, msg)
}

func orderItems(order *models.Order) []inventory.Item {
	merged := map[string]int{}
	for _, li := range order.LineItems {
		merged[li.TicketTypeID] += li.Quantity
	}
	items := make([]inventory.Item, 0, len(merged))
	for id, qty := range merged {
		if qty > 0 {
			items = append(items, inventory.Item{TicketTypeID: id, Quantity: qty})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].TicketTypeID < items[j].TicketTypeID })
	return items
}

func actor(staff string) *outbox.ActorRef {
	staff = strings.TrimSpace(staff)
	if staff == "" {
		return nil
	}
	return &outbox.ActorRef{Staff: staff, Role: string(enums.StaffRoleAdmin)}
}

func notes(n *string) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(*n)
}
