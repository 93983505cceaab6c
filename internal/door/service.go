// Package door decides whether a physical ticket may be admitted and redeems it exactly once.
package door

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/angelmondragon/maskball-tickets/internal/orders"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/angelmondragon/maskball-tickets/pkg/metrics"
)

const (
	scannedAtLayout = "2006-01-02 15:04:05 MST"
	defaultCooldown = 3 * time.Second
)

// Service validates scanned or hand-entered tickets.
type Service interface {
	Validate(ctx context.Context, orderNumber, ticketID, scannedBy string) (Result, error)
	ValidateQR(ctx context.Context, payload, scannedBy string) (Result, error)
	ScanLoop(ctx context.Context, input io.Reader, scannedBy string, onResult func(Result)) error
}

type ServiceParams struct {
	Orders   orders.Store
	Metrics  *metrics.DoorMetrics
	Logger   *logger.Logger
	Location *time.Location
	// Cooldown suppresses repeat reads of the same code by a scanner held over one ticket.
	Cooldown time.Duration
	Now      func() time.Time
}

type service struct {
	orders   orders.Store
	metrics  *metrics.DoorMetrics
	logg     *logger.Logger
	loc      *time.Location
	cooldown time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("order store required")
	}
	if params.Location == nil {
		params.Location = time.UTC
	}
	if params.Cooldown <= 0 {
		params.Cooldown = defaultCooldown
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		orders:   params.Orders,
		metrics:  params.Metrics,
		logg:     params.Logger,
		loc:      params.Location,
		cooldown: params.Cooldown,
		now:      params.Now,
	}, nil
}

// Validate runs the admission checks in order and redeems the ticket when all pass. The
// returned error is reserved for infrastructure failures; every rejection is a Result.
func (s *service) Validate(ctx context.Context, orderNumber, ticketID, scannedBy string) (Result, error) {
	orderKey := orders.NormalizeKey(orderNumber)
	ticketKey := orders.NormalizeKey(ticketID)
	if orderKey == "" || ticketKey == "" {
		return s.finish(ctx, reject(ResultInvalidQR, "Order number and ticket ID are required"), scannedBy), nil
	}

	order, err := s.orders.GetByOrderNumber(ctx, orderKey)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			res := reject(ResultOrderNotFound, "Order not found")
			res.OrderNumber, res.TicketID = orderKey, ticketKey
			return s.finish(ctx, res, scannedBy), nil
		}
		return Result{}, err
	}

	unlock := s.orders.Lock(order.ID)
	defer unlock()
	// reload under the order lock so a concurrent scan of the same ticket is observed
	order, err = s.orders.Get(ctx, order.ID)
	if err != nil {
		return Result{}, err
	}

	base := Result{OrderNumber: order.OrderNumber, TicketID: ticketKey, CustomerName: order.CustomerName}
	if order.Status != enums.OrderStatusVerified {
		return s.finish(ctx, base.with(ResultNotVerified, fmt.Sprintf("Order is %s, not verified", order.Status)), scannedBy), nil
	}
	if len(order.Tickets) == 0 {
		return s.finish(ctx, base.with(ResultLegacyOrder, "Order has no individual tickets (legacy format); check the order manually"), scannedBy), nil
	}

	known := make([]string, 0, len(order.Tickets))
	idx := -1
	for i, t := range order.Tickets {
		known = append(known, t.TicketID)
		if t.TicketIDKey == ticketKey || orders.NormalizeKey(t.TicketID) == ticketKey {
			idx = i
		}
	}
	if idx < 0 {
		res := base.with(ResultTicketNotFound, "Ticket not found. Tickets on this order: "+strings.Join(known, ", "))
		res.KnownTicketIDs = known
		return s.finish(ctx, res, scannedBy), nil
	}

	ticket := order.Tickets[idx]
	base.TicketID = ticket.TicketID
	base.TicketType = ticket.TicketTypeName
	switch ticket.Status {
	case enums.TicketStatusUsed:
		res := base.with(ResultAlreadyUsed, "Ticket already used")
		if ticket.ScannedAt != nil {
			res.ScannedAt = ticket.ScannedAt
			res.Message = "Ticket already used on " + ticket.ScannedAt.In(s.loc).Format(scannedAtLayout)
		}
		return s.finish(ctx, res, scannedBy), nil
	case enums.TicketStatusInvalid:
		return s.finish(ctx, base.with(ResultTicketInvalid, "Ticket invalid"), scannedBy), nil
	}

	update, err := s.orders.UpdateTicketStatus(ctx, ticket.TicketID, enums.TicketStatusUsed, scannedBy)
	if err != nil || !update.Success {
		if err != nil && s.logg != nil {
			s.logg.Error(s.logg.WithTicketID(ctx, ticket.TicketID), "door ticket update failed", err)
		}
		return s.finish(ctx, base.with(ResultUpdateFailed, "Failed to update ticket status, please try again"), scannedBy), nil
	}
	res := base.with(ResultAdmitted, fmt.Sprintf("Welcome! %s admitted", ticket.TicketTypeName))
	res.Success = true
	scannedAt := s.now()
	res.ScannedAt = &scannedAt
	return s.finish(ctx, res, scannedBy), nil
}

// ValidateQR parses an "orderNumber|ticketId" payload and validates it. An unreadable payload
// is a rejection result.
func (s *service) ValidateQR(ctx context.Context, payload, scannedBy string) (Result, error) {
	orderNumber, ticketID, err := ParseQR(payload)
	if err != nil {
		return s.finish(ctx, reject(ResultInvalidQR, "Invalid QR code"), scannedBy), nil
	}
	return s.Validate(ctx, orderNumber, ticketID, scannedBy)
}

// ParseQR splits a ticket QR payload into its order number and ticket id.
func ParseQR(payload string) (string, string, error) {
	parts := strings.Split(strings.TrimSpace(payload), "|")
	if len(parts) != 2 {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "invalid QR code: expected orderNumber|ticketId")
	}
	orderNumber := strings.TrimSpace(parts[0])
	ticketID := strings.TrimSpace(parts[1])
	if orderNumber == "" || ticketID == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "invalid QR code: empty field")
	}
	return orderNumber, ticketID, nil
}

func (r Result) with(code ResultCode, message string) Result {
	r.Code = code
	r.Message = message
	return r
}

func (s *service) finish(ctx context.Context, res Result, scannedBy string) Result {
	s.metrics.Observe(string(res.Code))
	if s.logg == nil {
		return res
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"result":     string(res.Code),
		"scanned_by": scannedBy,
	})
	if res.OrderNumber != "" {
		logCtx = s.logg.WithOrderNumber(logCtx, res.OrderNumber)
	}
	if res.TicketID != "" {
		logCtx = s.logg.WithTicketID(logCtx, res.TicketID)
	}
	if res.Success {
		s.logg.Info(logCtx, "door.admitted")
	} else {
		s.logg.Warn(logCtx, "door.rejected")
	}
	return res
}
