// Package checkout drives a purchase from cart to a finalized order: PayNow transfers with
// proof, and card rails settled through the payment provider.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/maskball-tickets/internal/checkout/helpers"
	"github.com/angelmondragon/maskball-tickets/internal/inventory"
	"github.com/angelmondragon/maskball-tickets/internal/notifications"
	"github.com/angelmondragon/maskball-tickets/internal/orders"
	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/keylock"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/angelmondragon/maskball-tickets/pkg/metrics"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox"
)

const (
	maxOrderNumberAttempts = 5
	defaultReservationTTL  = 15 * time.Minute
	defaultCurrency        = "sgd"
	refundRequiredReason   = "stock no longer available after payment; refund required"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service executes checkout orchestration.
type Service interface {
	ComputeFees(ticketSubtotal decimal.Decimal, rail enums.PaymentRail) (FeeBreakdown, error)
	Quote(ctx context.Context, items []inventory.Item, rail enums.PaymentRail) (*Quote, error)
	SubmitPayNow(ctx context.Context, req PayNowRequest) (*models.Order, error)
	StartCardPayment(ctx context.Context, req CardRequest) (*CardIntent, error)
	ConfirmCardPayment(ctx context.Context, providerPaymentID string) (*models.Order, error)
	CompleteCardPayment(ctx context.Context, providerPaymentID string) (*models.Order, error)
	FailCardPayment(ctx context.Context, providerPaymentID, reason string) error
	ExpireSessions(ctx context.Context, limit int) (int64, error)
}

// ServiceParams wires the checkout dependencies. Provider may be nil, in which case every
// card payment runs through the simulated provider.
type ServiceParams struct {
	TxRunner       txRunner
	Inventory      inventory.Service
	Orders         orders.Store
	Sessions       Repository
	Outbox         outboxPublisher
	Provider       Provider
	Simulated      Provider
	ForceSimulated bool
	Fees           FeeSchedule
	OrderNumbers   *OrderNumberGenerator
	Currency       string
	ProofMaxBytes  int64
	ReservationTTL time.Duration
	Metrics        *metrics.CheckoutMetrics
	Logger         *logger.Logger
	Now            func() time.Time
}

type service struct {
	tx             txRunner
	inventory      inventory.Service
	orders         orders.Store
	sessions       Repository
	outbox         outboxPublisher
	provider       Provider
	simulated      Provider
	forceSimulated bool
	fees           FeeSchedule
	numbers        *OrderNumberGenerator
	currency       string
	proofMaxBytes  int64
	ttl            time.Duration
	locks          *keylock.Locker
	metrics        *metrics.CheckoutMetrics
	logg           *logger.Logger
	now            func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order store required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("checkout session repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Simulated == nil {
		params.Simulated = NewSimulatedProvider()
	}
	if params.Fees.Rails == nil {
		params.Fees = DefaultFeeSchedule()
	}
	if params.OrderNumbers == nil {
		params.OrderNumbers = NewOrderNumberGenerator(defaultOrderPrefix)
	}
	if strings.TrimSpace(params.Currency) == "" {
		params.Currency = defaultCurrency
	}
	if params.ProofMaxBytes <= 0 {
		params.ProofMaxBytes = helpers.DefaultProofMaxBytes
	}
	if params.ReservationTTL <= 0 {
		params.ReservationTTL = defaultReservationTTL
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:             params.TxRunner,
		inventory:      params.Inventory,
		orders:         params.Orders,
		sessions:       params.Sessions,
		outbox:         params.Outbox,
		provider:       params.Provider,
		simulated:      params.Simulated,
		forceSimulated: params.ForceSimulated,
		fees:           params.Fees,
		numbers:        params.OrderNumbers,
		currency:       strings.ToLower(strings.TrimSpace(params.Currency)),
		proofMaxBytes:  params.ProofMaxBytes,
		ttl:            params.ReservationTTL,
		locks:          keylock.New(),
		metrics:        params.Metrics,
		logg:           params.Logger,
		now:            params.Now,
	}, nil
}

func (s *service) ComputeFees(ticketSubtotal decimal.Decimal, rail enums.PaymentRail) (FeeBreakdown, error) {
	return s.fees.ComputeFees(ticketSubtotal, rail)
}

func (s *service) Quote(ctx context.Context, items []inventory.Item, rail enums.PaymentRail) (*Quote, error) {
	_, lines, subtotal, err := s.price(ctx, items)
	if err != nil {
		return nil, err
	}
	fees, err := s.fees.ComputeFees(subtotal, rail)
	if err != nil {
		return nil, err
	}
	return &Quote{Rail: rail, LineItems: lines, Fees: fees}, nil
}

// SubmitPayNow records a manual transfer. Stock is sold immediately and the order waits in
// pending for staff to match the transfer; the customer is notified only on verification.
func (s *service) SubmitPayNow(ctx context.Context, req PayNowRequest) (*models.Order, error) {
	rail := string(enums.PaymentRailPayNow)
	customer := req.Customer.Normalize()
	if err := helpers.ValidateDetails(customer); err != nil {
		s.metrics.Observe(rail, "invalid")
		return nil, err
	}
	contentType, err := helpers.ValidateProof(req.Proof, s.proofMaxBytes)
	if err != nil {
		s.metrics.Observe(rail, "invalid")
		return nil, err
	}
	items, lines, subtotal, err := s.price(ctx, req.Items)
	if err != nil {
		s.metrics.Observe(rail, "invalid")
		return nil, err
	}
	fees, err := s.fees.ComputeFees(subtotal, enums.PaymentRailPayNow)
	if err != nil {
		return nil, err
	}

	unlock := s.inventory.Lock(items)
	defer unlock()

	var order *models.Order
	err = s.withOrderNumber(ctx, func(tx *gorm.DB, number string) error {
		shortages, err := s.inventory.DirectSellTx(ctx, tx, items, number)
		if len(shortages) > 0 {
			return inventory.SoldOutError(shortages)
		}
		if err != nil {
			return err
		}
		order = s.newOrder(number, customer, lines, fees, enums.PaymentRailPayNow, enums.OrderStatusPending)
		order.Proof = &models.PaymentProof{
			FileName:    proofFileName(req.Proof.FileName, number),
			ContentType: contentType,
			SizeBytes:   int64(len(req.Proof.Data)),
			Data:        req.Proof.Data,
		}
		return s.orders.CreateTx(ctx, tx, order)
	})
	if err != nil {
		s.metrics.Observe(rail, outcomeFor(err))
		return nil, err
	}
	s.metrics.Observe(rail, "pending")
	s.logOrder(ctx, order, "checkout.paynow_submitted")
	return order, nil
}

// StartCardPayment holds stock for the reservation TTL and opens a provider intent for the
// full amount. The hold is released if the provider refuses the intent.
func (s *service) StartCardPayment(ctx context.Context, req CardRequest) (*CardIntent, error) {
	if !req.Rail.IsOnline() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment rail %q does not settle online", req.Rail))
	}
	rail := string(req.Rail)
	customer := req.Customer.Normalize()
	if err := helpers.ValidateDetails(customer); err != nil {
		s.metrics.Observe(rail, "invalid")
		return nil, err
	}
	items, lines, subtotal, err := s.price(ctx, req.Items)
	if err != nil {
		s.metrics.Observe(rail, "invalid")
		return nil, err
	}
	fees, err := s.fees.ComputeFees(subtotal, req.Rail)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New()
	hold, shortages, err := s.inventory.Hold(ctx, sessionID.String(), items, s.ttl)
	if err != nil {
		return nil, err
	}
	if len(shortages) > 0 {
		s.metrics.Observe(rail, "sold_out")
		return nil, inventory.SoldOutError(shortages)
	}

	intent, err := s.createIntent(ctx, IntentRequest{
		SessionID:     sessionID,
		Amount:        fees.Total,
		Currency:      s.currency,
		Rail:          req.Rail,
		CustomerEmail: customer.Email,
		Description:   ticketDescription(lines),
	})
	if err != nil {
		s.releaseHold(ctx, hold.ID)
		s.metrics.Observe(rail, "provider_error")
		return nil, err
	}

	encoded, err := encodeLines(lines)
	if err != nil {
		s.releaseHold(ctx, hold.ID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode checkout items")
	}
	session := &models.CheckoutSession{
		ID:                sessionID,
		ReservationID:     hold.ID,
		ProviderPaymentID: intent.ProviderPaymentID,
		PaymentRail:       req.Rail,
		CustomerName:      customer.Name,
		CustomerEmail:     customer.Email,
		CustomerPhone:     customer.Phone,
		Items:             encoded,
		TicketSubtotal:    fees.TicketPrice,
		PlatformFee:       fees.PlatformFee,
		StripeFee:         fees.StripeFee,
		Total:             fees.Total,
		Status:            enums.CheckoutSessionAwaitingPayment,
		Simulated:         intent.Simulated,
		ExpiresAt:         hold.ExpiresAt,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		s.releaseHold(ctx, hold.ID)
		s.cancelIntent(ctx, intent)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	s.metrics.Observe(rail, "intent_created")
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"session_id":          sessionID.String(),
			"reservation_id":      hold.ID.String(),
			"provider_payment_id": intent.ProviderPaymentID,
			"payment_rail":        rail,
			"total":               fees.Total.StringFixed(2),
			"simulated":           intent.Simulated,
		})
		s.logg.Info(logCtx, "checkout.card_intent_created")
	}
	return &CardIntent{
		SessionID:         sessionID,
		ProviderPaymentID: intent.ProviderPaymentID,
		ClientSecret:      intent.ClientSecret,
		Rail:              req.Rail,
		Fees:              fees,
		ExpiresAt:         hold.ExpiresAt,
		Simulated:         intent.Simulated,
	}, nil
}

// ConfirmCardPayment is the client return path: it asks the provider for the outcome and
// settles accordingly. Simulated sessions settle without a provider round trip.
func (s *service) ConfirmCardPayment(ctx context.Context, providerPaymentID string) (*models.Order, error) {
	session, err := s.loadSession(ctx, providerPaymentID)
	if err != nil {
		return nil, err
	}
	if session.Status == enums.CheckoutSessionCompleted && session.OrderID != nil {
		return s.orders.Get(ctx, *session.OrderID)
	}
	if session.Simulated {
		return s.CompleteCardPayment(ctx, session.ProviderPaymentID)
	}
	if s.provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured")
	}
	status, err := s.provider.IntentStatus(ctx, session.ProviderPaymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check payment status")
	}
	switch status {
	case IntentSucceeded:
		return s.CompleteCardPayment(ctx, session.ProviderPaymentID)
	case IntentFailed, IntentCanceled:
		if err := s.FailCardPayment(ctx, session.ProviderPaymentID, "payment "+string(status)); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment was not completed")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is still processing")
	}
}

// CompleteCardPayment turns a confirmed payment into a verified order with tickets. It is
// idempotent per provider payment id. The notification event is queued in the same
// transaction, so it is dispatched only after the order commits.
func (s *service) CompleteCardPayment(ctx context.Context, providerPaymentID string) (*models.Order, error) {
	key := strings.TrimSpace(providerPaymentID)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider payment id is required")
	}
	unlockSession := s.locks.Lock("session:" + key)
	defer unlockSession()

	session, err := s.loadSession(ctx, key)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case enums.CheckoutSessionCompleted:
		if session.OrderID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "completed session has no order")
		}
		return s.orders.Get(ctx, *session.OrderID)
	case enums.CheckoutSessionFailed:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session already failed")
	}

	lines, err := decodeLines(session.Items)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode checkout items")
	}
	items := helpers.ItemsFromLines(lines)
	fees := FeeBreakdown{
		TicketPrice: session.TicketSubtotal,
		PlatformFee: session.PlatformFee,
		StripeFee:   session.StripeFee,
		Subtotal:    session.TicketSubtotal.Add(session.PlatformFee),
		Total:       session.Total,
	}
	customer := helpers.CustomerDetails{Name: session.CustomerName, Email: session.CustomerEmail, Phone: session.CustomerPhone}

	var (
		order      *models.Order
		directSold bool
	)
	err = s.settleLocked(items, func() error {
		return s.withOrderNumber(ctx, func(tx *gorm.DB, number string) error {
			directSold = false
			err := s.inventory.ConfirmHoldTx(ctx, tx, session.ReservationID, number)
			if errors.Is(err, inventory.ErrHoldInactive) {
				// the hold lapsed before the payment landed; sell from free stock if any is left
				directSold = true
				shortages, sellErr := s.inventory.DirectSellTx(ctx, tx, items, number)
				if len(shortages) > 0 {
					return inventory.SoldOutError(shortages)
				}
				err = sellErr
			}
			if err != nil {
				return err
			}

			order = s.newOrder(number, customer, lines, fees, session.PaymentRail, enums.OrderStatusVerified)
			order.ProviderPaymentID = &session.ProviderPaymentID
			order.Simulated = session.Simulated
			order.Tickets = orders.BuildTickets(order)
			if err := s.orders.CreateTx(ctx, tx, order); err != nil {
				return err
			}
			settled, err := s.sessions.WithTx(tx).MarkCompleted(ctx, session.ID, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete checkout session")
			}
			if !settled {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session already settled")
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderConfirmed,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Data:          notifications.NewOrderNotification(order, ""),
			})
		})
	})
	rail := string(session.PaymentRail)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeSoldOut) {
			s.failSession(ctx, session, refundRequiredReason)
		}
		s.metrics.Observe(rail, outcomeFor(err))
		return nil, err
	}
	s.metrics.Observe(rail, "verified")
	if directSold {
		s.metrics.Observe(rail, "late_payment")
	}
	s.logOrder(ctx, order, "checkout.card_payment_completed")
	return order, nil
}

// settleLocked runs fn while holding the ledger locks for items. Hold releases take the same
// locks, so they must happen after it returns.
func (s *service) settleLocked(items []inventory.Item, fn func() error) error {
	unlock := s.inventory.Lock(items)
	defer unlock()
	return fn()
}

// FailCardPayment releases the hold of a payment that did not go through.
func (s *service) FailCardPayment(ctx context.Context, providerPaymentID, reason string) error {
	key := strings.TrimSpace(providerPaymentID)
	if key == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider payment id is required")
	}
	unlockSession := s.locks.Lock("session:" + key)
	defer unlockSession()

	session, err := s.loadSession(ctx, key)
	if err != nil {
		return err
	}
	switch session.Status {
	case enums.CheckoutSessionCompleted:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session already completed")
	case enums.CheckoutSessionFailed:
		return nil
	}
	if strings.TrimSpace(reason) == "" {
		reason = "payment failed"
	}
	s.failSession(ctx, session, reason)
	s.metrics.Observe(string(session.PaymentRail), "failed")
	return nil
}

// ExpireSessions flags sessions whose hold lapsed without a payment outcome.
func (s *service) ExpireSessions(ctx context.Context, limit int) (int64, error) {
	count, err := s.sessions.ExpireStale(ctx, s.now(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire checkout sessions")
	}
	return count, nil
}

func (s *service) failSession(ctx context.Context, session *models.CheckoutSession, reason string) {
	if _, err := s.inventory.ReleaseHold(ctx, session.ReservationID, enums.ReservationStatusReleased); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "session_id", session.ID.String()), "failed to release checkout hold", err)
	}
	if _, err := s.sessions.MarkFailed(ctx, session.ID, reason); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "session_id", session.ID.String()), "failed to mark checkout session failed", err)
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"session_id":          session.ID.String(),
			"provider_payment_id": session.ProviderPaymentID,
			"reason":              reason,
		})
		s.logg.Warn(logCtx, "checkout.card_payment_failed")
	}
}

func (s *service) createIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if s.forceSimulated || s.provider == nil {
		return s.simulated.CreateIntent(ctx, req)
	}
	intent, err := s.provider.CreateIntent(ctx, req)
	if err == nil {
		return intent, nil
	}
	if errors.Is(err, ErrProviderUnavailable) {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"session_id": req.SessionID.String(), "provider": s.provider.Name()})
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "payment provider unavailable, using simulated payment")
		}
		return s.simulated.CreateIntent(ctx, req)
	}
	if typed := pkgerrors.As(err); typed != nil {
		return nil, typed
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment provider error")
}

func (s *service) cancelIntent(ctx context.Context, intent *Intent) {
	if intent.Simulated || s.provider == nil {
		return
	}
	if err := s.provider.CancelIntent(ctx, intent.ProviderPaymentID); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "provider_payment_id", intent.ProviderPaymentID), "failed to cancel payment intent", err)
	}
}

func (s *service) releaseHold(ctx context.Context, id uuid.UUID) {
	if _, err := s.inventory.ReleaseHold(ctx, id, enums.ReservationStatusReleased); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "reservation_id", id.String()), "failed to release hold", err)
	}
}

func (s *service) loadSession(ctx context.Context, providerPaymentID string) (*models.CheckoutSession, error) {
	key := strings.TrimSpace(providerPaymentID)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider payment id is required")
	}
	session, err := s.sessions.FindByProviderPaymentID(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found").
				WithDetails(map[string]string{"provider_payment_id": key})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	return session, nil
}

// price normalizes the cart and snapshots current tier prices.
func (s *service) price(ctx context.Context, items []inventory.Item) ([]inventory.Item, []models.OrderLineItem, decimal.Decimal, error) {
	normalized, err := inventory.NormalizeItems(items)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}
	tiers, err := s.inventory.List(ctx)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}
	lines, subtotal, err := helpers.PriceItems(normalized, tiers)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}
	return normalized, lines, subtotal, nil
}

// withOrderNumber runs fn in a fresh transaction per generated number, retrying collisions.
func (s *service) withOrderNumber(ctx context.Context, fn func(tx *gorm.DB, number string) error) error {
	for attempt := 1; ; attempt++ {
		number, err := s.numbers.Generate()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return fn(tx, number)
		})
		if errors.Is(err, orders.ErrDuplicateOrderNumber) && attempt < maxOrderNumberAttempts {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithOrderNumber(ctx, number), "order number collision, regenerating")
			}
			continue
		}
		return err
	}
}

func (s *service) newOrder(number string, customer helpers.CustomerDetails, lines []models.OrderLineItem, fees FeeBreakdown, rail enums.PaymentRail, status enums.OrderStatus) *models.Order {
	order := &models.Order{
		OrderNumber:    number,
		Status:         status,
		PaymentMethod:  rail.Method(),
		PaymentRail:    rail,
		CustomerName:   customer.Name,
		CustomerEmail:  customer.Email,
		CustomerPhone:  customer.Phone,
		TotalAmount:    fees.Total,
		TicketSubtotal: decimal.NewNullDecimal(fees.TicketPrice),
		PlatformFee:    decimal.NewNullDecimal(fees.PlatformFee),
		StripeFee:      decimal.NewNullDecimal(fees.StripeFee),
		CustomerPays:   decimal.NewNullDecimal(fees.Total),
		CreatedAt:      s.now(),
	}
	if status == enums.OrderStatusVerified {
		verifiedAt := order.CreatedAt
		order.VerifiedAt = &verifiedAt
	}
	order.LineItems = make([]models.OrderLineItem, len(lines))
	for i, li := range lines {
		order.LineItems[i] = models.OrderLineItem{
			TicketTypeID:   li.TicketTypeID,
			TicketTypeName: li.TicketTypeName,
			Quantity:       li.Quantity,
			UnitPrice:      li.UnitPrice,
		}
	}
	return order
}

func (s *service) logOrder(ctx context.Context, order *models.Order, msg string) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithOrderNumber(ctx, order.OrderNumber)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"order_id":     order.ID.String(),
		"status":       string(order.Status),
		"payment_rail": string(order.PaymentRail),
		"total":        order.TotalAmount.StringFixed(2),
		"tickets":      len(order.Tickets),
	})
	s.logg.Info(logCtx, msg)
}

func outcomeFor(err error) string {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeSoldOut):
		return "sold_out"
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation), pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return "invalid"
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		return "conflict"
	default:
		return "error"
	}
}

func encodeLines(lines []models.OrderLineItem) (json.RawMessage, error) {
	snapshot := make([]sessionLine, 0, len(lines))
	for _, li := range lines {
		snapshot = append(snapshot, sessionLine{
			TicketTypeID:   li.TicketTypeID,
			TicketTypeName: li.TicketTypeName,
			Quantity:       li.Quantity,
			UnitPrice:      li.UnitPrice,
		})
	}
	return json.Marshal(snapshot)
}

func decodeLines(raw json.RawMessage) ([]models.OrderLineItem, error) {
	var snapshot []sessionLine
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, err
	}
	if len(snapshot) == 0 {
		return nil, fmt.Errorf("checkout session has no items")
	}
	lines := make([]models.OrderLineItem, 0, len(snapshot))
	for _, sl := range snapshot {
		lines = append(lines, models.OrderLineItem{
			TicketTypeID:   sl.TicketTypeID,
			TicketTypeName: sl.TicketTypeName,
			Quantity:       sl.Quantity,
			UnitPrice:      sl.UnitPrice,
		})
	}
	return lines, nil
}

func ticketDescription(lines []models.OrderLineItem) string {
	return "Masquerade ball tickets: " + orders.TicketSummary(lines)
}

func proofFileName(name, orderNumber string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return orderNumber + "-proof"
	}
	return name
}
