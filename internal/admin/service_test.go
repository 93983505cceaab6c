package admin

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/maskball-tickets/internal/inventory"
	"github.com/angelmondragon/maskball-tickets/internal/ledger"
	"github.com/angelmondragon/maskball-tickets/internal/orders"
	"github.com/angelmondragon/maskball-tickets/pkg/catalog"
	"github.com/angelmondragon/maskball-tickets/pkg/config"
	"github.com/angelmondragon/maskball-tickets/pkg/db"
	"github.com/angelmondragon/maskball-tickets/pkg/db/dbtest"
	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox"
	"github.com/angelmondragon/maskball-tickets/pkg/security"
)

const overridePhrase = "unmask-the-ball"

var testArgon = config.PasswordConfig{ArgonMemoryKB: 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}

type adminFixture struct {
	client    *db.Client
	inventory inventory.Service
	orders    orders.Store
	svc       Service
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	client := dbtest.Open(t)
	ctx := context.Background()

	journal, err := ledger.NewJournal(ledger.NewRepository(client.DB()))
	require.NoError(t, err)
	inv, err := inventory.NewService(inventory.ServiceParams{
		TxRunner: client,
		Repo:     inventory.NewRepository(client.DB()),
		Journal:  journal,
	})
	require.NoError(t, err)
	require.NoError(t, inv.Seed(ctx, &catalog.Catalog{Tiers: []catalog.Tier{
		{ID: "early-bird", Name: "Early Bird", Price: decimal.NewFromInt(88), Stock: 150},
		{ID: "vip", Name: "VIP", Price: decimal.NewFromInt(188), Stock: 2},
	}}))
	store, err := orders.NewStore(orders.NewRepository(client.DB()), client, nil)
	require.NoError(t, err)

	hash, err := security.HashPassword(overridePhrase, testArgon)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		TxRunner:    client,
		Orders:      store,
		Inventory:   inv,
		Outbox:      outbox.NewService(outbox.NewRepository(client.DB()), nil),
		Override:    NewHashedOverride(hash),
		DeadLetters: outbox.NewDLQRepository(client.DB()),
	})
	require.NoError(t, err)
	return &adminFixture{client: client, inventory: inv, orders: store, svc: svc}
}

// paynowOrder mirrors a PayNow submission: stock sold up front, order pending review.
func (f *adminFixture) paynowOrder(t *testing.T, number, tier string, qty int) *models.Order {
	t.Helper()
	ctx := context.Background()
	ok, err := f.inventory.DirectSell(ctx, []inventory.Item{{TicketTypeID: tier, Quantity: qty}})
	require.NoError(t, err)
	require.True(t, ok)
	order := &models.Order{
		OrderNumber:   number,
		Status:        enums.OrderStatusPending,
		PaymentMethod: enums.PaymentMethodPayNow,
		PaymentRail:   enums.PaymentRailPayNow,
		CustomerName:  "Grace Hopper",
		CustomerEmail: "grace@example.com",
		CustomerPhone: "+65 9000 0000",
		TotalAmount:   decimal.NewFromInt(int64(88 * qty)),
		LineItems: []models.OrderLineItem{
			{TicketTypeID: tier, TicketTypeName: tier, Quantity: qty, UnitPrice: decimal.NewFromInt(88)},
		},
	}
	require.NoError(t, f.orders.Create(ctx, order))
	return order
}

func (f *adminFixture) events(t *testing.T, eventType enums.OutboxEventType) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.client.DB().Where("event_type = ?", eventType).Find(&rows).Error)
	return rows
}

func (f *adminFixture) sold(t *testing.T, tier string) int {
	t.Helper()
	rows, err := f.inventory.List(context.Background())
	require.NoError(t, err)
	for _, row := range rows {
		if row.ID == tier {
			return row.SoldCount
		}
	}
	t.Fatalf("tier %s not found", tier)
	return 0
}

func TestVerifyIssuesTicketsAndQueuesNotification(t *testing.T) {
	f := newAdminFixture(t)
	order := f.paynowOrder(t, "MASK-VER00001", "early-bird", 2)

	notes := "matched transfer"
	updated, err := f.svc.UpdateOrderStatus(context.Background(), StatusChange{
		OrderID: order.ID,
		Status:  enums.OrderStatusVerified,
		Notes:   &notes,
		Staff:   "ops",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusVerified, updated.Status)
	require.NotNil(t, updated.VerifiedAt)
	require.Len(t, updated.Tickets, 2)
	assert.Equal(t, "MASK-VER00001|"+updated.Tickets[0].TicketID, updated.Tickets[0].QRPayload)
	assert.Equal(t, 2, f.sold(t, "early-bird"), "verification must not sell twice")

	events := f.events(t, enums.EventOrderVerified)
	require.Len(t, events, 1)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, "ops", envelope.Actor.Staff)
	assert.Contains(t, string(envelope.Data), `"is_verified":true`)
	assert.Contains(t, string(envelope.Data), updated.Tickets[1].TicketID)
}

// conflictingRunner aborts the first n transactions after fn succeeds, the way a
// serialization failure at commit does, and then reruns fn like db.Client.WithTx.
type conflictingRunner struct {
	client    *db.Client
	conflicts int
	attempts  int
}

var errSerialization = errors.New("could not serialize access due to concurrent update")

func (r *conflictingRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	for {
		r.attempts++
		aborted := false
		err := r.client.WithTx(ctx, func(tx *gorm.DB) error {
			if err := fn(tx); err != nil {
				return err
			}
			if r.conflicts > 0 {
				r.conflicts--
				aborted = true
				return errSerialization
			}
			return nil
		})
		if !aborted {
			return err
		}
	}
}

func TestVerifyAfterRetriedTransactionPersistsTickets(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	order := f.paynowOrder(t, "MASK-RETRY001", "early-bird", 2)

	runner := &conflictingRunner{client: f.client, conflicts: 1}
	svc, err := NewService(ServiceParams{
		TxRunner:  runner,
		Orders:    f.orders,
		Inventory: f.inventory,
		Outbox:    outbox.NewService(outbox.NewRepository(f.client.DB()), nil),
	})
	require.NoError(t, err)

	updated, err := svc.UpdateOrderStatus(ctx, StatusChange{OrderID: order.ID, Status: enums.OrderStatusVerified, Staff: "ops"})
	require.NoError(t, err)
	assert.Equal(t, 2, runner.attempts)
	assert.Equal(t, enums.OrderStatusVerified, updated.Status)
	require.Len(t, updated.Tickets, 2)

	var persisted int64
	require.NoError(t, f.client.DB().Model(&models.IndividualTicket{}).Where("order_id = ?", order.ID).Count(&persisted).Error)
	assert.EqualValues(t, 2, persisted)

	events := f.events(t, enums.EventOrderVerified)
	require.Len(t, events, 1, "the aborted attempt's event must roll back")
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	for _, ticket := range updated.Tickets {
		assert.Contains(t, string(envelope.Data), ticket.TicketID)
	}
	assert.Equal(t, 2, f.sold(t, "early-bird"))
}

func TestLeavingVerifiedRequiresOverride(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	order := f.paynowOrder(t, "MASK-OVR00001", "early-bird", 1)
	_, err := f.svc.UpdateOrderStatus(ctx, StatusChange{OrderID: order.ID, Status: enums.OrderStatusVerified})
	require.NoError(t, err)

	for _, token := range []string{"", "wrong"} {
		_, err = f.svc.UpdateOrderStatus(ctx, StatusChange{OrderID: order.ID, Status: enums.OrderStatusPending, OverrideToken: token})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	}
	current, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusVerified, current.Status)

	updated, err := f.svc.UpdateOrderStatus(ctx, StatusChange{OrderID: order.ID, Status: enums.OrderStatusPending, OverrideToken: overridePhrase})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, updated.Status)
	assert.Len(t, updated.Tickets, 1, "tickets are kept when reverting")
}

func TestRejectRestocksAndUnrejectSellsAgain(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	order := f.paynowOrder(t, "MASK-REJ00001", "vip", 2)
	assert.Equal(t, 2, f.sold(t, "vip"))

	reason := "transfer never arrived"
	_, err := f.svc.UpdateOrderStatus(ctx, StatusChange{OrderID: order.ID, Status: enums.OrderStatusRejected, Notes: &reason})
	require.NoError(t, err)
	assert.Equal(t, 0, f.sold(t, "vip"))
	rejected := f.events(t, enums.EventOrderRejected)
	require.Len(t, rejected, 1)
	assert.Contains(t, string(rejected[0].Payload), reason)

	// someone else buys the freed units
	other := f.paynowOrder(t, "MASK-REJ00002", "vip", 2)
	_, err = f.svc.UpdateOrderStatus(ctx, StatusChange{OrderID: order.ID, Status: enums.OrderStatusPending})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSoldOut))
	current, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusRejected, current.Status)

	_, err = f.svc.UpdateOrderStatus(ctx, StatusChange{OrderID: other.ID, Status: enums.OrderStatusRejected})
	require.NoError(t, err)
	updated, err := f.svc.UpdateOrderStatus(ctx, StatusChange{OrderID: order.ID, Status: enums.OrderStatusPending})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, updated.Status)
	assert.Equal(t, 2, f.sold(t, "vip"))
}

func TestSameStatusOnlyUpdatesNotes(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	order := f.paynowOrder(t, "MASK-NOT00001", "early-bird", 1)

	notes := " called customer "
	updated, err := f.svc.UpdateOrderStatus(ctx, StatusChange{OrderID: order.ID, Status: enums.OrderStatusPending, Notes: &notes})
	require.NoError(t, err)
	require.NotNil(t, updated.AdminNotes)
	assert.Equal(t, "called customer", *updated.AdminNotes)
	assert.Equal(t, 1, f.sold(t, "early-bird"))
	assert.Empty(t, f.events(t, enums.EventOrderVerified))
}

func TestUpdateOrderStatusValidation(t *testing.T) {
	f := newAdminFixture(t)
	order := f.paynowOrder(t, "MASK-BAD00001", "early-bird", 1)

	_, err := f.svc.UpdateOrderStatus(context.Background(), StatusChange{OrderID: order.ID, Status: "refunded"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.UpdateOrderStatus(context.Background(), StatusChange{OrderID: models.Order{}.ID, Status: enums.OrderStatusVerified})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListOrdersFilters(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	first := f.paynowOrder(t, "MASK-LST00001", "early-bird", 1)
	f.paynowOrder(t, "MASK-LST00002", "early-bird", 1)
	_, err := f.svc.UpdateOrderStatus(ctx, StatusChange{OrderID: first.ID, Status: enums.OrderStatusVerified})
	require.NoError(t, err)

	verified := enums.OrderStatusVerified
	rows, err := f.svc.ListOrders(ctx, ListFilter{Status: &verified})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "MASK-LST00001", rows[0].OrderNumber)

	rows, err = f.svc.ListOrders(ctx, ListFilter{Search: "lst00002"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = f.svc.ListOrders(ctx, ListFilter{Search: "GRACE"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = f.svc.ListOrders(ctx, ListFilter{Search: "grace", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestReconcile(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	f.paynowOrder(t, "MASK-REC00001", "early-bird", 3)
	rejected := f.paynowOrder(t, "MASK-REC00002", "vip", 1)
	_, err := f.svc.UpdateOrderStatus(ctx, StatusChange{OrderID: rejected.ID, Status: enums.OrderStatusRejected})
	require.NoError(t, err)

	// sold outside any order
	ok, err := f.inventory.DirectSell(ctx, []inventory.Item{{TicketTypeID: "vip", Quantity: 1}})
	require.NoError(t, err)
	require.True(t, ok)

	rows, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	byID := map[string]ReconciliationRow{}
	for _, row := range rows {
		byID[row.TicketTypeID] = row
	}
	assert.True(t, byID["early-bird"].Matches)
	assert.Equal(t, 3, byID["early-bird"].OrderUnits)
	assert.False(t, byID["vip"].Matches)
	assert.Equal(t, 1, byID["vip"].Difference)
}

func TestInventoryStatsAndReset(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	f.paynowOrder(t, "MASK-INV00001", "vip", 1)

	report, err := f.svc.InventoryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 152, report.Totals.TotalStock)
	assert.Equal(t, 1, report.Totals.Sold)
	assert.Len(t, report.Tiers, 2)

	require.NoError(t, f.svc.ResetInventory(ctx))
	report, err = f.svc.InventoryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Totals.Sold)
}

func TestHashedOverride(t *testing.T) {
	hash, err := security.HashPassword(overridePhrase, testArgon)
	require.NoError(t, err)

	assert.True(t, NewHashedOverride(hash).Verify(overridePhrase))
	assert.False(t, NewHashedOverride(hash).Verify("nope"))
	assert.False(t, NewHashedOverride(hash).Verify(""))
	assert.False(t, NewHashedOverride("").Verify(overridePhrase))
	assert.False(t, NewHashedOverride("not-a-hash").Verify(overridePhrase))
}

func (f *adminFixture) deadLetter(t *testing.T, reason enums.OutboxDLQErrorReason) uuid.UUID {
	t.Helper()
	msg := "order MASK-0000DEAD has no customer email"
	event := models.OutboxEvent{
		EventType:     enums.EventOrderConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		AttemptCount:  10,
		LastError:     &msg,
	}
	require.NoError(t, f.client.DB().Create(&event).Error)
	require.NoError(t, f.client.DB().Create(&models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
	}).Error)
	return event.ID
}

func TestRequeueNotificationResetsOutboxRow(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	eventID := f.deadLetter(t, enums.OutboxDLQReasonUndeliverable)

	failed, err := f.svc.ListFailedNotifications(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.True(t, failed[0].Requeueable)
	require.Contains(t, failed[0].Error, "no customer email")

	require.NoError(t, f.svc.RequeueNotification(ctx, eventID, "ops"))

	var event models.OutboxEvent
	require.NoError(t, f.client.DB().First(&event, "id = ?", eventID).Error)
	require.Zero(t, event.AttemptCount)
	require.Nil(t, event.LastError)

	failed, err = f.svc.ListFailedNotifications(ctx, nil, 0)
	require.NoError(t, err)
	require.Empty(t, failed)

	err = f.svc.RequeueNotification(ctx, eventID, "ops")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestRequeueNotificationRefusesUndecodableEvents(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	eventID := f.deadLetter(t, enums.OutboxDLQReasonNonRetryable)
	f.deadLetter(t, enums.OutboxDLQReasonMaxAttempts)

	reason := enums.OutboxDLQReasonNonRetryable
	failed, err := f.svc.ListFailedNotifications(ctx, &reason, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.False(t, failed[0].Requeueable)

	err = f.svc.RequeueNotification(ctx, eventID, "ops")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}
