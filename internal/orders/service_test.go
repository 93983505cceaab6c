package orders

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/maskball-tickets/pkg/db/dbtest"
	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	client := dbtest.Open(t)
	st, err := NewStore(NewRepository(client.DB()), client, nil)
	require.NoError(t, err)
	return st
}

func sampleOrder(number string, status enums.OrderStatus) *models.Order {
	return &models.Order{
		OrderNumber:   number,
		Status:        status,
		PaymentMethod: enums.PaymentMethodPayNow,
		PaymentRail:   enums.PaymentRailPayNow,
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		CustomerPhone: "+65 8123 4567",
		TotalAmount:   decimal.RequireFromString("614.80"),
		LineItems: []models.OrderLineItem{
			{TicketTypeID: "early-bird", TicketTypeName: "Early Bird", Quantity: 2, UnitPrice: decimal.NewFromInt(88)},
			{TicketTypeID: "table-for-4", TicketTypeName: "Table for 4", Quantity: 1, UnitPrice: decimal.NewFromInt(420)},
		},
	}
}

func TestCreate_RejectsNormalizedDuplicate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, sampleOrder("MASK-ABC12345", enums.OrderStatusPending)))

	err := st.Create(ctx, sampleOrder(" mask-abc12345 ", enums.OrderStatusPending))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Contains(t, err.Error(), "duplicate order number")

	all, err := st.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetByOrderNumber_Normalizes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.Create(ctx, sampleOrder("MASK-ABC12345", enums.OrderStatusPending)))

	order, err := st.GetByOrderNumber(ctx, "mask-abc 12345")
	require.NoError(t, err)
	assert.Equal(t, "MASK-ABC12345", order.OrderNumber)
	assert.Len(t, order.LineItems, 2)

	_, err = st.GetByOrderNumber(ctx, "MASK-NOPE0000")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetAll_MostRecentFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	older := sampleOrder("MASK-OLD00001", enums.OrderStatusPending)
	older.CreatedAt = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	newer := sampleOrder("MASK-NEW00001", enums.OrderStatusPending)
	newer.CreatedAt = time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, st.Create(ctx, older))
	require.NoError(t, st.Create(ctx, newer))

	all, err := st.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "MASK-NEW00001", all[0].OrderNumber)
}

func TestUpdateStatus_StampsVerifiedAt(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	order := sampleOrder("MASK-ABC12345", enums.OrderStatusPending)
	require.NoError(t, st.Create(ctx, order))
	assert.Nil(t, order.VerifiedAt)

	notes := "  transfer matched  "
	updated, err := st.UpdateStatus(ctx, order.ID, enums.OrderStatusVerified, &notes)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusVerified, updated.Status)
	require.NotNil(t, updated.VerifiedAt)
	require.NotNil(t, updated.AdminNotes)
	assert.Equal(t, "transfer matched", *updated.AdminNotes)
}

func TestIssueTicketsAndScan(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	order := sampleOrder("MASK-XYZ99999", enums.OrderStatusVerified)
	order.Tickets = BuildTickets(order)
	require.NoError(t, st.Create(ctx, order))

	require.Len(t, order.Tickets, 3)
	seen := map[string]bool{}
	for _, ticket := range order.Tickets {
		assert.False(t, seen[ticket.TicketID], "duplicate ticket id %s", ticket.TicketID)
		seen[ticket.TicketID] = true
		assert.Equal(t, "MASK-XYZ99999|"+ticket.TicketID, ticket.QRPayload)
	}

	found, ticket, err := st.GetByTicketID(ctx, strings.ToLower(order.Tickets[0].TicketID))
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
	assert.Equal(t, "TKT-MASK-XYZ99999-01", ticket.TicketID)

	res, err := st.UpdateTicketStatus(ctx, "tkt-mask-xyz99999-01", enums.TicketStatusUsed, "door-1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "MASK-XYZ99999", res.OrderNumber)
	assert.Equal(t, "Early Bird", res.TicketType)

	_, ticket, err = st.GetByTicketID(ctx, "TKT-MASK-XYZ99999-01")
	require.NoError(t, err)
	assert.Equal(t, enums.TicketStatusUsed, ticket.Status)
	require.NotNil(t, ticket.ScannedAt)
	require.NotNil(t, ticket.ScannedBy)
	assert.Equal(t, "door-1", *ticket.ScannedBy)

	res, err = st.UpdateTicketStatus(ctx, "TKT-MASK-XYZ99999-01", enums.TicketStatusUsed, "door-2")
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = st.UpdateTicketStatus(ctx, "TKT-MASK-MISSING-01", enums.TicketStatusUsed, "door-1")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "ticket not found", res.Error)
}

func TestTicketIDsStayUniqueAcrossOrderPrefixes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	first := sampleOrder("MASK-ABC12345", enums.OrderStatusVerified)
	first.Tickets = BuildTickets(first)
	require.NoError(t, st.Create(ctx, first))

	second := sampleOrder("mb-abc12345", enums.OrderStatusVerified)
	second.Tickets = BuildTickets(second)
	require.NoError(t, st.Create(ctx, second))

	assert.Equal(t, "TKT-MASK-ABC12345-01", first.Tickets[0].TicketID)
	assert.Equal(t, "TKT-MB-ABC12345-01", second.Tickets[0].TicketID)

	found, _, err := st.GetByTicketID(ctx, "TKT-MB-ABC12345-01")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)
}

func TestIssueTicketsTxReadsPersistedRows(t *testing.T) {
	client := dbtest.Open(t)
	st, err := NewStore(NewRepository(client.DB()), client, nil)
	require.NoError(t, err)
	ctx := context.Background()
	order := sampleOrder("MASK-ISSUE001", enums.OrderStatusVerified)
	require.NoError(t, st.Create(ctx, order))

	// tickets left on the struct by a rolled back attempt
	order.Tickets = BuildTickets(order)
	var issued []models.IndividualTicket
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		issued, err = st.IssueTicketsTx(ctx, tx, order)
		return err
	}))
	require.Len(t, issued, 3)

	loaded, err := st.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Tickets, 3)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		again, err := st.IssueTicketsTx(ctx, tx, loaded)
		if err == nil && len(again) != 3 {
			t.Errorf("expected existing tickets returned, got %d", len(again))
		}
		return err
	}))
	loaded, err = st.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Tickets, 3, "issuing twice must not duplicate tickets")
}

func TestDelete(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	order := sampleOrder("MASK-DEL00001", enums.OrderStatusVerified)
	order.Tickets = BuildTickets(order)
	require.NoError(t, st.Create(ctx, order))

	require.NoError(t, st.Delete(ctx, order.ID))
	_, err := st.Get(ctx, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, _, err = st.GetByTicketID(ctx, "TKT-MASK-DEL00001-01")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	assert.True(t, pkgerrors.IsCode(st.Delete(ctx, order.ID), pkgerrors.CodeNotFound))
}

func TestComputeStats_FallsBackToLineItems(t *testing.T) {
	legacy := *sampleOrder("MASK-LEG00001", enums.OrderStatusVerified)
	withFees := *sampleOrder("MASK-FEE00001", enums.OrderStatusVerified)
	withFees.TicketSubtotal = decimal.NewNullDecimal(decimal.RequireFromString("100.00"))
	pending := *sampleOrder("MASK-PEN00001", enums.OrderStatusPending)
	rejected := *sampleOrder("MASK-REJ00001", enums.OrderStatusRejected)

	stats := ComputeStats([]models.Order{legacy, withFees, pending, rejected})
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Verified)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Rejected)
	assert.True(t, stats.TotalRevenue.Equal(decimal.RequireFromString("696")), "total revenue %s", stats.TotalRevenue)
	assert.True(t, stats.PendingRevenue.Equal(decimal.RequireFromString("596")), "pending revenue %s", stats.PendingRevenue)
}

func TestExportCSV(t *testing.T) {
	order := *sampleOrder("MASK-CSV00001", enums.OrderStatusPending)
	order.CreatedAt = time.Date(2026, 10, 1, 18, 30, 0, 0, time.UTC)
	notes := "paid twice,\nrefund one"
	order.AdminNotes = &notes

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, []models.Order{order}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{
		"MASK-CSV00001",
		"2026-10-01 18:30:00",
		"pending",
		"Ada Lovelace",
		"ada@example.com",
		"+65 8123 4567",
		"2x Early Bird, 1x Table for 4",
		"614.80",
		"paynow",
		"paid twice, refund one",
	}, records[1])
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "MASK-ABC12345", NormalizeKey("  mask-abc 12345\t"))
	assert.Equal(t, "", NormalizeKey("   "))
}
