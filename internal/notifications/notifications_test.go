package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/maskball-tickets/internal/orders"
	"github.com/angelmondragon/maskball-tickets/pkg/config"
	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox/payloads"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox/registry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func verifiedOrder() *models.Order {
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "MASK-ABC12345",
		Status:        enums.OrderStatusVerified,
		PaymentMethod: enums.PaymentMethodCard,
		PaymentRail:   enums.PaymentRailCard,
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		TotalAmount:   decimal.RequireFromString("181.28"),
		CustomerPays:  decimal.NewNullDecimal(decimal.RequireFromString("188.44")),
		LineItems: []models.OrderLineItem{
			{TicketTypeID: "early-bird", TicketTypeName: "Early Bird", Quantity: 2, UnitPrice: decimal.NewFromInt(88)},
		},
	}
	order.Tickets = orders.BuildTickets(order)
	return order
}

func resolvedFor(eventType enums.OutboxEventType, payload interface{}) *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{EventType: eventType, Channel: registry.ChannelCustomer},
		Envelope:   outbox.PayloadEnvelope{EventID: uuid.NewString(), OccurredAt: time.Now()},
		Payload:    payload,
	}
}

func TestNewOrderNotificationUsesCustomerPays(t *testing.T) {
	n := NewOrderNotification(verifiedOrder(), " ")
	if !n.TotalPaid.Equal(decimal.RequireFromString("188.44")) {
		t.Fatalf("expected customer pays amount, got %s", n.TotalPaid)
	}
	if !n.IsVerified {
		t.Fatalf("expected verified flag")
	}
	if len(n.Tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(n.Tickets))
	}
	if n.Reason != "" {
		t.Fatalf("expected blank reason trimmed, got %q", n.Reason)
	}
}

func TestComposeConfirmedOrderCarriesQRImages(t *testing.T) {
	composer := NewComposer(NewQRGenerator("https://qr.example.com/render"), "sgd")
	n := NewOrderNotification(verifiedOrder(), "")

	msg, err := composer.Compose(resolvedFor(enums.EventOrderConfirmed, &n))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if msg.To != "ada@example.com" {
		t.Fatalf("unexpected recipient %q", msg.To)
	}
	if len(msg.Tickets) != 2 {
		t.Fatalf("expected 2 ticket images, got %d", len(msg.Tickets))
	}
	first := msg.Tickets[0]
	if first.QRPayload != "MASK-ABC12345|TKT-MASK-ABC12345-01" {
		t.Fatalf("unexpected qr payload %q", first.QRPayload)
	}
	parsed, err := url.Parse(first.ImageURL)
	if err != nil {
		t.Fatalf("parse image url: %v", err)
	}
	if got := parsed.Query().Get("data"); got != first.QRPayload {
		t.Fatalf("image url encodes %q", got)
	}
	if !strings.Contains(msg.Body, "SGD 188.44") {
		t.Fatalf("body missing total: %s", msg.Body)
	}
	if !strings.Contains(msg.Subject, "MASK-ABC12345") {
		t.Fatalf("subject missing order number: %s", msg.Subject)
	}
}

func TestComposeRejectedOrderOmitsTickets(t *testing.T) {
	order := verifiedOrder()
	order.Status = enums.OrderStatusRejected
	n := NewOrderNotification(order, "transfer not received")

	msg, err := NewComposer(NewQRGenerator(""), "sgd").Compose(resolvedFor(enums.EventOrderRejected, &n))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(msg.Tickets) != 0 {
		t.Fatalf("rejected orders must not carry tickets")
	}
	if !strings.Contains(msg.Body, "transfer not received") {
		t.Fatalf("body missing reason: %s", msg.Body)
	}
}

func TestComposeWithoutEmailIsNonRetryable(t *testing.T) {
	order := verifiedOrder()
	order.CustomerEmail = ""
	n := NewOrderNotification(order, "")

	_, err := NewComposer(NewQRGenerator(""), "sgd").Compose(resolvedFor(enums.EventOrderConfirmed, &n))
	var nonRetry registry.NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestComposeReservationExpired(t *testing.T) {
	payload := &payloads.ReservationExpired{
		ReservationID: uuid.New(),
		Reference:     "cs_123",
		Items:         map[string]int{"vip": 1, "early-bird": 2},
		ExpiredAt:     time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC),
	}
	msg, err := NewComposer(NewQRGenerator(""), "sgd").Compose(resolvedFor(enums.EventReservationExpired, payload))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if strings.Index(msg.Body, "early-bird") > strings.Index(msg.Body, "vip") {
		t.Fatalf("expected items sorted: %s", msg.Body)
	}
}

func TestQRGeneratorWithoutBaseReturnsPayload(t *testing.T) {
	got := NewQRGenerator("  ").Generate("MASK-ABC12345", "TKT-MASK-ABC12345-01", "VIP", "Ada")
	if got != "MASK-ABC12345|TKT-MASK-ABC12345-01" {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestWebhookSink(t *testing.T) {
	var (
		status  = http.StatusAccepted
		gotKey  string
		gotBody Message
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(status)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(server.URL, server.Client())
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	msg := Message{EventID: "evt-1", EventType: enums.EventOrderConfirmed, Subject: "hello", To: "ada@example.com"}

	if err := sink.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotKey != "evt-1" || gotBody.Subject != "hello" {
		t.Fatalf("unexpected request key=%q subject=%q", gotKey, gotBody.Subject)
	}

	status = http.StatusUnprocessableEntity
	err = sink.Send(context.Background(), msg)
	var nonRetry registry.NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable for 422, got %v", err)
	}

	status = http.StatusServiceUnavailable
	err = sink.Send(context.Background(), msg)
	if err == nil || errors.As(err, &nonRetry) {
		t.Fatalf("expected retryable error for 503, got %v", err)
	}
}

func TestNewSinkRejectsUnknownKind(t *testing.T) {
	if _, err := NewSink(configWithSink("carrier-pigeon"), nil); err == nil {
		t.Fatalf("expected error for unknown sink")
	}
	if _, err := NewSink(configWithSink("webhook"), nil); err == nil {
		t.Fatalf("expected error for webhook sink without url")
	}
	sink, err := NewSink(configWithSink(""), nil)
	if err != nil || sink.Name() != SinkLog {
		t.Fatalf("expected log sink default, got %v %v", sink, err)
	}
}

func configWithSink(kind string) config.NotificationsConfig {
	return config.NotificationsConfig{Sink: kind, Timeout: time.Second}
}
