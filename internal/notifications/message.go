// Package notifications turns dispatched outbox events into customer and ops messages and
// delivers them to a sink.
package notifications

import (
	"fmt"
	"sort"
	"strings"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox/payloads"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox/registry"
)

// TicketImage is one ticket as rendered in a confirmation message.
type TicketImage struct {
	TicketID   string `json:"ticket_id"`
	TicketType string `json:"ticket_type"`
	QRPayload  string `json:"qr_payload"`
	ImageURL   string `json:"image_url"`
}

// Message is what a sink delivers.
type Message struct {
	EventID   string                `json:"event_id"`
	EventType enums.OutboxEventType `json:"event_type"`
	Channel   registry.Channel      `json:"channel"`
	To        string                `json:"to,omitempty"`
	Subject   string                `json:"subject"`
	Body      string                `json:"body"`
	Tickets   []TicketImage         `json:"tickets,omitempty"`
	Data      interface{}           `json:"data"`
}

// NewOrderNotification snapshots an order into the payload queued with order events.
func NewOrderNotification(order *models.Order, reason string) payloads.OrderNotification {
	n := payloads.OrderNotification{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		TotalPaid:     order.TotalAmount,
		PaymentMethod: order.PaymentMethod,
		PaymentRail:   order.PaymentRail,
		IsVerified:    order.Status == enums.OrderStatusVerified,
		Simulated:     order.Simulated,
		Reason:        strings.TrimSpace(reason),
	}
	if order.CustomerPays.Valid {
		n.TotalPaid = order.CustomerPays.Decimal
	}
	for _, li := range order.LineItems {
		n.LineItems = append(n.LineItems, payloads.LineItem{
			TicketTypeName: li.TicketTypeName,
			Quantity:       li.Quantity,
			UnitPrice:      li.UnitPrice,
		})
	}
	for _, t := range order.Tickets {
		n.Tickets = append(n.Tickets, payloads.Ticket{
			TicketID:   t.TicketID,
			TicketType: t.TicketTypeName,
			QRPayload:  t.QRPayload,
		})
	}
	return n
}

// Composer renders resolved events into messages.
type Composer struct {
	qr       QRGenerator
	currency string
}

// NewComposer builds a composer using qr for ticket images.
func NewComposer(qr QRGenerator, currency string) *Composer {
	return &Composer{qr: qr, currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// Compose builds the message for one resolved event. Unknown payloads are non-retryable.
func (c *Composer) Compose(resolved *registry.ResolvedEvent) (Message, error) {
	if resolved == nil {
		return Message{}, registry.NewNonRetryableError(fmt.Errorf("resolved event required"))
	}
	msg := Message{
		EventID:   resolved.Envelope.EventID,
		EventType: resolved.Descriptor.EventType,
		Channel:   resolved.Descriptor.Channel,
		Data:      resolved.Payload,
	}
	switch payload := resolved.Payload.(type) {
	case *payloads.OrderNotification:
		if strings.TrimSpace(payload.CustomerEmail) == "" {
			return Message{}, registry.NewNonRetryableError(fmt.Errorf("order %s has no customer email", payload.OrderNumber))
		}
		msg.To = payload.CustomerEmail
		msg.Subject = c.orderSubject(resolved.Descriptor.EventType, payload)
		msg.Tickets = c.ticketImages(payload)
		msg.Body = c.orderBody(resolved.Descriptor.EventType, payload, msg.Tickets)
	case *payloads.ReservationExpired:
		msg.Subject = fmt.Sprintf("Reservation %s expired", payload.Reference)
		msg.Body = reservationBody(payload)
	default:
		return Message{}, registry.NewNonRetryableError(fmt.Errorf("no template for %s", resolved.Descriptor.EventType))
	}
	return msg, nil
}

func (c *Composer) orderSubject(eventType enums.OutboxEventType, n *payloads.OrderNotification) string {
	switch eventType {
	case enums.EventOrderRejected:
		return fmt.Sprintf("Order %s could not be verified", n.OrderNumber)
	case enums.EventOrderVerified:
		return fmt.Sprintf("Payment verified: your tickets for order %s", n.OrderNumber)
	default:
		return fmt.Sprintf("Order %s confirmed: your tickets are inside", n.OrderNumber)
	}
}

func (c *Composer) ticketImages(n *payloads.OrderNotification) []TicketImage {
	if !n.IsVerified {
		return nil
	}
	images := make([]TicketImage, 0, len(n.Tickets))
	for _, t := range n.Tickets {
		images = append(images, TicketImage{
			TicketID:   t.TicketID,
			TicketType: t.TicketType,
			QRPayload:  t.QRPayload,
			ImageURL:   c.qr.Generate(n.OrderNumber, t.TicketID, t.TicketType, n.CustomerName),
		})
	}
	return images
}

func (c *Composer) orderBody(eventType enums.OutboxEventType, n *payloads.OrderNotification, tickets []TicketImage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", n.CustomerName)
	if eventType == enums.EventOrderRejected {
		fmt.Fprintf(&b, "We could not verify the payment for order %s.\n", n.OrderNumber)
		if n.Reason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", n.Reason)
		}
		b.WriteString("Reply to this message if you believe this is a mistake.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Order: %s\n", n.OrderNumber)
	for _, li := range n.LineItems {
		fmt.Fprintf(&b, "  %dx %s @ %s %s\n", li.Quantity, li.TicketTypeName, c.currency, li.UnitPrice.StringFixed(2))
	}
	fmt.Fprintf(&b, "Total paid: %s %s (%s)\n", c.currency, n.TotalPaid.StringFixed(2), n.PaymentRail)
	if n.Simulated {
		b.WriteString("Note: this payment was processed in simulation mode.\n")
	}
	if len(tickets) > 0 {
		b.WriteString("\nPresent one QR code per guest at the door:\n")
		for _, t := range tickets {
			fmt.Fprintf(&b, "  %s (%s): %s\n", t.TicketID, t.TicketType, t.ImageURL)
		}
	}
	return b.String()
}

func reservationBody(p *payloads.ReservationExpired) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hold %s for %s expired at %s and returned to stock:\n", p.ReservationID, p.Reference, p.ExpiredAt.UTC().Format("2006-01-02 15:04:05"))
	ids := make([]string, 0, len(p.Items))
	for id := range p.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "  %dx %s\n", p.Items[id], id)
	}
	return b.String()
}
