package orders

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	"github.com/shopspring/decimal"
)

var csvHeader = []string{
	"Order Number",
	"Date",
	"Status",
	"Customer Name",
	"Email",
	"Phone",
	"Tickets",
	"Total",
	"Payment Method",
	"Notes",
}

const csvDateLayout = "2006-01-02 15:04:05"

// Stats counts orders per status. Verified orders make up totalRevenue and pending orders
// pendingRevenue, both measured on the effective ticket subtotal.
func (s *store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.GetAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(rows), nil
}

// ComputeStats aggregates the provided orders.
func ComputeStats(rows []models.Order) Stats {
	stats := Stats{TotalRevenue: decimal.Zero, PendingRevenue: decimal.Zero}
	for _, order := range rows {
		stats.Total++
		switch order.Status {
		case enums.OrderStatusPending:
			stats.Pending++
			stats.PendingRevenue = stats.PendingRevenue.Add(order.EffectiveSubtotal())
		case enums.OrderStatusVerified:
			stats.Verified++
			stats.TotalRevenue = stats.TotalRevenue.Add(order.EffectiveSubtotal())
		case enums.OrderStatusRejected:
			stats.Rejected++
		}
	}
	stats.TotalRevenue = stats.TotalRevenue.Round(2)
	stats.PendingRevenue = stats.PendingRevenue.Round(2)
	return stats
}

func (s *store) ExportCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	return ExportCSV(w, rows)
}

// ExportCSV writes every order, most recent first, as CSV.
func ExportCSV(w io.Writer, rows []models.Order) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, order := range rows {
		notes := ""
		if order.AdminNotes != nil {
			notes = *order.AdminNotes
		}
		record := []string{
			order.OrderNumber,
			order.CreatedAt.UTC().Format(csvDateLayout),
			string(order.Status),
			order.CustomerName,
			order.CustomerEmail,
			order.CustomerPhone,
			TicketSummary(order.LineItems),
			order.TotalAmount.StringFixed(2),
			paymentLabel(order),
			strings.ReplaceAll(notes, "\n", " "),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row %s: %w", order.OrderNumber, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func paymentLabel(order models.Order) string {
	if order.PaymentRail != "" && string(order.PaymentRail) != string(order.PaymentMethod) {
		return fmt.Sprintf("%s (%s)", order.PaymentMethod, order.PaymentRail)
	}
	return string(order.PaymentMethod)
}
