package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/angelmondragon/maskball-tickets/internal/door"
	"github.com/angelmondragon/maskball-tickets/internal/inventory"
	"github.com/angelmondragon/maskball-tickets/internal/orders"
	"github.com/angelmondragon/maskball-tickets/pkg/config"
	"github.com/angelmondragon/maskball-tickets/pkg/security"
)

type inventoryStats interface {
	Stats(ctx context.Context) (inventory.Stats, error)
}

type orderStats interface {
	Stats(ctx context.Context) (orders.Stats, error)
}

type cli struct {
	door      door.Service
	inventory inventoryStats
	orders    orderStats
	out       io.Writer
	staff     string
	asJSON    bool
}

func (c *cli) validate(ctx context.Context, orderNumber, ticketID string) (bool, error) {
	res, err := c.door.Validate(ctx, orderNumber, ticketID, c.staff)
	if err != nil {
		return false, err
	}
	return res.Success, c.printResult(res)
}

func (c *cli) qr(ctx context.Context, payload string) (bool, error) {
	res, err := c.door.ValidateQR(ctx, payload, c.staff)
	if err != nil {
		return false, err
	}
	return res.Success, c.printResult(res)
}

// scan admits codes from in until EOF or ctx ends. Output errors are reported after the loop.
func (c *cli) scan(ctx context.Context, in io.Reader) error {
	var printErr error
	err := c.door.ScanLoop(ctx, in, c.staff, func(res door.Result) {
		if perr := c.printResult(res); perr != nil && printErr == nil {
			printErr = perr
		}
	})
	if err != nil {
		return err
	}
	return printErr
}

type statsReport struct {
	Inventory inventory.Stats `json:"inventory"`
	Orders    orders.Stats    `json:"orders"`
}

func (c *cli) stats(ctx context.Context) error {
	inv, err := c.inventory.Stats(ctx)
	if err != nil {
		return err
	}
	ord, err := c.orders.Stats(ctx)
	if err != nil {
		return err
	}
	if c.asJSON {
		return json.NewEncoder(c.out).Encode(statsReport{Inventory: inv, Orders: ord})
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "tickets sold\t%d / %d\n", inv.Sold, inv.TotalStock)
	fmt.Fprintf(tw, "tickets held\t%d\n", inv.Reserved)
	fmt.Fprintf(tw, "tickets available\t%d\n", inv.Available)
	fmt.Fprintf(tw, "orders\t%d (verified %d, pending %d, rejected %d)\n", ord.Total, ord.Verified, ord.Pending, ord.Rejected)
	fmt.Fprintf(tw, "revenue\t%s (pending %s)\n", ord.TotalRevenue.StringFixed(2), ord.PendingRevenue.StringFixed(2))
	return tw.Flush()
}

func (c *cli) printResult(res door.Result) error {
	if c.asJSON {
		return json.NewEncoder(c.out).Encode(res)
	}
	verdict := "DENIED"
	if res.Success {
		verdict = "ADMIT"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %s", verdict, res.Message)
	if res.OrderNumber != "" {
		fmt.Fprintf(&b, "  order=%s", res.OrderNumber)
	}
	if res.TicketID != "" {
		fmt.Fprintf(&b, " ticket=%s", res.TicketID)
	}
	if res.TicketType != "" {
		fmt.Fprintf(&b, " type=%q", res.TicketType)
	}
	if res.CustomerName != "" {
		fmt.Fprintf(&b, " guest=%q", res.CustomerName)
	}
	if res.ScannedAt != nil {
		fmt.Fprintf(&b, " scanned_at=%s", res.ScannedAt.Format("15:04:05"))
	}
	if len(res.KnownTicketIDs) > 0 {
		fmt.Fprintf(&b, " known=%s", strings.Join(res.KnownTicketIDs, ","))
	}
	_, err := fmt.Fprintln(c.out, b.String())
	return err
}

// hashSecret prints the argon2id encoding of secret for the staff and override settings.
func hashSecret(out io.Writer, secret string, cfg config.PasswordConfig) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fmt.Errorf("secret is empty")
	}
	hash, err := security.HashPassword(secret, cfg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
