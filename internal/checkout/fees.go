package checkout

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/maskball-tickets/pkg/config"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
)

// RailFee is the processing fee of one payment rail: percent of the charged subtotal plus a flat amount.
type RailFee struct {
	Percent decimal.Decimal
	Flat    decimal.Decimal
}

// FeeSchedule prices the platform fee and the per-rail processing fee.
type FeeSchedule struct {
	PlatformPercent decimal.Decimal
	Rails           map[enums.PaymentRail]RailFee
}

// FeeBreakdown is what the buyer sees at payment selection and what is charged at settlement.
type FeeBreakdown struct {
	TicketPrice decimal.Decimal `json:"ticket_price"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	StripeFee   decimal.Decimal `json:"stripe_fee"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Total       decimal.Decimal `json:"total"`
}

// DefaultFeeSchedule is 3% platform; card and Apple Pay 3.4% + 0.50; GrabPay 3.3%; PayNow free.
func DefaultFeeSchedule() FeeSchedule {
	card := RailFee{Percent: decimal.RequireFromString("0.034"), Flat: decimal.RequireFromString("0.50")}
	return FeeSchedule{
		PlatformPercent: decimal.RequireFromString("0.03"),
		Rails: map[enums.PaymentRail]RailFee{
			enums.PaymentRailPayNow:   {Percent: decimal.Zero, Flat: decimal.Zero},
			enums.PaymentRailCard:     card,
			enums.PaymentRailApplePay: card,
			enums.PaymentRailGrabPay:  {Percent: decimal.RequireFromString("0.033"), Flat: decimal.Zero},
		},
	}
}

// NewFeeSchedule reads the fee knobs from configuration.
func NewFeeSchedule(cfg config.TicketsConfig) (FeeSchedule, error) {
	parse := func(name, raw string) (decimal.Decimal, error) {
		value, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse %s: %w", name, err)
		}
		return value, nil
	}
	platform, err := parse("platform fee percent", cfg.PlatformFeePercent)
	if err != nil {
		return FeeSchedule{}, err
	}
	cardPct, err := parse("card fee percent", cfg.CardFeePercent)
	if err != nil {
		return FeeSchedule{}, err
	}
	cardFlat, err := parse("card fee flat", cfg.CardFeeFlat)
	if err != nil {
		return FeeSchedule{}, err
	}
	grabPct, err := parse("grabpay fee percent", cfg.GrabPayFeePercent)
	if err != nil {
		return FeeSchedule{}, err
	}
	grabFlat, err := parse("grabpay fee flat", cfg.GrabPayFeeFlat)
	if err != nil {
		return FeeSchedule{}, err
	}
	card := RailFee{Percent: cardPct, Flat: cardFlat}
	return FeeSchedule{
		PlatformPercent: platform,
		Rails: map[enums.PaymentRail]RailFee{
			enums.PaymentRailPayNow:   {Percent: decimal.Zero, Flat: decimal.Zero},
			enums.PaymentRailCard:     card,
			enums.PaymentRailApplePay: card,
			enums.PaymentRailGrabPay:  {Percent: grabPct, Flat: grabFlat},
		},
	}, nil
}

// ComputeFees is deterministic: the same subtotal and rail always give the same breakdown,
// so the previewed total is exactly the settled total. Each fee is rounded to cents.
func (f FeeSchedule) ComputeFees(ticketSubtotal decimal.Decimal, rail enums.PaymentRail) (FeeBreakdown, error) {
	if ticketSubtotal.IsNegative() {
		return FeeBreakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "ticket subtotal must not be negative")
	}
	railFee, ok := f.Rails[rail]
	if !ok {
		return FeeBreakdown{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment rail %q", rail))
	}
	ticketPrice := ticketSubtotal.Round(2)
	platformFee := ticketPrice.Mul(f.PlatformPercent).Round(2)
	subtotal := ticketPrice.Add(platformFee)
	stripeFee := decimal.Zero
	if rail != enums.PaymentRailPayNow && ticketPrice.IsPositive() {
		stripeFee = subtotal.Mul(railFee.Percent).Add(railFee.Flat).Round(2)
	}
	return FeeBreakdown{
		TicketPrice: ticketPrice,
		PlatformFee: platformFee,
		StripeFee:   stripeFee,
		Subtotal:    subtotal,
		Total:       subtotal.Add(stripeFee),
	}, nil
}
