package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod describes how an order was settled: manual transfer or an online card rail.
type PaymentMethod string

const (
	PaymentMethodPayNow PaymentMethod = "paynow"
	PaymentMethodCard   PaymentMethod = "card"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodPayNow,
	PaymentMethodCard,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// PaymentRail is the concrete channel the buyer picked; fees are rail specific.
type PaymentRail string

const (
	PaymentRailPayNow   PaymentRail = "paynow"
	PaymentRailCard     PaymentRail = "card"
	PaymentRailApplePay PaymentRail = "apple_pay"
	PaymentRailGrabPay  PaymentRail = "grabpay"
)

var validPaymentRails = []PaymentRail{
	PaymentRailPayNow,
	PaymentRailCard,
	PaymentRailApplePay,
	PaymentRailGrabPay,
}

// String implements fmt.Stringer.
func (r PaymentRail) String() string {
	return string(r)
}

// IsValid reports whether the value is a known PaymentRail.
func (r PaymentRail) IsValid() bool {
	for _, candidate := range validPaymentRails {
		if candidate == r {
			return true
		}
	}
	return false
}

// Method folds the rail into the order-level payment method.
func (r PaymentRail) Method() PaymentMethod {
	if r == PaymentRailPayNow {
		return PaymentMethodPayNow
	}
	return PaymentMethodCard
}

// IsOnline reports whether the rail settles through the external payment provider.
func (r PaymentRail) IsOnline() bool {
	return r.IsValid() && r != PaymentRailPayNow
}

// ParsePaymentRail converts raw input into a PaymentRail. Hyphens and case are tolerated.
func ParsePaymentRail(value string) (PaymentRail, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_")
	for _, candidate := range validPaymentRails {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment rail %q", value)
}
