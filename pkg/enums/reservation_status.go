package enums

// ReservationStatus tracks an inventory hold created for an online payment.
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusExpired   ReservationStatus = "expired"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusActive,
	ReservationStatusConfirmed,
	ReservationStatusReleased,
	ReservationStatusExpired,
}

// IsValid reports whether the value is a known ReservationStatus.
func (s ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the hold no longer counts against stock.
func (s ReservationStatus) IsTerminal() bool {
	return s != ReservationStatusActive
}

// CheckoutSessionStatus tracks a card checkout between intent creation and settlement.
type CheckoutSessionStatus string

const (
	CheckoutSessionAwaitingPayment CheckoutSessionStatus = "awaiting_payment"
	CheckoutSessionCompleted       CheckoutSessionStatus = "completed"
	CheckoutSessionFailed          CheckoutSessionStatus = "failed"
	CheckoutSessionExpired         CheckoutSessionStatus = "expired"
)

// IsTerminal reports whether the session can no longer be completed.
func (s CheckoutSessionStatus) IsTerminal() bool {
	return s != CheckoutSessionAwaitingPayment
}
