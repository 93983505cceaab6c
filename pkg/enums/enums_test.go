package enums

import "testing"

func TestPaymentRailMethod(t *testing.T) {
	cases := map[PaymentRail]PaymentMethod{
		PaymentRailPayNow:   PaymentMethodPayNow,
		PaymentRailCard:     PaymentMethodCard,
		PaymentRailApplePay: PaymentMethodCard,
		PaymentRailGrabPay:  PaymentMethodCard,
	}
	for rail, want := range cases {
		if got := rail.Method(); got != want {
			t.Fatalf("rail %s expected method %s got %s", rail, want, got)
		}
	}
	if PaymentRailPayNow.IsOnline() {
		t.Fatalf("paynow must not be treated as an online rail")
	}
	if !PaymentRailGrabPay.IsOnline() {
		t.Fatalf("grabpay should be online")
	}
}

func TestParsePaymentRailTolerantInput(t *testing.T) {
	rail, err := ParsePaymentRail(" Apple-Pay ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rail != PaymentRailApplePay {
		t.Fatalf("expected apple_pay got %s", rail)
	}
	if _, err := ParsePaymentRail("bitcoin"); err == nil {
		t.Fatalf("expected unknown rail to fail")
	}
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("VERIFIED")
	if err != nil || status != OrderStatusVerified {
		t.Fatalf("expected verified, got %s (%v)", status, err)
	}
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatalf("expected invalid status error")
	}
}

func TestReservationStatusTerminal(t *testing.T) {
	if ReservationStatusActive.IsTerminal() {
		t.Fatalf("active hold is not terminal")
	}
	for _, s := range []ReservationStatus{ReservationStatusConfirmed, ReservationStatusReleased, ReservationStatusExpired} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
}
