package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/maskball-tickets/pkg/config"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "maskball", ExpirationMinutes: 30}
}

func TestMintAndParseStaffToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()

	token, err := MintStaffToken(cfg, now, StaffTokenPayload{Staff: "front-door", Role: enums.StaffRoleDoor})
	if err != nil {
		t.Fatalf("mint staff token: %v", err)
	}

	claims, err := ParseStaffToken(cfg, token)
	if err != nil {
		t.Fatalf("parse staff token: %v", err)
	}
	if claims.Staff != "front-door" {
		t.Fatalf("expected staff front-door, got %s", claims.Staff)
	}
	if claims.Role != enums.StaffRoleDoor {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("issuer mismatch")
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be set")
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.Time.After(now) {
		t.Fatalf("expected expiry in the future")
	}
	if !claims.Allows(enums.StaffRoleDoor) || claims.Allows(enums.StaffRoleAdmin) {
		t.Fatalf("door token role checks wrong")
	}
}

func TestAdminClaimsAllowDoor(t *testing.T) {
	claims := &StaffClaims{Role: enums.StaffRoleAdmin}
	if !claims.Allows(enums.StaffRoleDoor) || !claims.Allows(enums.StaffRoleAdmin) {
		t.Fatalf("admin should be allowed everywhere")
	}
	var missing *StaffClaims
	if missing.Allows(enums.StaffRoleDoor) {
		t.Fatalf("nil claims must not be allowed")
	}
}

func TestParseStaffTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintStaffToken(cfg, time.Now(), StaffTokenPayload{Role: enums.StaffRoleAdmin})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := cfg
	other.Secret = "different"
	if _, err := ParseStaffToken(other, token); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestParseStaffTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintStaffToken(cfg, time.Now().Add(-2*time.Hour), StaffTokenPayload{Role: enums.StaffRoleAdmin})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, err = ParseStaffToken(cfg, token)
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestMintStaffTokenInvalidRole(t *testing.T) {
	if _, err := MintStaffToken(testJWTConfig(), time.Now(), StaffTokenPayload{Role: enums.StaffRole("bouncer")}); err == nil {
		t.Fatalf("expected invalid role error")
	}
}

func TestParseStaffTokenRefusesForeignTokens(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now()
	sign := func(claims StaffClaims) string {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return raw
	}
	valid := jwt.RegisteredClaims{
		ID:        "jti-1",
		Issuer:    cfg.Issuer,
		Audience:  jwt.ClaimStrings{audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	noAudience := valid
	noAudience.Audience = nil
	noID := valid
	noID.ID = ""
	noExpiry := valid
	noExpiry.ExpiresAt = nil

	cases := map[string]StaffClaims{
		"missing audience": {Role: enums.StaffRoleAdmin, RegisteredClaims: noAudience},
		"missing jti":      {Role: enums.StaffRoleAdmin, RegisteredClaims: noID},
		"missing expiry":   {Role: enums.StaffRoleAdmin, RegisteredClaims: noExpiry},
		"unknown role":     {Role: "bouncer", RegisteredClaims: valid},
	}
	for name, claims := range cases {
		if _, err := ParseStaffToken(cfg, sign(claims)); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
	if _, err := ParseStaffToken(cfg, sign(StaffClaims{Role: enums.StaffRoleDoor, RegisteredClaims: valid})); err != nil {
		t.Fatalf("control token rejected: %v", err)
	}
}

func TestParseStaffTokenToleratesSmallClockSkew(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintStaffToken(cfg, time.Now().Add(10*time.Second), StaffTokenPayload{Role: enums.StaffRoleDoor})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseStaffToken(cfg, token); err != nil {
		t.Fatalf("token from a slightly fast clock should parse: %v", err)
	}
}

func TestClaimsRemaining(t *testing.T) {
	now := time.Date(2026, 10, 31, 22, 0, 0, 0, time.UTC)
	claims := &StaffClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute))}}
	if got := claims.Remaining(now); got != 15*time.Minute {
		t.Fatalf("expected 15m remaining, got %v", got)
	}
	if got := claims.Remaining(now.Add(time.Hour)); got != 0 {
		t.Fatalf("expired token should have nothing remaining, got %v", got)
	}
	var missing *StaffClaims
	if missing.Remaining(now) != 0 {
		t.Fatal("nil claims should have nothing remaining")
	}
}
