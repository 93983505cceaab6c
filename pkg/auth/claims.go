package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

// StaffTokenPayload captures the data available when minting a staff JWT.
type StaffTokenPayload struct {
	Staff string
	Role  enums.StaffRole
	JTI   string
}

// StaffClaims represents the typed JWT issued to admin and door staff.
type StaffClaims struct {
	Staff string          `json:"staff"`
	Role  enums.StaffRole `json:"role"`
	jwt.RegisteredClaims
}

// Allows reports whether the token's role may act as required. Admins may do anything door
// staff can.
func (c *StaffClaims) Allows(required enums.StaffRole) bool {
	if c == nil {
		return false
	}
	return c.Role == required || c.Role == enums.StaffRoleAdmin
}

// Remaining is how long the token stays valid after now; zero once expired.
func (c *StaffClaims) Remaining(now time.Time) time.Duration {
	if c == nil || c.ExpiresAt == nil {
		return 0
	}
	if left := c.ExpiresAt.Sub(now); left > 0 {
		return left
	}
	return 0
}
