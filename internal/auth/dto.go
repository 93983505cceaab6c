package auth

import (
	"time"

	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

// LoginRequest carries the shared staff password for a role. Name labels the person at the
// desk in logs and scan records.
type LoginRequest struct {
	Role     enums.StaffRole `json:"role" validate:"required,oneof=admin door"`
	Password string          `json:"password" validate:"required"`
	Name     string          `json:"name" validate:"max=64"`
}

// LoginResponse is the signed staff token and what it grants.
type LoginResponse struct {
	AccessToken string          `json:"access_token"`
	Role        enums.StaffRole `json:"role"`
	Staff       string          `json:"staff"`
	ExpiresAt   time.Time       `json:"expires_at"`
}
