package admin

import (
	"strings"

	"github.com/angelmondragon/maskball-tickets/pkg/security"
)

// OverrideVerifier checks the passphrase that allows moving an order out of verified.
type OverrideVerifier interface {
	Verify(token string) bool
}

// HashedOverride verifies against an argon2id hash from configuration. With no hash
// configured every token is refused, so verified orders cannot be reverted.
type HashedOverride struct {
	hash string
}

func NewHashedOverride(hash string) HashedOverride {
	return HashedOverride{hash: strings.TrimSpace(hash)}
}

func (h HashedOverride) Verify(token string) bool {
	if h.hash == "" || token == "" {
		return false
	}
	ok, err := security.VerifyPassword(token, h.hash)
	return err == nil && ok
}
