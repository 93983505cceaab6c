package checkout

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

const (
	orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderNumberLength   = 8
	defaultOrderPrefix  = "MASK"
	// largest multiple of the alphabet size below 256, for unbiased sampling
	orderNumberCutoff = 252
)

// OrderNumberGenerator mints human-facing order numbers like MASK-7QX2KD9A. Uniqueness is
// enforced by the order store; the generator only makes collisions unlikely.
type OrderNumberGenerator struct {
	prefix string
	rand   io.Reader
}

// NewOrderNumberGenerator uses crypto/rand and the given prefix (MASK when blank).
func NewOrderNumberGenerator(prefix string) *OrderNumberGenerator {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = defaultOrderPrefix
	}
	return &OrderNumberGenerator{prefix: prefix, rand: rand.Reader}
}

// Generate returns "<PREFIX>-" followed by eight upper-case alphanumerics.
func (g *OrderNumberGenerator) Generate() (string, error) {
	out := make([]byte, 0, orderNumberLength)
	buf := make([]byte, orderNumberLength*2)
	for len(out) < orderNumberLength {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= orderNumberCutoff {
				continue
			}
			out = append(out, orderNumberAlphabet[int(b)%len(orderNumberAlphabet)])
			if len(out) == orderNumberLength {
				break
			}
		}
	}
	return g.prefix + "-" + string(out), nil
}
