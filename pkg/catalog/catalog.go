// Package catalog loads the static ticket-tier configuration the ledger is seeded from.
package catalog

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Tier is one ticket type as declared in the catalog file.
type Tier struct {
	ID    string          `yaml:"id"`
	Name  string          `yaml:"name"`
	Price decimal.Decimal `yaml:"price"`
	Stock int             `yaml:"stock"`
}

// Catalog is the parsed catalog file.
type Catalog struct {
	Event string `yaml:"event"`
	Tiers []Tier `yaml:"tiers"`
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes catalog YAML and validates every tier.
func Parse(raw []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// slugRe is kept in step with the ticket_slug request validator.
var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validate checks ids are unique slugs and quantities are sane.
func (c *Catalog) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("catalog declares no tiers")
	}
	seen := make(map[string]struct{}, len(c.Tiers))
	for i, tier := range c.Tiers {
		id := strings.TrimSpace(tier.ID)
		if id == "" {
			return fmt.Errorf("tier %d: id is required", i)
		}
		if !slugRe.MatchString(id) {
			return fmt.Errorf("tier %q: id must be a lower-case slug such as early-bird", id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("tier %q declared twice", id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(tier.Name) == "" {
			return fmt.Errorf("tier %q: name is required", id)
		}
		if tier.Price.IsNegative() {
			return fmt.Errorf("tier %q: price must not be negative", id)
		}
		if tier.Stock < 0 {
			return fmt.Errorf("tier %q: stock must not be negative", id)
		}
		c.Tiers[i].ID = id
		c.Tiers[i].Name = strings.TrimSpace(tier.Name)
	}
	return nil
}
