package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `
event: Masquerade Ball
tiers:
  - id: early-bird
    name: Early Bird
    price: 88.00
    stock: 150
  - id: table-for-4
    name: Table for 4
    price: "420.50"
    stock: 20
`

func TestParse(t *testing.T) {
	cat, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	require.Equal(t, "Masquerade Ball", cat.Event)
	require.Len(t, cat.Tiers, 2)
	require.Equal(t, "early-bird", cat.Tiers[0].ID)
	require.True(t, cat.Tiers[0].Price.Equal(decimal.RequireFromString("88")))
	require.True(t, cat.Tiers[1].Price.Equal(decimal.RequireFromString("420.50")))
	require.Equal(t, 20, cat.Tiers[1].Stock)
}

func TestParseRejectsInvalidTiers(t *testing.T) {
	cases := map[string]string{
		"empty":     "tiers: []",
		"dup":       "tiers:\n  - {id: a, name: A, price: 1, stock: 1}\n  - {id: a, name: B, price: 1, stock: 1}",
		"no name":   "tiers:\n  - {id: a, price: 1, stock: 1}",
		"neg stock": "tiers:\n  - {id: a, name: A, price: 1, stock: -1}",
		"neg price": "tiers:\n  - {id: a, name: A, price: -1, stock: 1}",
		"pipe id":   "tiers:\n  - {id: 'a|b', name: A, price: 1, stock: 1}",
		"upper id":  "tiers:\n  - {id: Early-Bird, name: A, price: 1, stock: 1}",
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))

	cat, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cat.Tiers, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
