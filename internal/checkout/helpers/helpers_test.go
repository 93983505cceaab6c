package helpers

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/maskball-tickets/internal/inventory"
	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestValidateDetails_ReportsEveryField(t *testing.T) {
	err := ValidateDetails(CustomerDetails{Name: "  ", Email: "not-an-email", Phone: ""})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	fields, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "Please enter your name", fields["name"])
	assert.Equal(t, "Please enter a valid email address", fields["email"])
	assert.Equal(t, "Please enter your phone number", fields["phone"])
}

func TestValidateDetails_AcceptsNormalizedInput(t *testing.T) {
	details := CustomerDetails{Name: " Ada ", Email: " ADA@Example.com ", Phone: " +65 8123 4567 "}
	require.NoError(t, ValidateDetails(details))

	normalized := details.Normalize()
	assert.Equal(t, "Ada", normalized.Name)
	assert.Equal(t, "ada@example.com", normalized.Email)
	assert.Equal(t, "+65 8123 4567", normalized.Phone)
}

func TestValidateProof(t *testing.T) {
	contentType, err := ValidateProof(&Proof{FileName: "transfer.png", Data: pngHeader}, 0)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)

	_, err = ValidateProof(nil, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ValidateProof(&Proof{FileName: "transfer.png", Data: []byte("%PDF-1.4 not an image")}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be an image")

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 64)...)
	_, err = ValidateProof(&Proof{Data: big}, 32)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestPriceItems(t *testing.T) {
	tiers := []models.TicketType{
		{ID: "early-bird", DisplayName: "Early Bird", UnitPrice: decimal.NewFromInt(88)},
		{ID: "table-for-4", DisplayName: "Table for 4", UnitPrice: decimal.NewFromInt(420)},
	}
	lines, subtotal, err := PriceItems([]inventory.Item{
		{TicketTypeID: "early-bird", Quantity: 2},
		{TicketTypeID: "table-for-4", Quantity: 1},
	}, tiers)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "Early Bird", lines[0].TicketTypeName)
	assert.True(t, subtotal.Equal(decimal.NewFromInt(596)), "subtotal %s", subtotal)

	items := ItemsFromLines(lines)
	assert.Equal(t, []inventory.Item{{TicketTypeID: "early-bird", Quantity: 2}, {TicketTypeID: "table-for-4", Quantity: 1}}, items)

	_, _, err = PriceItems([]inventory.Item{{TicketTypeID: "phantom", Quantity: 1}}, tiers)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, []string{"early-bird", "table-for-4"}, KnownIDs(tiers))
}
