package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pizza() *Product {
	return &Product{
		ID:    "pizza",
		Name:  "Margherita",
		Price: decimal.RequireFromString("8.00"),
		Options: []Option{
			{Name: "extra cheese", Price: decimal.RequireFromString("1.50")},
			{Name: "basil", Price: decimal.Zero},
		},
		RequiredGroups: []RequiredGroup{
			{Name: "size", Choices: []string{"small", "large"}},
			{Name: "crust", Choices: []string{"thin", "thick"}},
		},
	}
}

func TestUnitPriceAddsOptionSurcharges(t *testing.T) {
	price, err := pizza().UnitPrice([]string{"extra cheese", "basil"})
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("9.50")), price.String())
}

func TestUnitPriceRejectsSubCentPrices(t *testing.T) {
	p := pizza()
	p.Options[1].Price = decimal.RequireFromString("0.005")

	_, err := p.UnitPrice([]string{"basil"})
	require.ErrorIs(t, err, ErrPricePrecision)

	_, err = p.UnitPrice(nil)
	require.NoError(t, err)
}

func TestUnitPriceRejectsUnknownOption(t *testing.T) {
	_, err := pizza().UnitPrice([]string{"pineapple"})
	require.ErrorIs(t, err, ErrUnknownOption)
}

func TestValidateOptions(t *testing.T) {
	p := pizza()
	require.NoError(t, p.ValidateOptions(nil))
	require.NoError(t, p.ValidateOptions([]string{"basil"}))
	require.ErrorIs(t, p.ValidateOptions([]string{"basil", "anchovies"}), ErrUnknownOption)
}

func TestValidateSelections(t *testing.T) {
	p := pizza()

	require.NoError(t, p.ValidateSelections(map[string]string{"size": "large", "crust": "thin"}))
	require.ErrorIs(t, p.ValidateSelections(map[string]string{"size": "large"}), ErrMissingSelection)
	require.ErrorIs(t, p.ValidateSelections(map[string]string{"size": "huge", "crust": "thin"}), ErrInvalidSelection)
	require.ErrorIs(t, p.ValidateSelections(map[string]string{"size": "large", "crust": "thin", "sauce": "bbq"}), ErrUnknownGroup)
}

func TestGroupNamesSorted(t *testing.T) {
	assert.Equal(t, []string{"crust", "size"}, pizza().GroupNames())
}
