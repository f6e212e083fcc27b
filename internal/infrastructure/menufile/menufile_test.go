package menufile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/catalog"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const menu = `
products:
  - id: pizza
    name: Margherita
    category: pizza
    price: "8.00"
    options:
      - { name: extra cheese, price: "1.50" }
    required:
      - { name: size, choices: [small, large] }
  - id: cola
    price: 2.5
`

func TestDecode(t *testing.T) {
	products, err := Decode(strings.NewReader(menu))
	require.NoError(t, err)
	require.Len(t, products, 2)

	p := products[0]
	assert.Equal(t, "Margherita", p.Name)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("8")))
	require.Len(t, p.Options, 1)
	assert.True(t, p.Options[0].Price.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, []string{"small", "large"}, p.RequiredGroups[0].Choices)

	assert.Equal(t, "cola", products[1].Name)
	assert.True(t, products[1].Price.Equal(decimal.RequireFromString("2.5")))
}

func TestDecodeRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"missing id":     "products:\n  - name: x\n    price: \"1\"\n",
		"negative price": "products:\n  - id: x\n    price: \"-1\"\n",
		"bad price":      "products:\n  - id: x\n    price: abc\n",
		"duplicate":      "products:\n  - id: x\n  - id: x\n",
		"unknown field":  "products:\n  - id: x\n    colour: red\n",
		"empty group":    "products:\n  - id: x\n    required:\n      - name: size\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
}

func TestDecodeRejectsSubCentPrices(t *testing.T) {
	for _, doc := range []string{
		"products:\n  - id: x\n    price: \"8.505\"\n",
		"products:\n  - id: x\n    price: 8.001\n",
		"products:\n  - id: x\n    price: \"8\"\n    options:\n      - { name: y, price: \"0.125\" }\n",
	} {
		_, err := Decode(strings.NewReader(doc))
		require.ErrorIs(t, err, catalog.ErrPricePrecision, doc)
	}

	products, err := Decode(strings.NewReader("products:\n  - id: x\n    price: \"8.500\"\n"))
	require.NoError(t, err)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("8.5")))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "menu.yaml")
	require.NoError(t, os.WriteFile(path, []byte(menu), 0o600))

	products, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, products, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
