package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, OutcomeFromFlag(true))
	assert.Equal(t, OutcomeFailure, OutcomeFromFlag(false))
	assert.True(t, OutcomeSuccess.Valid())
	assert.False(t, Outcome("maybe").Valid())
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(950), MinorUnits(decimal.RequireFromString("9.50")))
	assert.Equal(t, int64(1), MinorUnits(decimal.RequireFromString("0.005")))
	assert.Equal(t, int64(1999), MinorUnits(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(0), MinorUnits(decimal.Zero))
}
