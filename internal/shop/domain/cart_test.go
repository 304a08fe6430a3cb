package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartLineAccumulation(t *testing.T) {
	unit := decimal.RequireFromString("19.99")

	line := NewCartLine("1", 5, unit)
	assert.Equal(t, 5, line.Quantity)
	assert.True(t, line.Price.Equal(decimal.RequireFromString("99.95")), "got %s", line.Price)

	line.Add(3, unit)
	assert.Equal(t, 8, line.Quantity)
	assert.True(t, line.Price.Equal(decimal.RequireFromString("159.92")), "got %s", line.Price)
}

func TestCartLinePriceFrozenPerAddition(t *testing.T) {
	line := NewCartLine("1", 1, decimal.RequireFromString("10.00"))
	// A later addition at a different unit price folds in at that price; the
	// earlier portion is not recomputed.
	line.Add(1, decimal.RequireFromString("12.50"))
	require.Equal(t, 2, line.Quantity)
	assert.True(t, line.Price.Equal(decimal.RequireFromString("22.50")), "got %s", line.Price)
}

func TestReservedQuantity(t *testing.T) {
	lines := []CartLine{
		NewCartLine("1", 5, decimal.New(1, 0)),
		NewCartLine("2", 3, decimal.New(1, 0)),
	}
	assert.Equal(t, 5, ReservedQuantity(lines, "1"))
	assert.Equal(t, 3, ReservedQuantity(lines, "2"))
	assert.Equal(t, 0, ReservedQuantity(lines, "3"))
	assert.Equal(t, 0, ReservedQuantity(nil, "1"))
}
