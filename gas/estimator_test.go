package gas

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEstimateArbitrageGasMonotone(t *testing.T) {
	e := NewEstimator()

	prev := uint64(0)
	for hops := 0; hops <= 4; hops++ {
		units := e.EstimateArbitrageGas(hops)
		assert.Greater(t, units, prev, "gas must grow with hop count")
		prev = units
	}
}

func TestCostUSD(t *testing.T) {
	e := NewEstimator()

	// 2 hops = 440k units; at 30 gwei and $0.50 native that is
	// 440000 * 30e-9 * 0.5 = 0.0066 USD.
	cost := e.CostUSD(2, decimal.NewFromInt(30), decimal.RequireFromString("0.5"))
	assert.True(t, cost.Equal(decimal.RequireFromString("0.0066")), "got %s", cost)
}
