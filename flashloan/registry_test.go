package flashloan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFees() FeeTable {
	return FeeTable{
		"aave":     decimal.RequireFromString("0.0009"),
		"balancer": decimal.Zero,
		"dydx":     decimal.Zero,
	}
}

func TestNewRegistryRejectsBadRates(t *testing.T) {
	_, err := NewRegistry(FeeTable{"aave": decimal.RequireFromString("1.5")}, nil)
	assert.Error(t, err)

	_, err = NewRegistry(FeeTable{"aave": decimal.RequireFromString("-0.01")}, nil)
	assert.Error(t, err)

	_, err = NewRegistry(FeeTable{}, nil)
	assert.Error(t, err)
}

func TestFeeRateLookup(t *testing.T) {
	r, err := NewRegistry(testFees(), nil)
	require.NoError(t, err)

	rate, err := r.FeeRate("aave")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.0009")))

	_, err = r.FeeRate("cream")
	assert.Error(t, err)
}

func TestAllowedSetNarrows(t *testing.T) {
	r, err := NewRegistry(testFees(), []string{"balancer"})
	require.NoError(t, err)

	assert.True(t, r.Allowed("balancer"))
	assert.False(t, r.Allowed("aave"))

	_, err = NewRegistry(testFees(), []string{"unknown"})
	assert.Error(t, err)
}

func TestCheapestDeterministic(t *testing.T) {
	r, err := NewRegistry(testFees(), nil)
	require.NoError(t, err)

	// balancer and dydx tie at zero; name order breaks the tie.
	assert.Equal(t, "balancer", r.Cheapest())
}

func TestLoadRegistryFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	content := []byte(`providers:
  aave: "0.0009"
  balancer: "0"
allowed:
  - balancer
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	r, err := LoadRegistry(path)
	require.NoError(t, err)

	rate, err := r.FeeRate("aave")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.0009")))
	assert.False(t, r.Allowed("aave"))
	assert.True(t, r.Allowed("balancer"))
}
