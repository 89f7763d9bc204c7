// Package gas estimates the gas consumption and USD cost of a
// flash-loan arbitrage transaction from its hop count.
package gas

import "github.com/shopspring/decimal"

// Gas consumption constants for the transaction skeleton. Per-hop cost
// covers storage reads, token transfers and the swap itself.
const (
	flashLoanInitGas    = 150_000
	callbackOverheadGas = 50_000
	gasPerSwap          = 120_000
)

var gweiPerNative = decimal.New(1, 9)

// Estimator converts hop counts into gas units and USD cost. It is a
// pure lookup; gas price and the native token price arrive with each
// tick from the external feed.
type Estimator struct{}

// NewEstimator creates a gas estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// EstimateArbitrageGas returns the gas units for a route with numHops
// swaps: flash-loan initiation, the repayment callback and one swap per
// hop. Strictly increasing in the hop count.
func (e *Estimator) EstimateArbitrageGas(numHops int) uint64 {
	if numHops < 0 {
		numHops = 0
	}
	return flashLoanInitGas + callbackOverheadGas + gasPerSwap*uint64(numHops)
}

// CostUSD prices the gas for a route: units * gasPrice(gwei) converted
// to native, times the native token USD price.
func (e *Estimator) CostUSD(numHops int, gasPriceGwei, nativePriceUSD decimal.Decimal) decimal.Decimal {
	units := decimal.NewFromInt(int64(e.EstimateArbitrageGas(numHops)))
	native := units.Mul(gasPriceGwei).Div(gweiPerNative)
	return native.Mul(nativePriceUSD)
}
