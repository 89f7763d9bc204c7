// Package amm computes swap outputs and price impact for the supported
// pool curves. All functions are pure over the pool snapshot and safe
// to call from concurrent workers.
package amm

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/omniarb/arbengine/types"
)

var (
	// ErrInvalidPoolState is returned for pools with non-positive
	// reserves. Not fatal; callers exclude the route and continue.
	ErrInvalidPoolState = errors.New("amm: non-positive pool reserve")

	// ErrConvergenceFailure is returned when the StableSwap solver
	// exhausts its iteration budget without converging.
	ErrConvergenceFailure = errors.New("amm: stableswap solver did not converge")

	// ErrNumericOverflow is returned when intermediate values leave the
	// representable range. Callers treat it like a convergence failure.
	ErrNumericOverflow = errors.New("amm: numeric overflow")

	// ErrInvalidAmount is returned for negative input amounts.
	ErrInvalidAmount = errors.New("amm: negative input amount")
)

func init() {
	// StableSwap Newton iterations divide repeatedly; the default 16
	// digits are not enough to hold the 1e-6 relative tolerance on
	// large reserves.
	if decimal.DivisionPrecision < 28 {
		decimal.DivisionPrecision = 28
	}
}

// SwapResult is the outcome of pushing amountIn through one pool.
type SwapResult struct {
	AmountOut   decimal.Decimal
	PriceImpact decimal.Decimal
}

var one = decimal.NewFromInt(1)

// maxMagnitude bounds intermediate values; anything beyond it is
// treated as overflow rather than trusted.
var maxMagnitude = decimal.New(1, 40)

// SwapOutput computes the output amount and price impact for sending
// amountIn of tokenIn into pool. A zero amountIn returns a zero result
// without error.
func SwapOutput(pool *types.Pool, tokenIn common.Address, amountIn decimal.Decimal) (SwapResult, error) {
	if amountIn.Sign() < 0 {
		return SwapResult{}, ErrInvalidAmount
	}
	if pool.Degenerate() {
		return SwapResult{}, ErrInvalidPoolState
	}
	if amountIn.Sign() == 0 {
		return SwapResult{}, nil
	}
	reserveIn, reserveOut := pool.ReservesFor(tokenIn)
	switch pool.Type {
	case types.StableSwap:
		return stableSwapOutput(amountIn, reserveIn, reserveOut, pool.Fee, pool.AmpFactor)
	default:
		return constantProductOutput(amountIn, reserveIn, reserveOut, pool.Fee)
	}
}
