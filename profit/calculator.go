// Package profit walks a route hop by hop through the AMM math and
// turns the result into a net-profit verdict.
package profit

import (
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/omniarb/arbengine/amm"
	"github.com/omniarb/arbengine/flashloan"
	"github.com/omniarb/arbengine/gas"
	"github.com/omniarb/arbengine/types"
)

// Params are the per-tick market inputs supplied by the external feed.
type Params struct {
	GasPriceGwei   decimal.Decimal
	NativePriceUSD decimal.Decimal
}

// Calculator evaluates routes against one snapshot. It holds no mutable
// state and is safe for concurrent use by the worker pool.
type Calculator struct {
	providers *flashloan.Registry
	gas       *gas.Estimator
	logger    *zap.Logger
}

// NewCalculator creates a calculator over the injected provider fee
// table and gas estimator.
func NewCalculator(providers *flashloan.Registry, estimator *gas.Estimator, logger *zap.Logger) *Calculator {
	return &Calculator{providers: providers, gas: estimator, logger: logger}
}

// CheapestProvider exposes the cheapest allowed provider from the
// injected registry.
func (c *Calculator) CheapestProvider() string {
	return c.providers.Cheapest()
}

// Evaluate pushes loanAmount through every hop of route, then settles
// the flash-loan fee and gas against the gross output. A numeric
// failure mid-route yields a rejected opportunity with the matching
// reason code; it never aborts the batch and never panics.
func (c *Calculator) Evaluate(route *types.Route, loanAmount decimal.Decimal, provider string, p Params) *types.Opportunity {
	opp := &types.Opportunity{
		Route:       route,
		Provider:    provider,
		LoanAmount:  loanAmount,
		Fingerprint: types.FingerprintRoute(route, loanAmount),
	}

	feeRate, err := c.providers.FeeRate(provider)
	if err != nil {
		return c.reject(opp, types.ReasonProviderDenied, err)
	}
	opp.FlashFee = loanAmount.Mul(feeRate)

	amount := loanAmount
	for _, hop := range route.Hops {
		res, err := amm.SwapOutput(hop.Pool, hop.TokenIn, amount)
		if err != nil {
			return c.reject(opp, reasonForError(err), err)
		}
		if res.PriceImpact.GreaterThan(opp.MaxPriceImpact) {
			opp.MaxPriceImpact = res.PriceImpact
		}
		amount = res.AmountOut
	}
	opp.GrossOutput = amount

	opp.GasCostUSD = c.gas.CostUSD(len(route.Hops), p.GasPriceGwei, p.NativePriceUSD)

	repay := loanAmount.Add(opp.FlashFee)
	opp.NetProfit = opp.GrossOutput.Sub(repay).Sub(opp.GasCostUSD)

	switch {
	case opp.GrossOutput.LessThan(repay):
		opp.WillRevert = true
		opp.Reason = types.ReasonInsufficientRepay
	case opp.NetProfit.Sign() <= 0:
		opp.WillRevert = true
		opp.Reason = types.ReasonNegativeProfit
	}

	opp.SuccessProb = successProbability(opp)
	return opp
}

// reject finalizes an opportunity that failed during the walk.
func (c *Calculator) reject(opp *types.Opportunity, reason types.RejectReason, err error) *types.Opportunity {
	opp.WillRevert = true
	opp.Reason = reason
	opp.NetProfit = opp.LoanAmount.Neg()
	opp.SuccessProb = decimal.Zero

	switch reason {
	case types.ReasonConvergence, types.ReasonNumericOverflow:
		c.logger.Warn("route evaluation failed",
			zap.Error(err),
			zap.Uint64("fingerprint", uint64(opp.Fingerprint)))
	default:
		c.logger.Debug("route excluded",
			zap.Error(err),
			zap.Uint64("fingerprint", uint64(opp.Fingerprint)))
	}
	return opp
}

func reasonForError(err error) types.RejectReason {
	switch {
	case errors.Is(err, amm.ErrConvergenceFailure):
		return types.ReasonConvergence
	case errors.Is(err, amm.ErrNumericOverflow):
		return types.ReasonNumericOverflow
	default:
		return types.ReasonInvalidPoolState
	}
}
