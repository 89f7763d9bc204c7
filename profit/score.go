package profit

import (
	"github.com/shopspring/decimal"

	"github.com/omniarb/arbengine/types"
)

// Multiplicative penalty schedule for the success heuristic. The score
// starts at 1 and decays for thin margins, heavy price impact, gas-
// dominated profit and long routes. Deterministic by construction:
// same opportunity, same score.
var (
	roiThin     = decimal.RequireFromString("0.001") // ROI < 0.1%
	roiModest   = decimal.RequireFromString("0.005") // ROI < 0.5%
	impactHigh  = decimal.RequireFromString("0.02")
	impactMild  = decimal.RequireFromString("0.01")
	gasShareMax = decimal.RequireFromString("0.3")

	penaltyThinROI    = decimal.RequireFromString("0.5")
	penaltyModestROI  = decimal.RequireFromString("0.8")
	penaltyHighImpact = decimal.RequireFromString("0.7")
	penaltyMildImpact = decimal.RequireFromString("0.9")
	penaltyGasHeavy   = decimal.RequireFromString("0.8")
	penaltyPerHop     = decimal.RequireFromString("0.95")
)

// successProbability scores an opportunity in [0,1]: monotone
// decreasing in max price impact and hop count, increasing in the
// profit ratio. A reverting opportunity scores zero.
func successProbability(o *types.Opportunity) decimal.Decimal {
	if o.WillRevert {
		return decimal.Zero
	}

	score := decimal.NewFromInt(1)

	roi := o.NetProfit.Div(o.LoanAmount)
	if roi.LessThan(roiThin) {
		score = score.Mul(penaltyThinROI)
	} else if roi.LessThan(roiModest) {
		score = score.Mul(penaltyModestROI)
	}

	if o.MaxPriceImpact.GreaterThan(impactHigh) {
		score = score.Mul(penaltyHighImpact)
	} else if o.MaxPriceImpact.GreaterThan(impactMild) {
		score = score.Mul(penaltyMildImpact)
	}

	if o.GasCostUSD.GreaterThan(o.NetProfit.Mul(gasShareMax)) {
		score = score.Mul(penaltyGasHeavy)
	}

	for extra := len(o.Route.Hops) - types.MinRouteHops; extra > 0; extra-- {
		score = score.Mul(penaltyPerHop)
	}

	return score
}
