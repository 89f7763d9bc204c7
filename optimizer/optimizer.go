// Package optimizer searches loan amount and alternate pool choices for
// a route, maximizing net profit under a price-impact constraint.
package optimizer

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/omniarb/arbengine/graph"
	"github.com/omniarb/arbengine/profit"
	"github.com/omniarb/arbengine/types"
)

const (
	// DefaultProbes is the number of loan-amount probe points on the
	// grid. The search is bounded by probes * (1 + fanOut * hops)
	// evaluations, never open-ended.
	DefaultProbes = 12

	// DefaultFanOut caps the alternate pools tried per hop.
	DefaultFanOut = 3
)

// Bounds restricts the loan-amount search interval.
type Bounds struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Optimizer refines a candidate route using the profitability
// calculator as its objective function.
type Optimizer struct {
	calc   *profit.Calculator
	probes int
	fanOut int
	logger *zap.Logger
}

// New creates an optimizer. Non-positive probes or fanOut fall back to
// the defaults.
func New(calc *profit.Calculator, probes, fanOut int, logger *zap.Logger) *Optimizer {
	if probes <= 0 {
		probes = DefaultProbes
	}
	if fanOut <= 0 {
		fanOut = DefaultFanOut
	}
	return &Optimizer{calc: calc, probes: probes, fanOut: fanOut, logger: logger}
}

// Optimize grid-searches the loan amount within bounds, then tries
// pool-substitution variants for each hop against the snapshot. The
// best feasible opportunity wins; max price impact above impactLimit
// disqualifies a probe. Ties prefer fewer hops.
func (o *Optimizer) Optimize(snapshot *graph.Snapshot, route *types.Route, bounds Bounds, impactLimit decimal.Decimal, provider string, p profit.Params) *types.Opportunity {
	best := o.bestAmount(route, bounds, impactLimit, provider, p)

	// Substitution pass: swap one hop at a time for an alternate pool
	// of the same pair and re-run the amount grid on the variant.
	for i, hop := range route.Hops {
		alts := snapshot.Alternates(hop)
		if len(alts) > o.fanOut {
			alts = alts[:o.fanOut]
		}
		for _, alt := range alts {
			variant := substituteHop(route, i, alt)
			if variant == nil {
				continue
			}
			cand := o.bestAmount(variant, bounds, impactLimit, provider, p)
			if better(cand, best) {
				best = cand
			}
		}
	}
	return best
}

// bestAmount evaluates the route at probes evenly spaced amounts in
// [bounds.Min, bounds.Max] and keeps the best feasible result.
func (o *Optimizer) bestAmount(route *types.Route, bounds Bounds, impactLimit decimal.Decimal, provider string, p profit.Params) *types.Opportunity {
	lo, hi := bounds.Min, bounds.Max
	if hi.LessThan(lo) {
		lo, hi = hi, lo
	}

	var best *types.Opportunity
	steps := o.probes - 1
	if steps < 1 || hi.Equal(lo) {
		steps = 0
	}
	span := hi.Sub(lo)
	for i := 0; i <= steps; i++ {
		amount := lo
		if steps > 0 {
			amount = lo.Add(span.Mul(decimal.NewFromInt(int64(i))).Div(decimal.NewFromInt(int64(steps))))
		}
		if amount.Sign() <= 0 {
			continue
		}
		cand := o.calc.Evaluate(route, amount, provider, p)
		if impactLimit.Sign() > 0 && cand.MaxPriceImpact.GreaterThan(impactLimit) {
			continue
		}
		if better(cand, best) {
			best = cand
		}
	}
	return best
}

// better orders opportunities by net profit, fewer hops on ties.
func better(cand, best *types.Opportunity) bool {
	if cand == nil || cand.WillRevert {
		return false
	}
	if best == nil || best.WillRevert {
		return true
	}
	switch cand.NetProfit.Cmp(best.NetProfit) {
	case 1:
		return true
	case 0:
		return len(cand.Route.Hops) < len(best.Route.Hops)
	default:
		return false
	}
}

// substituteHop rebuilds the route with hop i served by alt. Returns
// nil if the variant would reuse a pool.
func substituteHop(route *types.Route, i int, alt *types.Pool) *types.Route {
	hops := make([]types.Hop, len(route.Hops))
	copy(hops, route.Hops)
	hops[i] = types.Hop{Pool: alt, TokenIn: hops[i].TokenIn, TokenOut: hops[i].TokenOut}
	variant := &types.Route{Hops: hops}
	if variant.HasRepeatedPool() {
		return nil
	}
	return variant
}
