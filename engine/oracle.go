package engine

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/omniarb/arbengine/gate"
	"github.com/omniarb/arbengine/profit"
	"github.com/omniarb/arbengine/types"
)

// ReplayOracle is the offline stand-in for the external eth_call
// simulator: it re-walks the route through the AMM math against the
// same snapshot and fails it on a revert verdict or excessive impact.
// Deployments with node access swap in an RPC-backed oracle; the gate
// only ever sees the SimulationOracle interface either way.
type ReplayOracle struct {
	calc        *profit.Calculator
	impactLimit decimal.Decimal
}

// NewReplayOracle creates the replay oracle.
func NewReplayOracle(calc *profit.Calculator, impactLimit decimal.Decimal) *ReplayOracle {
	return &ReplayOracle{calc: calc, impactLimit: impactLimit}
}

// Simulate implements gate.SimulationOracle.
func (o *ReplayOracle) Simulate(ctx context.Context, route *types.Route, amount decimal.Decimal) (bool, string, error) {
	if err := ctx.Err(); err != nil {
		return false, "", err
	}
	opp := o.calc.Evaluate(route, amount, o.replayProvider(), profit.Params{})
	if opp.WillRevert {
		return false, string(opp.Reason), nil
	}
	if o.impactLimit.Sign() > 0 && opp.MaxPriceImpact.GreaterThan(o.impactLimit) {
		return false, string(types.ReasonNegativeProfit), nil
	}
	return true, "", nil
}

// replayProvider picks any provider the calculator's table knows; the
// replay only checks the swap walk, fees were already settled upstream.
func (o *ReplayOracle) replayProvider() string {
	return o.calc.CheapestProvider()
}

// LogSink is the default decision consumer: structured logs only, the
// real signer hand-off lives outside this core.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink logging every decision.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Deliver implements DecisionSink.
func (s *LogSink) Deliver(ctx context.Context, d gate.Decision, opp *types.Opportunity) {
	if d.Approved {
		s.logger.Info("decision delivered",
			zap.Bool("approved", true),
			zap.Uint64("fingerprint", uint64(d.Fingerprint)),
			zap.String("net_profit", opp.NetProfit.String()))
		return
	}
	s.logger.Info("decision delivered",
		zap.Bool("approved", false),
		zap.String("stage", d.StageReached.String()),
		zap.String("reason", string(d.Reason)),
		zap.Uint64("fingerprint", uint64(d.Fingerprint)))
}
