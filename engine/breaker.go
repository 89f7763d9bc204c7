package engine

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"github.com/omniarb/arbengine/gate"
	"github.com/omniarb/arbengine/types"
)

type simResult struct {
	ok     bool
	reason string
}

// BreakerOracle wraps the external simulation oracle in a circuit
// breaker: a flapping simulator trips open and fails fast instead of
// stalling every tick at the SIMULATION stage.
type BreakerOracle struct {
	inner gate.SimulationOracle
	cb    *gobreaker.CircuitBreaker[simResult]
}

// NewBreakerOracle wraps inner with default breaker settings.
func NewBreakerOracle(inner gate.SimulationOracle) *BreakerOracle {
	return &BreakerOracle{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker[simResult](gobreaker.Settings{
			Name: "simulation-oracle",
		}),
	}
}

// Simulate implements gate.SimulationOracle. Oracle rejections are not
// breaker failures; only transport-level errors count against it.
func (b *BreakerOracle) Simulate(ctx context.Context, route *types.Route, amount decimal.Decimal) (bool, string, error) {
	res, err := b.cb.Execute(func() (simResult, error) {
		ok, reason, err := b.inner.Simulate(ctx, route, amount)
		if err != nil {
			return simResult{}, err
		}
		return simResult{ok: ok, reason: reason}, nil
	})
	if err != nil {
		return false, "", err
	}
	return res.ok, res.reason, nil
}
