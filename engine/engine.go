// Package engine drives the scan loop: one immutable snapshot per
// tick, parallel route evaluation, optimization of the best candidate
// and the execution-decision gate.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/omniarb/arbengine/cache"
	"github.com/omniarb/arbengine/config"
	"github.com/omniarb/arbengine/gate"
	"github.com/omniarb/arbengine/graph"
	"github.com/omniarb/arbengine/metrics"
	"github.com/omniarb/arbengine/optimizer"
	"github.com/omniarb/arbengine/profit"
	"github.com/omniarb/arbengine/types"
)

// SnapshotSource is the synchronous pull interface to the external pool
// feed. Each call returns the full pool set plus the tick's market
// parameters; the engine never does network I/O itself.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context) ([]*types.Pool, profit.Params, error)
}

// DecisionSink receives every decision the gate renders. Approved
// decisions are the hand-off point to the external signer.
type DecisionSink interface {
	Deliver(ctx context.Context, d gate.Decision, opp *types.Opportunity)
}

// Engine wires the evaluation pipeline together for a run loop.
type Engine struct {
	cfg     *config.Config
	source  SnapshotSource
	sink    DecisionSink
	calc    *profit.Calculator
	opt     *optimizer.Optimizer
	cache   *cache.Cache
	gate    *gate.Gate
	metrics *metrics.EngineMetrics
	limiter *rate.Limiter
	logger  *zap.Logger

	startTokens []common.Address
	provider    string
}

// New assembles an engine from its collaborators. provider is the
// flash-loan provider routes are evaluated against (normally the
// cheapest allowed one).
func New(cfg *config.Config, source SnapshotSource, sink DecisionSink,
	calc *profit.Calculator, opt *optimizer.Optimizer, memo *cache.Cache,
	g *gate.Gate, m *metrics.EngineMetrics, provider string, logger *zap.Logger) *Engine {

	tokens := make([]common.Address, 0, len(cfg.StartTokens))
	for _, t := range cfg.StartTokens {
		tokens = append(tokens, common.HexToAddress(t))
	}

	return &Engine{
		cfg:         cfg,
		source:      source,
		sink:        sink,
		calc:        calc,
		opt:         opt,
		cache:       memo,
		gate:        g,
		metrics:     m,
		limiter:     rate.NewLimiter(rate.Every(cfg.TickInterval), 1),
		logger:      logger,
		startTokens: tokens,
		provider:    provider,
	}
}

// Run scans in discrete ticks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := e.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		if err := e.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error("tick failed", zap.Error(err))
		}
	}
}

// Tick runs one full scan pass: pull snapshot, search, evaluate in
// parallel, optimize the best candidate and gate it. A bad route never
// aborts the rest of the batch; errors here are feed-level only.
func (e *Engine) Tick(ctx context.Context) error {
	started := time.Now()
	defer func() {
		e.metrics.TickLatency.Observe(time.Since(started).Seconds())
	}()

	feed, params, err := e.source.GetSnapshot(ctx)
	if err != nil {
		return err
	}
	snapshot := graph.BuildSnapshot(feed, time.Now(), e.cfg.MaxStaleness, e.logger)
	e.metrics.SnapshotPools.Set(float64(snapshot.Size()))

	lo, hi := e.cfg.AmountBounds()
	screenAmount := lo.Add(hi).Div(decimal.NewFromInt(2))

	var candidates []*types.Route
	for _, token := range e.startTokens {
		routes := graph.FindCycles(snapshot, token, e.cfg.MaxHops)
		e.metrics.RoutesDiscovered.Add(float64(len(routes)))
		candidates = append(candidates, routes...)
	}
	if len(candidates) == 0 {
		return nil
	}

	best := e.screen(ctx, candidates, screenAmount, params)
	if best == nil {
		return nil
	}

	refined := e.opt.Optimize(snapshot, best.Route, optimizer.Bounds{Min: lo, Max: hi},
		e.cfg.ImpactLimit(), e.provider, params)
	if refined == nil {
		refined = best
	}

	decision := e.gate.Decide(ctx, refined)
	e.metrics.Decisions.Inc()
	if decision.Approved {
		e.metrics.Approvals.Inc()
		e.logger.Info("opportunity approved",
			zap.Uint64("fingerprint", uint64(decision.Fingerprint)),
			zap.String("net_profit", refined.NetProfit.String()),
			zap.String("loan_amount", refined.LoanAmount.String()))
	} else {
		e.metrics.Rejections.WithLabelValues(decision.StageReached.String(), string(decision.Reason)).Inc()
		e.logger.Debug("opportunity rejected",
			zap.String("stage", decision.StageReached.String()),
			zap.String("reason", string(decision.Reason)),
			zap.Uint64("fingerprint", uint64(decision.Fingerprint)))
	}
	e.metrics.UpdateApprovalRate()

	if e.sink != nil {
		e.sink.Deliver(ctx, decision, refined)
	}
	return nil
}

// screen fans the candidate routes over a bounded worker pool and
// returns the most profitable screened opportunity. Workers share the
// snapshot read-only; evaluation is pure, so no other synchronization
// is needed.
func (e *Engine) screen(ctx context.Context, routes []*types.Route, amount decimal.Decimal, params profit.Params) *types.Opportunity {
	work := make(chan *types.Route)
	results := make(chan *types.Opportunity, len(routes))

	var wg sync.WaitGroup
	for w := 0; w < e.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for route := range work {
				results <- e.evaluate(route, amount, params)
			}
		}()
	}

	for _, route := range routes {
		select {
		case work <- route:
		case <-ctx.Done():
			close(work)
			wg.Wait()
			return nil
		}
	}
	close(work)
	wg.Wait()
	close(results)

	var best *types.Opportunity
	for opp := range results {
		if opp == nil {
			continue
		}
		if best == nil || opp.NetProfit.GreaterThan(best.NetProfit) {
			best = opp
		}
	}
	return best
}

// evaluate runs one route through the cache-wrapped calculator.
func (e *Engine) evaluate(route *types.Route, amount decimal.Decimal, params profit.Params) *types.Opportunity {
	fp := types.FingerprintRoute(route, amount)
	computed := false
	opp, err := e.cache.GetOrCompute(fp, route, func() (*types.Opportunity, error) {
		computed = true
		started := time.Now()
		defer func() {
			e.metrics.EvaluationLatency.Observe(time.Since(started).Seconds())
		}()
		return e.calc.Evaluate(route, amount, e.provider, params), nil
	})
	if err != nil {
		// Collision or internal cache failure: count it and move on,
		// the batch never aborts for one route.
		e.logger.Warn("cache lookup failed", zap.Error(err), zap.Uint64("fingerprint", uint64(fp)))
		return nil
	}
	e.metrics.RoutesEvaluated.Inc()
	if computed {
		e.metrics.CacheMisses.Inc()
	} else {
		e.metrics.CacheHits.Inc()
	}
	return opp
}
