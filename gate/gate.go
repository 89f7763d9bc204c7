// Package gate is the execution-decision pipeline: the only component
// allowed to authorize continuation toward the external signing step.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/omniarb/arbengine/flashloan"
	"github.com/omniarb/arbengine/mev"
	"github.com/omniarb/arbengine/types"
)

// Stage identifies a pipeline stage. Stages run strictly in order and
// the pipeline is terminal on the first failure.
type Stage int

const (
	StageFeasibility Stage = iota
	StageProfitability
	StageScore
	StageSimulation
	StageMEVPackage
	StageApproved
)

func (s Stage) String() string {
	switch s {
	case StageFeasibility:
		return "FEASIBILITY"
	case StageProfitability:
		return "PROFITABILITY"
	case StageScore:
		return "SCORE"
	case StageSimulation:
		return "SIMULATION"
	case StageMEVPackage:
		return "MEV_PACKAGE"
	case StageApproved:
		return "APPROVED"
	default:
		return "UNKNOWN"
	}
}

// Decision is the gate's verdict for one opportunity. Rejections keep
// the stage reached and the reason code for telemetry; they are never
// silently dropped.
type Decision struct {
	Approved     bool
	StageReached Stage
	Reason       types.RejectReason
	Fingerprint  types.Fingerprint
	Commitment   *mev.Commitment
	Timestamp    time.Time
}

// SimulationOracle is the external eth_call-style collaborator invoked
// once per SIMULATION stage. The gate only consumes its boolean result
// and revert reason; timeouts belong to the collaborator.
type SimulationOracle interface {
	Simulate(ctx context.Context, route *types.Route, amount decimal.Decimal) (ok bool, reason string, err error)
}

// Committer is the external MEV commitment collaborator invoked once
// per MEV_PACKAGE stage.
type Committer interface {
	Commit(route *types.Route, amount decimal.Decimal, now time.Time) (*mev.Commitment, error)
}

// Gate runs the staged pipeline. Per-fingerprint locks serialize the
// SIMULATION and MEV_PACKAGE stages so the same opportunity is never
// submitted twice concurrently.
type Gate struct {
	providers      *flashloan.Registry
	scoreThreshold decimal.Decimal
	oracle         SimulationOracle
	committer      Committer
	clock          func() time.Time
	logger         *zap.Logger

	// observer, when set, records every stage entered. Used by tests
	// to verify short-circuiting.
	observer func(Stage)

	mu       sync.Mutex
	inflight map[types.Fingerprint]*fingerprintLock
}

// fingerprintLock is a refcounted per-fingerprint mutex. The last
// releaser drops it from the map so the set never grows unbounded over
// the process lifetime.
type fingerprintLock struct {
	mu   sync.Mutex
	refs int
}

// Config collects the gate's collaborators and policy knobs.
type Config struct {
	Providers      *flashloan.Registry
	ScoreThreshold decimal.Decimal
	Oracle         SimulationOracle
	Committer      Committer
	Clock          func() time.Time
	Logger         *zap.Logger
}

// New creates a gate. A nil clock defaults to time.Now.
func New(cfg Config) *Gate {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Gate{
		providers:      cfg.Providers,
		scoreThreshold: cfg.ScoreThreshold,
		oracle:         cfg.Oracle,
		committer:      cfg.Committer,
		clock:          clock,
		logger:         cfg.Logger,
		inflight:       make(map[types.Fingerprint]*fingerprintLock),
	}
}

// SetObserver installs a stage-visitation hook. Test support.
func (g *Gate) SetObserver(fn func(Stage)) { g.observer = fn }

func (g *Gate) enter(s Stage) {
	if g.observer != nil {
		g.observer(s)
	}
}

// Decide runs the opportunity through the ordered stages. Any internal
// error rejects at the stage it occurred; no error path ever approves.
func (g *Gate) Decide(ctx context.Context, opp *types.Opportunity) Decision {
	d := Decision{
		Fingerprint:  opp.Fingerprint,
		StageReached: StageFeasibility,
		Timestamp:    g.clock(),
	}

	g.enter(StageFeasibility)
	if reason := g.feasibility(opp); reason != types.ReasonNone {
		return g.rejected(d, reason)
	}

	d.StageReached = StageProfitability
	g.enter(StageProfitability)
	if opp.WillRevert || opp.NetProfit.Sign() <= 0 {
		reason := opp.Reason
		if reason == types.ReasonNone {
			reason = types.ReasonNegativeProfit
		}
		return g.rejected(d, reason)
	}

	d.StageReached = StageScore
	g.enter(StageScore)
	if opp.SuccessProb.LessThan(g.scoreThreshold) {
		return g.rejected(d, types.ReasonLowScore)
	}

	// From here the pipeline calls external collaborators; serialize
	// per fingerprint so one opportunity reaches SIMULATION at a time.
	g.acquire(opp.Fingerprint)
	defer g.release(opp.Fingerprint)

	d.StageReached = StageSimulation
	g.enter(StageSimulation)
	ok, simReason, err := g.oracle.Simulate(ctx, opp.Route, opp.LoanAmount)
	if err != nil {
		g.logger.Warn("simulation oracle error",
			zap.Error(err),
			zap.Uint64("fingerprint", uint64(opp.Fingerprint)))
		return g.rejected(d, types.ReasonSimulationError)
	}
	if !ok {
		g.logger.Debug("simulation rejected route",
			zap.String("revert_reason", simReason),
			zap.Uint64("fingerprint", uint64(opp.Fingerprint)))
		return g.rejected(d, types.ReasonSimulationFailed)
	}

	d.StageReached = StageMEVPackage
	g.enter(StageMEVPackage)
	cm, err := g.committer.Commit(opp.Route, opp.LoanAmount, g.clock())
	if err != nil {
		g.logger.Warn("route commitment failed",
			zap.Error(err),
			zap.Uint64("fingerprint", uint64(opp.Fingerprint)))
		return g.rejected(d, types.ReasonCommitmentFailed)
	}

	d.StageReached = StageApproved
	g.enter(StageApproved)
	d.Approved = true
	d.Commitment = cm
	return d
}

// feasibility validates provider policy and route well-formedness.
// Failing here guarantees no later stage runs.
func (g *Gate) feasibility(opp *types.Opportunity) types.RejectReason {
	if !g.providers.Allowed(opp.Provider) {
		return types.ReasonProviderDenied
	}
	if opp.LoanAmount.Sign() <= 0 {
		return types.ReasonBadLoanAmount
	}
	if opp.Route == nil || !opp.Route.WellFormed() {
		return types.ReasonMalformedRoute
	}
	return types.ReasonNone
}

func (g *Gate) rejected(d Decision, reason types.RejectReason) Decision {
	d.Approved = false
	d.Reason = reason
	return d
}

func (g *Gate) acquire(fp types.Fingerprint) {
	g.mu.Lock()
	lock, ok := g.inflight[fp]
	if !ok {
		lock = &fingerprintLock{}
		g.inflight[fp] = lock
	}
	lock.refs++
	g.mu.Unlock()
	lock.mu.Lock()
}

func (g *Gate) release(fp types.Fingerprint) {
	g.mu.Lock()
	lock := g.inflight[fp]
	lock.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(g.inflight, fp)
	}
	g.mu.Unlock()
}
