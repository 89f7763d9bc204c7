package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omniarb/arbengine/flashloan"
	"github.com/omniarb/arbengine/mev"
	"github.com/omniarb/arbengine/types"
)

var (
	usdc = common.HexToAddress("0x0000000000000000000000000000000000000001")
	weth = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

type stubOracle struct {
	ok     bool
	reason string
	err    error
	calls  int
}

func (s *stubOracle) Simulate(ctx context.Context, route *types.Route, amount decimal.Decimal) (bool, string, error) {
	s.calls++
	return s.ok, s.reason, s.err
}

func wellFormedRoute() *types.Route {
	return &types.Route{Hops: []types.Hop{
		{Pool: &types.Pool{Address: common.HexToAddress("0xaa")}, TokenIn: usdc, TokenOut: weth},
		{Pool: &types.Pool{Address: common.HexToAddress("0xbb")}, TokenIn: weth, TokenOut: usdc},
	}}
}

func viableOpportunity() *types.Opportunity {
	route := wellFormedRoute()
	amount := decimal.NewFromInt(10000)
	return &types.Opportunity{
		Route:          route,
		Provider:       "balancer",
		LoanAmount:     amount,
		GrossOutput:    decimal.NewFromInt(10300),
		NetProfit:      decimal.NewFromInt(300),
		MaxPriceImpact: decimal.RequireFromString("0.012"),
		SuccessProb:    decimal.RequireFromString("0.9"),
		Fingerprint:    types.FingerprintRoute(route, amount),
	}
}

func testGate(t *testing.T, oracle SimulationOracle) (*Gate, *[]Stage) {
	t.Helper()
	registry, err := flashloan.NewRegistry(flashloan.FeeTable{
		"balancer": decimal.Zero,
		"aave":     decimal.RequireFromString("0.0009"),
	}, []string{"balancer"})
	require.NoError(t, err)

	g := New(Config{
		Providers:      registry,
		ScoreThreshold: decimal.RequireFromString("0.4"),
		Oracle:         oracle,
		Committer:      mev.NewCommitter([]byte("gate-test")),
		Logger:         zap.NewNop(),
	})

	visited := &[]Stage{}
	g.SetObserver(func(s Stage) { *visited = append(*visited, s) })
	return g, visited
}

func TestApprovedPathVisitsAllStages(t *testing.T) {
	g, visited := testGate(t, &stubOracle{ok: true})

	d := g.Decide(context.Background(), viableOpportunity())
	require.True(t, d.Approved)
	assert.Equal(t, StageApproved, d.StageReached)
	assert.Equal(t, types.ReasonNone, d.Reason)
	require.NotNil(t, d.Commitment)
	assert.Equal(t, d.Fingerprint, d.Commitment.Fingerprint)

	assert.Equal(t, []Stage{
		StageFeasibility, StageProfitability, StageScore,
		StageSimulation, StageMEVPackage, StageApproved,
	}, *visited)
}

func TestFeasibilityRejectsDisallowedProvider(t *testing.T) {
	oracle := &stubOracle{ok: true}
	g, visited := testGate(t, oracle)

	opp := viableOpportunity()
	opp.Provider = "aave" // known, not allowed
	d := g.Decide(context.Background(), opp)

	assert.False(t, d.Approved)
	assert.Equal(t, StageFeasibility, d.StageReached)
	assert.Equal(t, types.ReasonProviderDenied, d.Reason)
	assert.Equal(t, []Stage{StageFeasibility}, *visited, "no later stage may run")
	assert.Zero(t, oracle.calls)
}

func TestFeasibilityRejectsBadLoanAndRoute(t *testing.T) {
	g, _ := testGate(t, &stubOracle{ok: true})

	opp := viableOpportunity()
	opp.LoanAmount = decimal.Zero
	d := g.Decide(context.Background(), opp)
	assert.Equal(t, types.ReasonBadLoanAmount, d.Reason)

	opp = viableOpportunity()
	opp.Route.Hops[1].Pool = opp.Route.Hops[0].Pool // repeated pool
	d = g.Decide(context.Background(), opp)
	assert.Equal(t, types.ReasonMalformedRoute, d.Reason)

	opp = viableOpportunity()
	opp.Route.Hops = opp.Route.Hops[:1] // not cyclic, too short
	d = g.Decide(context.Background(), opp)
	assert.Equal(t, types.ReasonMalformedRoute, d.Reason)
}

func TestProfitabilityShortCircuitsBeforeSimulation(t *testing.T) {
	oracle := &stubOracle{ok: true}
	g, visited := testGate(t, oracle)

	opp := viableOpportunity()
	opp.WillRevert = true
	opp.Reason = types.ReasonInsufficientRepay
	d := g.Decide(context.Background(), opp)

	assert.False(t, d.Approved)
	assert.Equal(t, StageProfitability, d.StageReached)
	assert.Equal(t, types.ReasonInsufficientRepay, d.Reason)
	assert.Equal(t, []Stage{StageFeasibility, StageProfitability}, *visited)
	assert.Zero(t, oracle.calls, "a route failing PROFITABILITY never reaches SIMULATION")
}

func TestScoreThreshold(t *testing.T) {
	g, visited := testGate(t, &stubOracle{ok: true})

	opp := viableOpportunity()
	opp.SuccessProb = decimal.RequireFromString("0.39")
	d := g.Decide(context.Background(), opp)

	assert.False(t, d.Approved)
	assert.Equal(t, StageScore, d.StageReached)
	assert.Equal(t, types.ReasonLowScore, d.Reason)
	assert.NotContains(t, *visited, StageSimulation)
}

func TestSimulationFailureRejects(t *testing.T) {
	g, _ := testGate(t, &stubOracle{ok: false, reason: "execution reverted"})

	d := g.Decide(context.Background(), viableOpportunity())
	assert.False(t, d.Approved)
	assert.Equal(t, StageSimulation, d.StageReached)
	assert.Equal(t, types.ReasonSimulationFailed, d.Reason)
}

func TestSimulationErrorNeverApproves(t *testing.T) {
	g, visited := testGate(t, &stubOracle{err: errors.New("rpc timeout")})

	d := g.Decide(context.Background(), viableOpportunity())
	assert.False(t, d.Approved)
	assert.Equal(t, StageSimulation, d.StageReached)
	assert.Equal(t, types.ReasonSimulationError, d.Reason)
	assert.NotContains(t, *visited, StageMEVPackage)
}

// blockingOracle parks the first caller until released, recording
// simulation entry times.
type blockingOracle struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingOracle) Simulate(ctx context.Context, route *types.Route, amount decimal.Decimal) (bool, string, error) {
	b.entered <- struct{}{}
	<-b.release
	return true, "", nil
}

func TestSameFingerprintSerializedThroughSimulation(t *testing.T) {
	oracle := &blockingOracle{
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	g, _ := testGate(t, oracle)

	opp := viableOpportunity()
	done := make(chan Decision, 2)
	go func() { done <- g.Decide(context.Background(), opp) }()
	go func() { done <- g.Decide(context.Background(), opp) }()

	// Exactly one evaluation may sit in SIMULATION at a time.
	<-oracle.entered
	select {
	case <-oracle.entered:
		t.Fatal("second evaluation entered SIMULATION while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(oracle.release)
	<-oracle.entered // second one proceeds after the first completes
	first := <-done
	second := <-done
	assert.True(t, first.Approved)
	assert.True(t, second.Approved)
}

func TestFingerprintLocksPruned(t *testing.T) {
	g, _ := testGate(t, &stubOracle{ok: true})

	first := viableOpportunity()
	second := viableOpportunity()
	second.LoanAmount = decimal.NewFromInt(500000)
	second.Fingerprint = types.FingerprintRoute(second.Route, second.LoanAmount)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		opp := first
		if i%2 == 1 {
			opp = second
		}
		wg.Add(1)
		go func(o *types.Opportunity) {
			defer wg.Done()
			g.Decide(context.Background(), o)
		}(opp)
	}
	wg.Wait()

	g.mu.Lock()
	resident := len(g.inflight)
	g.mu.Unlock()
	assert.Zero(t, resident, "per-fingerprint locks must not outlive their evaluations")
}
