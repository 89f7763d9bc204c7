package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omniarb/arbengine/cache"
	"github.com/omniarb/arbengine/config"
	"github.com/omniarb/arbengine/flashloan"
	"github.com/omniarb/arbengine/gas"
	"github.com/omniarb/arbengine/gate"
	"github.com/omniarb/arbengine/metrics"
	"github.com/omniarb/arbengine/mev"
	"github.com/omniarb/arbengine/optimizer"
	"github.com/omniarb/arbengine/profit"
	"github.com/omniarb/arbengine/types"
)

var (
	usdc = common.HexToAddress("0x0000000000000000000000000000000000000001")
	weth = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

// stubSource returns a fixed pool set and market params.
type stubSource struct {
	pools  []*types.Pool
	params profit.Params
	err    error
}

func (s *stubSource) GetSnapshot(ctx context.Context) ([]*types.Pool, profit.Params, error) {
	return s.pools, s.params, s.err
}

// captureSink records every delivered decision.
type captureSink struct {
	decisions     []gate.Decision
	opportunities []*types.Opportunity
}

func (s *captureSink) Deliver(ctx context.Context, d gate.Decision, opp *types.Opportunity) {
	s.decisions = append(s.decisions, d)
	s.opportunities = append(s.opportunities, opp)
}

// spreadPools is the two-pool USDC/WETH fixture with a ~5% cross-pool
// price gap in WETH.
func spreadPools() []*types.Pool {
	return []*types.Pool{
		{
			DEX:       "quickswap",
			Address:   common.HexToAddress("0xaa"),
			Token0:    usdc,
			Token1:    weth,
			Reserve0:  decimal.RequireFromString("1000000"),
			Reserve1:  decimal.RequireFromString("500000"),
			Fee:       decimal.RequireFromString("0.003"),
			Type:      types.ConstantProduct,
			UpdatedAt: time.Now(),
		},
		{
			DEX:       "sushiswap",
			Address:   common.HexToAddress("0xbb"),
			Token0:    weth,
			Token1:    usdc,
			Reserve0:  decimal.RequireFromString("480000"),
			Reserve1:  decimal.RequireFromString("1010000"),
			Fee:       decimal.RequireFromString("0.0004"),
			Type:      types.ConstantProduct,
			UpdatedAt: time.Now(),
		},
	}
}

func testParams() profit.Params {
	return profit.Params{
		GasPriceGwei:   decimal.NewFromInt(30),
		NativePriceUSD: decimal.RequireFromString("0.5"),
	}
}

func testEngine(t *testing.T, cfg *config.Config, source SnapshotSource, sink DecisionSink) *Engine {
	t.Helper()
	log := zap.NewNop()

	registry, err := flashloan.NewRegistry(flashloan.FeeTable{
		"balancer": decimal.Zero,
		"aave":     decimal.RequireFromString("0.0009"),
	}, nil)
	require.NoError(t, err)

	calc := profit.NewCalculator(registry, gas.NewEstimator(), log)
	opt := optimizer.New(calc, cfg.AmountProbes, cfg.PoolFanOut, log)

	memo, err := cache.New(cfg.CacheSize, cfg.CacheTTL, nil)
	require.NoError(t, err)

	g := gate.New(gate.Config{
		Providers:      registry,
		ScoreThreshold: cfg.Threshold(),
		Oracle:         NewReplayOracle(calc, cfg.ImpactLimit()),
		Committer:      mev.NewCommitter([]byte("engine-test")),
		Logger:         log,
	})

	m := metrics.NewEngineMetrics(prometheus.NewRegistry(), "test")
	return New(cfg, source, sink, calc, opt, memo, g, m, registry.Cheapest(), log)
}

func TestTickApprovesCrossPoolSpread(t *testing.T) {
	cfg := config.Default()
	cfg.StartTokens = []string{usdc.Hex()}

	sink := &captureSink{}
	eng := testEngine(t, cfg, &stubSource{pools: spreadPools(), params: testParams()}, sink)

	require.NoError(t, eng.Tick(context.Background()))
	require.Len(t, sink.decisions, 1)

	d := sink.decisions[0]
	opp := sink.opportunities[0]
	require.True(t, d.Approved, "stage %s reason %s", d.StageReached, d.Reason)
	require.NotNil(t, d.Commitment)

	// The optimizer must size the loan below the unprofitable midpoint.
	assert.True(t, opp.NetProfit.Sign() > 0, "net %s", opp.NetProfit)
	assert.True(t, opp.LoanAmount.LessThan(decimal.NewFromInt(50000)), "loan %s", opp.LoanAmount)
	assert.Equal(t, "balancer", opp.Provider)
	assert.Equal(t, opp.Fingerprint, d.Fingerprint)
}

func TestTickRejectionIsStillDelivered(t *testing.T) {
	cfg := config.Default()
	cfg.StartTokens = []string{usdc.Hex()}
	cfg.ScoreThreshold = "0.99" // nothing realistic clears this

	sink := &captureSink{}
	eng := testEngine(t, cfg, &stubSource{pools: spreadPools(), params: testParams()}, sink)

	require.NoError(t, eng.Tick(context.Background()))
	require.Len(t, sink.decisions, 1)

	d := sink.decisions[0]
	assert.False(t, d.Approved)
	assert.Equal(t, gate.StageScore, d.StageReached)
	assert.Equal(t, types.ReasonLowScore, d.Reason)
}

func TestTickNoRoutesNoDelivery(t *testing.T) {
	cfg := config.Default()
	cfg.StartTokens = []string{usdc.Hex()}

	sink := &captureSink{}
	// One pool cannot form a cycle without repeating itself.
	eng := testEngine(t, cfg, &stubSource{pools: spreadPools()[:1], params: testParams()}, sink)

	require.NoError(t, eng.Tick(context.Background()))
	assert.Empty(t, sink.decisions)
}

func TestTickPropagatesFeedError(t *testing.T) {
	cfg := config.Default()
	cfg.StartTokens = []string{usdc.Hex()}

	feedErr := errors.New("feed unavailable")
	eng := testEngine(t, cfg, &stubSource{err: feedErr}, &captureSink{})

	err := eng.Tick(context.Background())
	assert.ErrorIs(t, err, feedErr)
}

func TestFileSourceParsesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	payload := `{
		"gas_price_gwei": "30",
		"native_price_usd": "0.5",
		"pools": [
			{
				"dex": "quickswap",
				"address": "0xaa",
				"token0": "0x01",
				"token1": "0x02",
				"reserve0": "1000000",
				"reserve1": "500000",
				"fee": "0.003",
				"type": "constant_product",
				"updated_at": "2026-08-28T12:00:00Z"
			},
			{
				"dex": "curve",
				"address": "0xcc",
				"token0": "0x01",
				"token1": "0x03",
				"reserve0": "2000000",
				"reserve1": "2000000",
				"fee": "0.0001",
				"type": "stable_swap",
				"amp_factor": "100",
				"updated_at": "2026-08-28T12:00:00Z"
			}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	pools, params, err := NewFileSource(path).GetSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 2)
	assert.True(t, params.GasPriceGwei.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, types.ConstantProduct, pools[0].Type)
	assert.Equal(t, types.StableSwap, pools[1].Type)
	assert.True(t, pools[1].AmpFactor.Equal(decimal.NewFromInt(100)))
}

func TestFileSourceRejectsBadPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	payload := `{
		"gas_price_gwei": "30",
		"native_price_usd": "0.5",
		"pools": [
			{
				"dex": "curve",
				"address": "0xcc",
				"token0": "0x01",
				"token1": "0x03",
				"reserve0": "2000000",
				"reserve1": "2000000",
				"fee": "0.0001",
				"type": "stable_swap",
				"updated_at": "2026-08-28T12:00:00Z"
			}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	_, _, err := NewFileSource(path).GetSnapshot(context.Background())
	assert.ErrorContains(t, err, "amp_factor")
}
