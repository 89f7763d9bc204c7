package types

import (
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PoolType tags the AMM curve a pool prices swaps with.
type PoolType int

const (
	ConstantProduct PoolType = iota
	StableSwap
)

func (t PoolType) String() string {
	switch t {
	case ConstantProduct:
		return "constant_product"
	case StableSwap:
		return "stable_swap"
	default:
		return "unknown"
	}
}

// Token is immutable reference data for an ERC-20 asset.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Pool is one DEX liquidity pool as captured by the snapshot feed.
// It is read-only within an evaluation pass; a refresh replaces the
// whole record, it never mutates one in place.
type Pool struct {
	DEX       string
	Address   common.Address
	Token0    common.Address
	Token1    common.Address
	Reserve0  decimal.Decimal
	Reserve1  decimal.Decimal
	Fee       decimal.Decimal // fraction in [0,1)
	Type      PoolType
	AmpFactor decimal.Decimal // StableSwap only
	UpdatedAt time.Time
}

// Degenerate reports whether either reserve is non-positive. Degenerate
// pools are excluded from graph construction and swap math.
func (p *Pool) Degenerate() bool {
	return p.Reserve0.Sign() <= 0 || p.Reserve1.Sign() <= 0
}

// HasToken reports whether token is one side of the pair.
func (p *Pool) HasToken(token common.Address) bool {
	return p.Token0 == token || p.Token1 == token
}

// Other returns the opposite side of the pair from token.
func (p *Pool) Other(token common.Address) common.Address {
	if token == p.Token0 {
		return p.Token1
	}
	return p.Token0
}

// ReservesFor orients the pair as (reserveIn, reserveOut) for a swap
// that sends tokenIn into the pool.
func (p *Pool) ReservesFor(tokenIn common.Address) (decimal.Decimal, decimal.Decimal) {
	if tokenIn == p.Token0 {
		return p.Reserve0, p.Reserve1
	}
	return p.Reserve1, p.Reserve0
}

// Hop is one swap within a route.
type Hop struct {
	Pool     *Pool
	TokenIn  common.Address
	TokenOut common.Address
}

// Route is an ordered sequence of hops that starts and ends on the same
// token. Valid routes have 2 to 4 hops and never reuse a pool.
type Route struct {
	Hops []Hop
}

const (
	MinRouteHops = 2
	MaxRouteHops = 4
)

// StartToken returns the token the route borrows and repays.
func (r *Route) StartToken() common.Address {
	if len(r.Hops) == 0 {
		return common.Address{}
	}
	return r.Hops[0].TokenIn
}

// Cyclic reports whether the route returns to its start token.
func (r *Route) Cyclic() bool {
	n := len(r.Hops)
	return n > 0 && r.Hops[n-1].TokenOut == r.Hops[0].TokenIn
}

// HasRepeatedPool reports whether any pool instance appears twice.
func (r *Route) HasRepeatedPool() bool {
	seen := make(map[common.Address]struct{}, len(r.Hops))
	for _, h := range r.Hops {
		if _, ok := seen[h.Pool.Address]; ok {
			return true
		}
		seen[h.Pool.Address] = struct{}{}
	}
	return false
}

// WellFormed checks the structural route invariants: hop count in
// range, cyclic, contiguous hops, no repeated pool.
func (r *Route) WellFormed() bool {
	if len(r.Hops) < MinRouteHops || len(r.Hops) > MaxRouteHops {
		return false
	}
	if !r.Cyclic() || r.HasRepeatedPool() {
		return false
	}
	for i := 1; i < len(r.Hops); i++ {
		if r.Hops[i].TokenIn != r.Hops[i-1].TokenOut {
			return false
		}
	}
	return true
}

// PoolAddresses returns the ordered pool sequence, the identity of the
// route for fingerprinting and collision checks.
func (r *Route) PoolAddresses() []common.Address {
	addrs := make([]common.Address, len(r.Hops))
	for i, h := range r.Hops {
		addrs[i] = h.Pool.Address
	}
	return addrs
}

// Fingerprint is the deterministic cache/dedup key for a route
// evaluated at an amount bucket.
type Fingerprint uint64

// FingerprintRoute hashes the ordered pool-address sequence together
// with an order-of-magnitude bucket of the loan amount. Routes with
// distinct pool sequences must not share a fingerprint; the cache layer
// verifies the sequence on every hit to catch the unlikely collision.
func FingerprintRoute(r *Route, loanAmount decimal.Decimal) Fingerprint {
	h := xxhash.New()
	for _, hop := range r.Hops {
		_, _ = h.Write(hop.Pool.Address.Bytes())
	}
	var bucket [8]byte
	binary.BigEndian.PutUint64(bucket[:], uint64(amountBucket(loanAmount)))
	_, _ = h.Write(bucket[:])
	return Fingerprint(h.Sum64())
}

// amountBucket collapses a loan amount to its decimal order of
// magnitude so near-identical amounts share a memo entry.
func amountBucket(amount decimal.Decimal) int {
	if amount.Sign() <= 0 {
		return 0
	}
	return len(amount.Truncate(0).String())
}

// RejectReason codes carried on rejected opportunities and decisions.
type RejectReason string

const (
	ReasonNone              RejectReason = ""
	ReasonInvalidPoolState  RejectReason = "invalid_pool_state"
	ReasonConvergence       RejectReason = "convergence_failure"
	ReasonNumericOverflow   RejectReason = "numeric_overflow"
	ReasonInsufficientRepay RejectReason = "insufficient_output_to_repay"
	ReasonNegativeProfit    RejectReason = "negative_profit_after_gas"
	ReasonProviderDenied    RejectReason = "provider_not_allowed"
	ReasonBadLoanAmount     RejectReason = "non_positive_loan_amount"
	ReasonMalformedRoute    RejectReason = "malformed_route"
	ReasonLowScore          RejectReason = "score_below_threshold"
	ReasonSimulationFailed  RejectReason = "simulation_failed"
	ReasonSimulationError   RejectReason = "simulation_error"
	ReasonCommitmentFailed  RejectReason = "commitment_failed"
)

// Opportunity is the evaluated result for one route at one loan amount.
// Opportunities are ephemeral: recomputed each tick and replaced,
// never mutated in place.
type Opportunity struct {
	Route       *Route
	Provider    string
	LoanAmount  decimal.Decimal
	GrossOutput decimal.Decimal
	FlashFee    decimal.Decimal
	GasCostUSD  decimal.Decimal
	NetProfit   decimal.Decimal
	// MaxPriceImpact is the largest single-hop impact seen on the walk.
	MaxPriceImpact decimal.Decimal
	WillRevert     bool
	SuccessProb    decimal.Decimal
	Reason         RejectReason
	Fingerprint    Fingerprint
}

// Profitable reports whether the opportunity survived evaluation with a
// positive net result.
func (o *Opportunity) Profitable() bool {
	return o != nil && !o.WillRevert && o.NetProfit.Sign() > 0
}
