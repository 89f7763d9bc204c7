// Package graph builds the token/pool adjacency structure for one scan
// tick and searches it for cyclic candidate routes.
package graph

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/omniarb/arbengine/types"
)

type pairKey struct {
	lo, hi common.Address
}

func newPairKey(a, b common.Address) pairKey {
	if b.Cmp(a) < 0 {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// Snapshot is the immutable view of the pool universe for one tick.
// It is built once from the feed and shared read-only by all workers;
// evaluation never observes a reserve changing mid-route.
type Snapshot struct {
	takenAt time.Time
	pools   []*types.Pool
	byToken map[common.Address][]*types.Pool
	byPair  map[pairKey][]*types.Pool
}

// BuildSnapshot filters the feed and indexes the surviving pools.
// Degenerate pools (non-positive reserve) and pools older than
// maxStaleness are excluded here so the search never visits them.
func BuildSnapshot(feed []*types.Pool, now time.Time, maxStaleness time.Duration, logger *zap.Logger) *Snapshot {
	s := &Snapshot{
		takenAt: now,
		byToken: make(map[common.Address][]*types.Pool),
		byPair:  make(map[pairKey][]*types.Pool),
	}

	var stale, degenerate int
	for _, p := range feed {
		if maxStaleness > 0 && now.Sub(p.UpdatedAt) > maxStaleness {
			stale++
			logger.Debug("excluding stale pool",
				zap.String("pool", p.Address.Hex()),
				zap.Time("updated_at", p.UpdatedAt))
			continue
		}
		if p.Degenerate() {
			degenerate++
			logger.Debug("excluding degenerate pool",
				zap.String("pool", p.Address.Hex()))
			continue
		}
		s.pools = append(s.pools, p)
		s.byToken[p.Token0] = append(s.byToken[p.Token0], p)
		s.byToken[p.Token1] = append(s.byToken[p.Token1], p)
		key := newPairKey(p.Token0, p.Token1)
		s.byPair[key] = append(s.byPair[key], p)
	}

	// Adjacency lists are sorted by descending liquidity with address
	// tiebreak so the DFS expansion order, and therefore the produced
	// route order, is reproducible across runs on identical input.
	for _, pools := range s.byToken {
		sortPools(pools)
	}
	for _, pools := range s.byPair {
		sortPools(pools)
	}

	if stale > 0 || degenerate > 0 {
		logger.Debug("snapshot built with exclusions",
			zap.Int("live", len(s.pools)),
			zap.Int("stale", stale),
			zap.Int("degenerate", degenerate))
	}
	return s
}

func sortPools(pools []*types.Pool) {
	sort.Slice(pools, func(i, j int) bool {
		li := liquidityScore(pools[i])
		lj := liquidityScore(pools[j])
		if !li.Equal(lj) {
			return li.GreaterThan(lj)
		}
		return pools[i].Address.Cmp(pools[j].Address) < 0
	})
}

// TakenAt returns the tick timestamp the snapshot was built for.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// Size returns the number of live pools.
func (s *Snapshot) Size() int { return len(s.pools) }

// PoolsWith returns the pools that trade token, best liquidity first.
func (s *Snapshot) PoolsWith(token common.Address) []*types.Pool {
	return s.byToken[token]
}

// Alternates returns pools serving the same pair as hop's pool,
// excluding the pool itself. Used by the optimizer for substitution.
func (s *Snapshot) Alternates(hop types.Hop) []*types.Pool {
	var alts []*types.Pool
	for _, p := range s.byPair[newPairKey(hop.TokenIn, hop.TokenOut)] {
		if p.Address != hop.Pool.Address {
			alts = append(alts, p)
		}
	}
	return alts
}
