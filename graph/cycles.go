package graph

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/omniarb/arbengine/types"
)

// liquidityScore is the cheap static heuristic used to order candidate
// routes: the geometric bulk of the pool, reserve0*reserve1. No swap
// math is run here.
func liquidityScore(p *types.Pool) decimal.Decimal {
	return p.Reserve0.Mul(p.Reserve1)
}

func routeScore(r *types.Route) decimal.Decimal {
	score := liquidityScore(r.Hops[0].Pool)
	for _, h := range r.Hops[1:] {
		if s := liquidityScore(h.Pool); s.LessThan(score) {
			score = s
		}
	}
	return score
}

// FindCycles searches the snapshot for cyclic routes that leave and
// re-enter startToken within [2, maxHops] hops. Branches through a pool
// already used on the current path are pruned, so no route ever repeats
// a pool instance. The result contains no two routes with the same
// ordered pool sequence and is deterministically ordered: descending
// min-liquidity score, fingerprint tiebreak.
func FindCycles(s *Snapshot, startToken common.Address, maxHops int) []*types.Route {
	if maxHops > types.MaxRouteHops {
		maxHops = types.MaxRouteHops
	}
	if maxHops < types.MinRouteHops {
		return nil
	}

	var (
		routes []*types.Route
		path   []types.Hop
		used   = make(map[common.Address]struct{}, maxHops)
	)

	var dfs func(current common.Address)
	dfs = func(current common.Address) {
		for _, pool := range s.PoolsWith(current) {
			if _, taken := used[pool.Address]; taken {
				continue
			}
			next := pool.Other(current)
			hop := types.Hop{Pool: pool, TokenIn: current, TokenOut: next}

			if next == startToken && len(path)+1 >= types.MinRouteHops {
				cycle := make([]types.Hop, len(path)+1)
				copy(cycle, path)
				cycle[len(path)] = hop
				routes = append(routes, &types.Route{Hops: cycle})
			}
			if len(path)+1 >= maxHops || next == startToken {
				continue
			}

			used[pool.Address] = struct{}{}
			path = append(path, hop)
			dfs(next)
			path = path[:len(path)-1]
			delete(used, pool.Address)
		}
	}
	dfs(startToken)

	sort.Slice(routes, func(i, j int) bool {
		si, sj := routeScore(routes[i]), routeScore(routes[j])
		if !si.Equal(sj) {
			return si.GreaterThan(sj)
		}
		return types.FingerprintRoute(routes[i], decimal.Zero) <
			types.FingerprintRoute(routes[j], decimal.Zero)
	})
	return routes
}

// RouteSeq is a restartable cursor over a discovered route set.
type RouteSeq struct {
	routes []*types.Route
	pos    int
}

// NewRouteSeq wraps routes in a cursor. The underlying slice is not
// copied; FindCycles already returns a fresh one per call.
func NewRouteSeq(routes []*types.Route) *RouteSeq {
	return &RouteSeq{routes: routes}
}

// Next returns the next route, or false once the sequence is drained.
func (q *RouteSeq) Next() (*types.Route, bool) {
	if q.pos >= len(q.routes) {
		return nil, false
	}
	r := q.routes[q.pos]
	q.pos++
	return r, true
}

// Reset rewinds the cursor to the first route.
func (q *RouteSeq) Reset() { q.pos = 0 }

// Len returns the total number of routes in the sequence.
func (q *RouteSeq) Len() int { return len(q.routes) }
