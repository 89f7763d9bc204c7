// Package cache memoizes per-route evaluation results for one TTL
// window, guaranteeing at most one recomputation per fingerprint even
// under concurrent callers.
package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"

	"github.com/omniarb/arbengine/types"
)

// ErrFingerprintCollision means two distinct pool sequences hashed to
// the same fingerprint. The entry is dropped and the lookup hard-fails
// rather than returning the wrong memo.
var ErrFingerprintCollision = errors.New("cache: fingerprint collision suspected")

// Clock supplies the current time. Injected so tests drive TTL expiry
// without sleeping.
type Clock func() time.Time

// ComputeFn produces the value on a miss.
type ComputeFn func() (*types.Opportunity, error)

// entry is one in-flight or completed computation. Waiters block on
// ready; the creating goroutine closes it exactly once.
type entry struct {
	ready    chan struct{}
	value    *types.Opportunity
	err      error
	storedAt time.Time
	poolSeq  []common.Address
}

// Cache is the TTL memo. Mutual exclusion is keyed by fingerprint:
// the global mutex only guards map bookkeeping, never a computation,
// so unrelated routes do not block each other.
type Cache struct {
	mu      sync.Mutex
	entries *lru.Cache // Fingerprint -> *entry
	ttl     time.Duration
	clock   Clock
}

// New creates a cache holding up to size entries with the given TTL.
// A nil clock defaults to time.Now.
func New(size int, ttl time.Duration, clock Clock) (*Cache, error) {
	if clock == nil {
		clock = time.Now
	}
	backing, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: backing, ttl: ttl, clock: clock}, nil
}

// GetOrCompute returns the memoized opportunity for fp, computing it
// via compute on a miss. Concurrent callers for the same fingerprint
// share one computation; callers for other fingerprints proceed
// independently. Expiry is lazy: entries older than the TTL are
// recomputed on access. The route's pool sequence is checked against
// the stored one on every hit.
func (c *Cache) GetOrCompute(fp types.Fingerprint, route *types.Route, compute ComputeFn) (*types.Opportunity, error) {
	poolSeq := route.PoolAddresses()

	c.mu.Lock()
	if v, ok := c.entries.Get(fp); ok {
		e := v.(*entry)
		if c.clock().Sub(e.storedAt) <= c.ttl {
			c.mu.Unlock()
			<-e.ready
			if e.err != nil {
				return nil, e.err
			}
			if !sameSequence(e.poolSeq, poolSeq) {
				c.mu.Lock()
				c.entries.Remove(fp)
				c.mu.Unlock()
				return nil, ErrFingerprintCollision
			}
			return e.value, nil
		}
		// Expired: fall through and recompute under a fresh entry.
		c.entries.Remove(fp)
	}

	e := &entry{
		ready:    make(chan struct{}),
		storedAt: c.clock(),
		poolSeq:  poolSeq,
	}
	c.entries.Add(fp, e)
	c.mu.Unlock()

	return c.fill(fp, e, compute)
}

// fill runs compute and settles the entry. The bookkeeping is deferred
// so a panicking compute still closes ready and drops the entry;
// waiters see an error instead of blocking forever on a poisoned key.
func (c *Cache) fill(fp types.Fingerprint, e *entry, compute ComputeFn) (value *types.Opportunity, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.value, e.err = nil, fmt.Errorf("cache: computation panicked: %v", r)
		}
		close(e.ready)
		if e.err != nil {
			// Failed computations are not memoized.
			c.mu.Lock()
			if v, ok := c.entries.Get(fp); ok && v.(*entry) == e {
				c.entries.Remove(fp)
			}
			c.mu.Unlock()
		}
		value, err = e.value, e.err
	}()

	e.value, e.err = compute()
	return e.value, e.err
}

// Len returns the number of resident entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func sameSequence(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
