package nncache

import (
	"context"
	"sort"

	"github.com/corvidchess/corvid/network"
)

// slotKind distinguishes a CachingComputation slot that hit the cache from
// one that had to be submitted to the underlying Network.
type slotKind uint8

const (
	slotCached slotKind = iota
	slotPending
)

type slot struct {
	kind slotKind
	hash uint64

	// slotCached
	handle *Handle

	// slotPending
	netIndex      int
	relevantMoves []int
}

// Computation wraps an underlying network.Computation and deduplicates its
// inputs against a Cache. Each AddInput call records either a cache hit
// (pinned, never touches the network) or a pending slot that forwards to
// the wrapped computation; ComputeBlocking runs the network once for the
// pending slots and populates the cache with their results, restricted to
// each slot's relevant moves.
type Computation struct {
	cache   *Cache
	net     network.Computation
	slots   []slot
	pinned  bool
	computed bool
}

// NewComputation wraps net with cache. Cache hits resolved during AddInput
// are always pinned (by Cache.Lookup) until Release; pin additionally makes
// ComputeBlocking insert the results of misses pinned, which Release then
// unpins too. This mirrors the lifetime of a Search leaf, which must hold
// its evaluation until backup completes.
func NewComputation(cache *Cache, net network.Computation, pin bool) *Computation {
	return &Computation{cache: cache, net: net, pinned: pin}
}

// AddInput records one leaf to be evaluated. relevantMoves bounds which
// policy entries get cached on a miss - pass the legal move-index list
// for the leaf's position.
func (c *Computation) AddInput(hash uint64, planes network.Planes, relevantMoves []int) int {
	if h := c.cache.Lookup(hash); h != nil {
		i := len(c.slots)
		c.slots = append(c.slots, slot{kind: slotCached, hash: hash, handle: h})
		return i
	}
	netIdx := c.net.AddInput(planes)
	i := len(c.slots)
	c.slots = append(c.slots, slot{
		kind:          slotPending,
		hash:          hash,
		netIndex:      netIdx,
		relevantMoves: relevantMoves,
	})
	return i
}

// ComputeBlocking evaluates all pending inputs through the underlying
// Network exactly once, then inserts each pending slot's result into the
// cache.
func (c *Computation) ComputeBlocking(ctx context.Context) error {
	if c.computed {
		return nil
	}
	hasPending := false
	for _, s := range c.slots {
		if s.kind == slotPending {
			hasPending = true
			break
		}
	}
	if hasPending {
		if err := c.net.ComputeBlocking(ctx); err != nil {
			return err
		}
	}
	for i, s := range c.slots {
		if s.kind != slotPending {
			continue
		}
		sort.Ints(s.relevantMoves)
		policies := make([]PolicyEntry, 0, len(s.relevantMoves))
		for _, m := range s.relevantMoves {
			policies = append(policies, PolicyEntry{MoveID: m, Prob: c.net.GetP(s.netIndex, m)})
		}
		entry := Entry{Value: c.net.GetQ(s.netIndex), Policies: policies}
		handle := c.cache.Insert(s.hash, entry, c.pinned)
		if c.pinned && handle != nil {
			c.slots[i].handle = handle
		}
	}
	c.computed = true
	return nil
}

// Len returns the number of inputs added.
func (c *Computation) Len() int { return len(c.slots) }

// GetQ returns the value estimate for slot i, read uniformly from either
// the cache handle or the underlying network's result array.
func (c *Computation) GetQ(i int) float32 {
	s := c.slots[i]
	if s.kind == slotCached {
		return s.handle.Entry.Value
	}
	return c.net.GetQ(s.netIndex)
}

// GetP returns the policy probability for moveID at slot i. For cached
// slots this looks up the bounded relevant-moves subset stored at insert
// time; for pending slots it reads straight from the network's full policy
// array.
func (c *Computation) GetP(i int, moveID int) float32 {
	s := c.slots[i]
	if s.kind == slotCached {
		for _, p := range s.handle.Entry.Policies {
			if p.MoveID == moveID {
				return p.Prob
			}
		}
		return 0
	}
	return c.net.GetP(s.netIndex, moveID)
}

// Release unpins every cached handle this Computation holds: every cache
// hit, plus every miss inserted pinned. Callers must call Release once the
// results are no longer needed (e.g. after backup completes), whatever pin
// was.
func (c *Computation) Release() {
	for _, s := range c.slots {
		if s.handle != nil {
			c.cache.Unpin(s.hash)
		}
	}
}
