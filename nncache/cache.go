// Package nncache implements a thread-safe, bounded LRU cache of network
// evaluations keyed by position hash, and the CachingComputation that sits
// between Search and Network, deduplicating leaf evaluations against it.
package nncache

import (
	"container/list"
	"sync"
)

// PolicyEntry is one (move, probability) pair retained from a network
// evaluation - only legal moves are kept, bounding entry size.
type PolicyEntry struct {
	MoveID int
	Prob   float32
}

// Entry is one cached evaluation: a value estimate plus the policy
// restricted to the moves that were legal when it was computed.
type Entry struct {
	Value    float32
	Policies []PolicyEntry
}

// Handle is a pinned reference to a cached Entry. Callers must Unpin
// exactly once per Handle obtained from Lookup.
type Handle struct {
	hash  uint64
	Entry *Entry
}

type pinnedEntry struct {
	entry *Entry
	pins  int
}

// Cache is a bounded, thread-safe LRU map from 64-bit position hash to
// Entry, with pin/unpin semantics for entries that outlive their position
// in the LRU list. A single mutex guards all state; every operation below
// is O(1) expected, with small critical sections and no lock held across
// I/O.
type Cache struct {
	mu       sync.Mutex
	capacity int

	ll    *list.List // MRU at front, LRU at back
	items map[uint64]*list.Element
	pins  map[uint64]int // pin counts for entries still resident in ll

	// evicted holds entries that fell off ll while still pinned. They
	// stay addressable by hash for Unpin until their pin count returns
	// to zero.
	evicted map[uint64]*pinnedEntry
}

type cacheNode struct {
	hash  uint64
	entry *Entry
}

// New returns a Cache with the given capacity. Capacity 0 degrades to a
// pure passthrough: every Lookup misses and Insert is a no-op.
func New(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[uint64]*list.Element),
		pins:     make(map[uint64]int),
		evicted:  make(map[uint64]*pinnedEntry),
	}
}

// SetCapacity rehashes the cache to newCap, evicting from the LRU tail
// until the resident size is at most newCap.
func (c *Cache) SetCapacity(newCap int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = newCap
	c.evictLocked()
}

// Insert adds entry at the MRU head, evicting the LRU tail if the cache is
// over capacity. Re-inserting an already-present key supersedes the old
// entry; if the old entry is still pinned it is moved to the evicted-but-
// pinned list rather than destroyed. If pinned is true, the returned Handle
// must eventually be Unpinned by the caller; otherwise Insert adds the
// entry unpinned.
func (c *Cache) Insert(hash uint64, entry Entry, pinned bool) *Handle {
	if c.capacity == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.items[hash]; ok {
		c.retireLocked(hash, old)
	}

	e := entry
	el := c.ll.PushFront(&cacheNode{hash: hash, entry: &e})
	c.items[hash] = el
	if pinned {
		c.pins[hash] = 1
	}
	c.evictLocked()

	if !pinned {
		return nil
	}
	return &Handle{hash: hash, Entry: &e}
}

// Lookup returns a pinned Handle if hash is resident (or evicted-but-
// pinned), or nil on a miss. Lookup deliberately does not move the entry to
// MRU - LRU order reflects population order, not lookup order, so readers
// never need the list-mutating half of the lock.
func (c *Cache) Lookup(hash uint64) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[hash]; ok {
		c.pins[hash]++
		node := el.Value.(*cacheNode)
		return &Handle{hash: hash, Entry: node.entry}
	}
	if pe, ok := c.evicted[hash]; ok {
		pe.pins++
		return &Handle{hash: hash, Entry: pe.entry}
	}
	return nil
}

// Unpin releases one pin on hash. If the entry has since been evicted and
// its pin count returns to zero, it is destroyed.
func (c *Cache) Unpin(hash uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[hash]; ok {
		if c.pins[hash] > 0 {
			c.pins[hash]--
			if c.pins[hash] == 0 {
				delete(c.pins, hash)
			}
		}
		return
	}
	if pe, ok := c.evicted[hash]; ok {
		pe.pins--
		if pe.pins <= 0 {
			delete(c.evicted, hash)
		}
	}
}

// Len returns the number of resident entries (excludes evicted-but-pinned).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// retireLocked removes el (an existing resident entry for hash) from the
// LRU list, moving it to the evicted list if it is still pinned.
func (c *Cache) retireLocked(hash uint64, el *list.Element) {
	c.ll.Remove(el)
	node := el.Value.(*cacheNode)
	if pins := c.pins[hash]; pins > 0 {
		c.evicted[hash] = &pinnedEntry{entry: node.entry, pins: pins}
	}
	delete(c.items, hash)
	delete(c.pins, hash)
}

// evictLocked evicts from the LRU tail until resident size is at most
// capacity.
func (c *Cache) evictLocked() {
	for c.capacity >= 0 && c.ll.Len() > c.capacity {
		tail := c.ll.Back()
		if tail == nil {
			return
		}
		node := tail.Value.(*cacheNode)
		c.ll.Remove(tail)
		delete(c.items, node.hash)
		if pins := c.pins[node.hash]; pins > 0 {
			c.evicted[node.hash] = &pinnedEntry{entry: node.entry, pins: pins}
			delete(c.pins, node.hash)
		}
	}
}
