package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"storecache/pkg/objectid"
	"storecache/pkg/logging"
)

// node is the bookkeeping wrapper stored per Object ID: the entry itself,
// its pin count, and its position in the LRU list.
type node struct {
	entry Entry
	pins  int
	elem  *list.Element // list.Element.Value is objectid.ID
}

// SharedCache is the process-wide cache tier described in spec §4.1: a
// thread-safe map from Object ID to Entry, indexed additionally by Binding
// Name and by value equality, bounded by an approximate-LRU policy that
// never evicts a pinned entry.
//
// A capacity of zero disables retention entirely — every Put is discarded
// and every Get misses — while Put still returns a well-formed Entry, so
// callers see identical functional behavior with the cache effectively
// switched off.
type SharedCache struct {
	mu       sync.Mutex
	capacity int

	byID       map[objectid.ID]*node
	byName     map[string]objectid.ID
	byValueKey map[string]objectid.ID
	lru        *list.List

	metrics Metrics
	group   singleflight.Group
}

// NewSharedCache returns an empty SharedCache with the given maximum entry
// count. A non-positive capacity disables retention (see type doc).
func NewSharedCache(capacity int) *SharedCache {
	return &SharedCache{
		capacity:   capacity,
		byID:       make(map[objectid.ID]*node),
		byName:     make(map[string]objectid.ID),
		byValueKey: make(map[string]objectid.ID),
		lru:        list.New(),
	}
}

// disabled reports whether this cache has been configured with capacity <= 0.
func (c *SharedCache) disabled() bool {
	return c.capacity <= 0
}

// valueKey computes a canonical index key for value, per the decision that
// cached values are logically immutable once inserted (see DESIGN.md). Types
// that cannot be marshaled are simply never indexed by value; get_by_value
// then predictably misses for them.
func valueKey(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", false
	}
	return string(encoded), true
}

// GetByID returns a snapshot of the entry for id, or (Entry{}, false) on
// miss. A hit refreshes the entry's LRU position.
func (c *SharedCache) GetByID(id objectid.ID) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.byID[id]
	if !ok {
		c.metrics.misses.Add(1)
		return Entry{}, false
	}

	c.metrics.hits.Add(1)
	c.touch(n)
	return n.entry, true
}

// GetIDByName resolves name to an Object ID, or objectid.Absent on miss.
func (c *SharedCache) GetIDByName(name string) objectid.ID {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.byName[name]
	if !ok {
		c.metrics.misses.Add(1)
		return objectid.Absent
	}
	c.metrics.hits.Add(1)
	if n, ok := c.byID[id]; ok {
		c.touch(n)
	}
	return id
}

// GetIDByValue resolves value to the Object ID it was cached under, by the
// equality relation described in valueKey, or objectid.Absent on miss.
func (c *SharedCache) GetIDByValue(value any) objectid.ID {
	key, ok := valueKey(value)
	if !ok {
		return objectid.Absent
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.byValueKey[key]
	if !ok {
		c.metrics.misses.Add(1)
		return objectid.Absent
	}
	c.metrics.hits.Add(1)
	if n, ok := c.byID[id]; ok {
		c.touch(n)
	}
	return id
}

// Put inserts or updates the entry for id. mode is always coerced to NONE:
// the Shared Cache never holds pending intent, only committed state (spec
// §3, §4.1). All three indices are updated as a single observable step
// under c.mu, so no reader ever sees a partial insertion.
func (c *SharedCache) Put(mode UpdateMode, id objectid.ID, name string, value any) Entry {
	_ = mode
	entry := Entry{ID: id, Name: name, Value: value, UpdateMode: NONE}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.puts.Add(1)

	if c.disabled() {
		return entry
	}

	if existing, ok := c.byID[id]; ok {
		c.unindex(existing.entry)
		existing.entry = entry
		c.reindex(entry)
		c.touch(existing)
		return entry
	}

	if len(c.byID) >= c.capacity {
		c.evictOne()
	}

	n := &node{entry: entry}
	n.elem = c.lru.PushFront(id)
	c.byID[id] = n
	c.reindex(entry)
	return entry
}

// reindex adds e's name/value index entries. Must be called with c.mu held.
func (c *SharedCache) reindex(e Entry) {
	if e.Name != "" {
		c.byName[e.Name] = e.ID
	}
	if key, ok := valueKey(e.Value); ok {
		c.byValueKey[key] = e.ID
	}
}

// unindex removes e's name/value index entries. Must be called with c.mu held.
func (c *SharedCache) unindex(e Entry) {
	if e.Name != "" {
		delete(c.byName, e.Name)
	}
	if key, ok := valueKey(e.Value); ok {
		delete(c.byValueKey, key)
	}
}

// touch moves n to the front of the LRU list. Must be called with c.mu held.
func (c *SharedCache) touch(n *node) {
	if n.elem != nil {
		c.lru.MoveToFront(n.elem)
	}
}

// Evict removes id's entry, if present, regardless of pin count. Callers
// that must respect pinning should use the eviction path via Put instead,
// which calls evictOne and skips pinned entries.
func (c *SharedCache) Evict(id objectid.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.byID[id]
	if !ok {
		return
	}
	c.removeNode(id, n)
}

// removeNode drops n from every index and the LRU list. Must be called with
// c.mu held.
func (c *SharedCache) removeNode(id objectid.ID, n *node) {
	c.unindex(n.entry)
	delete(c.byID, id)
	if n.elem != nil {
		c.lru.Remove(n.elem)
	}
}

// evictOne removes the least-recently-used unpinned entry. If every entry is
// pinned, the cache is temporarily allowed to exceed capacity rather than
// evict an entry an in-flight transaction depends on. Must be called with
// c.mu held.
func (c *SharedCache) evictOne() {
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		id := elem.Value.(objectid.ID)
		n, ok := c.byID[id]
		if !ok {
			c.lru.Remove(elem)
			continue
		}
		if n.pins > 0 {
			continue
		}
		c.removeNode(id, n)
		c.metrics.evictions.Add(1)
		logging.WithComponent("cache").Debug("evicted entry", "object_id", id.String())
		return
	}
}

// Pin increments id's reference count, protecting it from eviction. It is a
// no-op if id is not cached.
func (c *SharedCache) Pin(id objectid.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.byID[id]; ok {
		n.pins++
	}
}

// Unpin decrements id's reference count. It is a no-op if id is not cached
// or already at zero pins.
func (c *SharedCache) Unpin(id objectid.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.byID[id]; ok && n.pins > 0 {
		n.pins--
	}
}

// Metrics returns a snapshot of the cache's hit/miss/eviction counters.
func (c *SharedCache) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// Len returns the number of entries currently cached.
func (c *SharedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// FetchFunc retrieves the authoritative value for id on a cache miss, e.g.
// from the backing store.
type FetchFunc func(ctx context.Context) (Entry, bool, error)

// fetchResult carries fetch's found flag through singleflight's single
// return value, so a legitimate zero-value Entry (Object ID 0, nil value)
// is never mistaken for a miss.
type fetchResult struct {
	entry Entry
	found bool
}

// GetOrFetch returns id's cached entry if present; otherwise it calls fetch
// exactly once even under concurrent callers for the same id, using
// singleflight to coalesce simultaneous backing-store misses, then caches
// and returns the result. The bool return is false if fetch reports the
// object does not exist; nothing is cached in that case.
func (c *SharedCache) GetOrFetch(ctx context.Context, id objectid.ID, fetch FetchFunc) (Entry, bool, error) {
	if entry, ok := c.GetByID(id); ok {
		return entry, true, nil
	}

	key := fmt.Sprint(int64(id))
	result, err, _ := c.group.Do(key, func() (any, error) {
		entry, found, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if !found {
			return fetchResult{found: false}, nil
		}
		return fetchResult{entry: c.Put(NONE, entry.ID, entry.Name, entry.Value), found: true}, nil
	})
	if err != nil {
		return Entry{}, false, err
	}

	fr := result.(fetchResult)
	return fr.entry, fr.found, nil
}
