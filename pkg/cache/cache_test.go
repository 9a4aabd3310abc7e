package cache

import (
	"context"
	"errors"
	"testing"

	"storecache/pkg/objectid"
)

func TestSharedCachePutAndGetByID(t *testing.T) {
	c := NewSharedCache(10)

	entry := c.Put(NONE, 1, "alpha", "hello")
	if entry.UpdateMode != NONE {
		t.Errorf("expected UpdateMode NONE, got %v", entry.UpdateMode)
	}

	got, ok := c.GetByID(1)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Value != "hello" {
		t.Errorf("expected hello, got %v", got.Value)
	}
}

func TestSharedCacheGetByIDMiss(t *testing.T) {
	c := NewSharedCache(10)
	if _, ok := c.GetByID(99); ok {
		t.Fatal("expected miss on empty cache")
	}
	snap := c.Metrics()
	if snap.Misses != 1 {
		t.Errorf("expected 1 miss recorded, got %d", snap.Misses)
	}
}

func TestSharedCacheGetIDByName(t *testing.T) {
	c := NewSharedCache(10)
	c.Put(NONE, 5, "bound", 123)

	if id := c.GetIDByName("bound"); id != 5 {
		t.Errorf("expected 5, got %v", id)
	}
	if id := c.GetIDByName("unbound"); id != objectid.Absent {
		t.Errorf("expected Absent, got %v", id)
	}
}

func TestSharedCacheGetIDByValue(t *testing.T) {
	c := NewSharedCache(10)
	c.Put(NONE, 7, "", map[string]int{"n": 1})

	if id := c.GetIDByValue(map[string]int{"n": 1}); id != 7 {
		t.Errorf("expected 7, got %v", id)
	}
	if id := c.GetIDByValue(map[string]int{"n": 2}); id != objectid.Absent {
		t.Errorf("expected Absent for a different value, got %v", id)
	}
}

func TestSharedCacheUpdateReindexes(t *testing.T) {
	c := NewSharedCache(10)
	c.Put(NONE, 1, "first-name", "first-value")
	c.Put(NONE, 1, "second-name", "second-value")

	if id := c.GetIDByName("first-name"); id != objectid.Absent {
		t.Error("expected old name to be unbound after update")
	}
	if id := c.GetIDByName("second-name"); id != 1 {
		t.Errorf("expected new name bound to 1, got %v", id)
	}
}

func TestSharedCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewSharedCache(2)

	c.Put(NONE, 1, "a", "va")
	c.Put(NONE, 2, "b", "vb")
	// touch 1 so 2 becomes the LRU victim
	c.GetByID(1)
	c.Put(NONE, 3, "c", "vc")

	if _, ok := c.GetByID(2); ok {
		t.Error("expected object 2 to have been evicted")
	}
	if _, ok := c.GetByID(1); !ok {
		t.Error("expected object 1 to survive (recently used)")
	}
	if _, ok := c.GetByID(3); !ok {
		t.Error("expected object 3 to be present")
	}

	snap := c.Metrics()
	if snap.Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", snap.Evictions)
	}
}

func TestSharedCachePinnedEntrySurvivesEviction(t *testing.T) {
	c := NewSharedCache(1)

	c.Put(NONE, 1, "a", "va")
	c.Pin(1)
	c.Put(NONE, 2, "b", "vb")

	if _, ok := c.GetByID(1); !ok {
		t.Error("expected pinned object 1 to survive eviction pressure")
	}
	if _, ok := c.GetByID(2); !ok {
		t.Error("expected object 2 to have been admitted despite capacity 1, since 1 is pinned")
	}

	c.Unpin(1)
	c.Put(NONE, 3, "c", "vc")
	if _, ok := c.GetByID(1); ok {
		t.Error("expected object 1 to be evictable once unpinned, being the least recently touched")
	}
}

func TestSharedCacheEvict(t *testing.T) {
	c := NewSharedCache(10)
	c.Put(NONE, 1, "name", "value")

	c.Evict(1)

	if _, ok := c.GetByID(1); ok {
		t.Error("expected explicit Evict to remove the entry")
	}
	if id := c.GetIDByName("name"); id != objectid.Absent {
		t.Error("expected name index cleared after Evict")
	}
}

func TestSharedCacheDisabledCapacity(t *testing.T) {
	c := NewSharedCache(0)

	entry := c.Put(NONE, 1, "name", "value")
	if entry.Value != "value" {
		t.Error("expected Put to still return a well-formed Entry when disabled")
	}

	if _, ok := c.GetByID(1); ok {
		t.Error("expected disabled cache to never retain entries")
	}
	if c.Len() != 0 {
		t.Errorf("expected Len 0 on disabled cache, got %d", c.Len())
	}
}

func TestSharedCacheGetOrFetchCallsOnce(t *testing.T) {
	c := NewSharedCache(10)
	calls := 0

	fetch := func(ctx context.Context) (Entry, bool, error) {
		calls++
		return Entry{ID: 4, Name: "fetched", Value: "v"}, true, nil
	}

	entry, ok, err := c.GetOrFetch(context.Background(), 4, fetch)
	if err != nil || !ok {
		t.Fatalf("unexpected result: entry=%v ok=%v err=%v", entry, ok, err)
	}

	entry2, ok2, err2 := c.GetOrFetch(context.Background(), 4, fetch)
	if err2 != nil || !ok2 {
		t.Fatalf("unexpected second result: %v %v %v", entry2, ok2, err2)
	}
	if calls != 1 {
		t.Errorf("expected fetch called once due to cache hit on second call, got %d", calls)
	}
}

func TestSharedCacheGetOrFetchNotFound(t *testing.T) {
	c := NewSharedCache(10)

	fetch := func(ctx context.Context) (Entry, bool, error) {
		return Entry{}, false, nil
	}

	_, ok, err := c.GetOrFetch(context.Background(), 9, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected not-found result to report ok=false")
	}
	if c.Len() != 0 {
		t.Error("expected nothing cached on not-found")
	}
}

func TestSharedCacheGetOrFetchPropagatesError(t *testing.T) {
	c := NewSharedCache(10)
	wantErr := errors.New("backing store unavailable")

	fetch := func(ctx context.Context) (Entry, bool, error) {
		return Entry{}, false, wantErr
	}

	_, _, err := c.GetOrFetch(context.Background(), 9, fetch)
	if !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
