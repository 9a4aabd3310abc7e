package store

import (
	"io"
	"sync/atomic"

	"storecache/pkg/backing"
	"storecache/pkg/cache"
	"storecache/pkg/lock"
	"storecache/pkg/logging"
	"storecache/pkg/objectid"
	"storecache/pkg/txn"
)

// Store is the process-wide façade: one Store per process, owning the
// Shared Cache and Lock Manager for its lifetime (spec §9 "Global state" —
// no implicit singletons, the caller constructs exactly one).
type Store struct {
	shared   *cache.SharedCache
	locks    *lock.Manager
	ids      *objectid.Allocator
	adapter  backing.Adapter
	registry *txn.Registry

	begun int64
}

// New constructs a Store backed by adapter, applying opts over the default
// Config. It instantiates the Shared Cache and Lock Manager once; callers
// derive Transaction Contexts from it via Begin.
func New(adapter backing.Adapter, opts ...Option) *Store {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	shared := cache.NewSharedCache(cfg.CacheCapacity)
	locks := lock.NewManager(
		lock.WithPolicy(cfg.DeadlockPolicy),
		lock.WithAcquireTimeout(cfg.AcquireTimeout),
	)
	ids := objectid.NewAllocator()

	s := &Store{
		shared:  shared,
		locks:   locks,
		ids:     ids,
		adapter: adapter,
	}
	s.registry = txn.NewRegistry(shared, locks, ids, adapter, s.promote)
	return s
}

// promote is the CommitHook a Transaction Context invokes at commit (spec
// §4.3 step 3, "notify the enclosing store of commit"). Both CREATE and
// LOCK entries are promoted to the Shared Cache — the "reasonable
// implementation" spec §9's open question on promotion timing recommends —
// while DESTROY entries are evicted so stale state cannot be served.
func (s *Store) promote(pending []cache.Entry) {
	for _, entry := range pending {
		switch entry.UpdateMode {
		case cache.CREATE, cache.LOCK:
			s.shared.Put(cache.NONE, entry.ID, entry.Name, entry.Value)
		case cache.DESTROY:
			s.shared.Evict(entry.ID)
		}
	}
}

// Begin derives a new Transaction Context from this Store.
func (s *Store) Begin() *txn.Context {
	atomic.AddInt64(&s.begun, 1)
	t := s.registry.Begin()
	logging.WithTxn(int64(t.ID())).Info("transaction begun")
	return t
}

// Transaction retrieves a previously begun transaction by ID.
func (s *Store) Transaction(id txn.ID) (*txn.Context, error) {
	return s.registry.Get(id)
}

// CacheMetrics returns a snapshot of Shared Cache hit/miss/eviction counts.
func (s *Store) CacheMetrics() cache.MetricsSnapshot {
	return s.shared.Metrics()
}

// LockSnapshot returns the Lock Manager's current holders, waiters, and
// wait-for edges, for the watch dashboard and diagnostics.
func (s *Store) LockSnapshot() lock.Snapshot {
	return s.locks.Snapshot()
}

// Stats is an aggregate, process-wide view of transaction activity.
type Stats struct {
	Begun     int64
	Active    int
	Committed int
	Aborted   int
	InFlight  int // COMMITTING or ABORTING: neither terminal nor fully active
}

// Stats computes an aggregate snapshot by walking every registered
// transaction, in the style of StoreMy's DatabaseStats.
func (s *Store) Stats() Stats {
	stats := Stats{Begun: atomic.LoadInt64(&s.begun)}
	for _, t := range s.registry.All() {
		switch t.Status() {
		case txn.Active:
			stats.Active++
		case txn.Committed:
			stats.Committed++
		case txn.Aborted:
			stats.Aborted++
		default:
			stats.InFlight++
		}
	}
	return stats
}

// ActiveTransactions returns every transaction still in the ACTIVE state.
func (s *Store) ActiveTransactions() []*txn.Context {
	return s.registry.Active()
}

// Close releases the backing adapter's resources, if it holds any (e.g.
// RedisAdapter's connection pool). Close does not, by itself, reject
// in-flight transactions; callers are expected to have committed or aborted
// every transaction before calling Close, per spec §9's store-lifecycle
// design note.
func (s *Store) Close() error {
	if closer, ok := s.adapter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
