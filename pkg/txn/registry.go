package txn

import (
	"sync"

	"storecache/pkg/backing"
	"storecache/pkg/cache"
	"storecache/pkg/dberror"
	"storecache/pkg/lock"
	"storecache/pkg/objectid"
)

// Registry is the process-wide map from transaction identity to Context,
// mirroring StoreMy's TransactionRegistry. It is the single place new
// transactions are minted, so every Context in the process shares the same
// Shared Cache, Lock Manager, and Object ID allocator.
type Registry struct {
	mu       sync.RWMutex
	contexts map[ID]*Context

	shared *cache.SharedCache
	locks  *lock.Manager
	ids    *objectid.Allocator
	adapter backing.Adapter
	onCommit CommitHook
}

// NewRegistry returns an empty Registry wired to the given collaborators.
// adapter mints one backing.Handle per transaction (spec §4.4: "one backing-
// store handle per Transaction Context").
func NewRegistry(shared *cache.SharedCache, locks *lock.Manager, ids *objectid.Allocator, adapter backing.Adapter, onCommit CommitHook) *Registry {
	return &Registry{
		contexts: make(map[ID]*Context),
		shared:   shared,
		locks:    locks,
		ids:      ids,
		adapter:  adapter,
		onCommit: onCommit,
	}
}

// Begin creates a new transaction, registers it, and returns its Context.
func (r *Registry) Begin() *Context {
	id := NewID()
	ctx := newContext(id, r.shared, r.locks, r.adapter.NewHandle(), r.ids, r.onCommit)

	r.mu.Lock()
	r.contexts[id] = ctx
	r.mu.Unlock()

	return ctx
}

// Get retrieves a registered transaction by ID.
func (r *Registry) Get(id ID) (*Context, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctx, ok := r.contexts[id]
	if !ok {
		return nil, dberror.New(dberror.InvalidState, "no such transaction: "+id.String())
	}
	return ctx, nil
}

// Remove drops a transaction from the registry. Callers typically call this
// once a transaction reaches a terminal state to bound registry growth.
func (r *Registry) Remove(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contexts, id)
}

// All returns every registered transaction, active or terminal.
func (r *Registry) All() []*Context {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Context, 0, len(r.contexts))
	for _, ctx := range r.contexts {
		all = append(all, ctx)
	}
	return all
}

// Active returns every registered transaction still in the ACTIVE state.
func (r *Registry) Active() []*Context {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]*Context, 0)
	for _, ctx := range r.contexts {
		if ctx.Status() == Active {
			active = append(active, ctx)
		}
	}
	return active
}

// Count returns the number of registered transactions, active or terminal.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}
