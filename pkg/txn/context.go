package txn

import (
	"context"
	"reflect"
	"sync"
	"time"

	"storecache/pkg/backing"
	"storecache/pkg/cache"
	"storecache/pkg/dberror"
	"storecache/pkg/lock"
	"storecache/pkg/logging"
	"storecache/pkg/objectid"
)

// Status is a transaction's position in its one-way lifecycle.
type Status int

const (
	Active Status = iota
	Committing
	Committed
	Aborting
	Aborted
)

func (s Status) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Committing:
		return "COMMITTING"
	case Committed:
		return "COMMITTED"
	case Aborting:
		return "ABORTING"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Stats is a point-in-time snapshot of one transaction's activity, in the
// style of StoreMy's TransactionStats.
type Stats struct {
	Reads    int
	Writes   int
	Creates  int
	Destroys int
}

// CommitHook lets the enclosing store observe a transaction's pending
// updates as it commits, so it can promote entries into the Shared Cache or
// evict destroyed ones — "notify the enclosing store of commit" in spec
// §4.3's commit algorithm, step 3.
type CommitHook func(pending []cache.Entry)

// Context is the Transaction Context: the transactional view of the object
// store exposed to application code. One Context is created per logical
// transaction via Registry.Begin and is confined to a single goroutine for
// its lifetime — like StoreMy's TransactionContext, safety across goroutines
// is a documented contract, not a runtime guarantee, though the internal
// mutex here also protects against the accidental concurrent Stats() read.
type Context struct {
	id ID

	mu        sync.Mutex
	status    Status
	startTime time.Time
	endTime   time.Time

	shared *cache.SharedCache
	locks  *lock.Manager
	handle backing.Handle
	ids    *objectid.Allocator
	onCommit CommitHook

	private      map[objectid.ID]cache.Entry
	privateNames map[string]objectid.ID
	pending      []objectid.ID
	pendingSet   map[objectid.ID]struct{}
	heldLocks    map[objectid.ID]struct{}

	stats Stats
}

// newContext is unexported; transactions are always created through a
// Registry so that the process-wide registry stays authoritative.
func newContext(id ID, shared *cache.SharedCache, locks *lock.Manager, handle backing.Handle, ids *objectid.Allocator, onCommit CommitHook) *Context {
	return &Context{
		id:           id,
		status:       Active,
		startTime:    time.Now(),
		shared:       shared,
		locks:        locks,
		handle:       handle,
		ids:          ids,
		onCommit:     onCommit,
		private:      make(map[objectid.ID]cache.Entry),
		privateNames: make(map[string]objectid.ID),
		pendingSet:   make(map[objectid.ID]struct{}),
		heldLocks:    make(map[objectid.ID]struct{}),
	}
}

// ID returns this transaction's identity.
func (c *Context) ID() ID { return c.id }

// Status returns the transaction's current lifecycle state.
func (c *Context) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Stats returns a snapshot of this transaction's activity counters.
func (c *Context) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Duration returns how long the transaction has been running, or ran for if
// it has reached a terminal state.
func (c *Context) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	end := c.endTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(c.startTime)
}

// requireActive fails with INVALID_STATE unless the transaction is ACTIVE.
// Must be called with c.mu held.
func (c *Context) requireActive(op string) error {
	if c.status != Active {
		err := dberror.New(dberror.InvalidState, "transaction is "+c.status.String()+", operation rejected")
		err.Operation = op
		err.Component = "Context"
		return err
	}
	return nil
}

// addPending records id in the pending-update set, preserving insertion
// order and uniqueness by ID (spec §3: "membership uniqueness by ID"). Must
// be called with c.mu held.
func (c *Context) addPending(id objectid.ID) {
	if _, ok := c.pendingSet[id]; ok {
		return
	}
	c.pendingSet[id] = struct{}{}
	c.pending = append(c.pending, id)
}

// Create allocates a new Object ID, stages value under name for creation at
// commit, and returns the ID immediately. The ID is stable across commit:
// per spec §3, Object IDs are allocated by the store, not the backing
// adapter, so no remapping happens when the backing create actually runs.
func (c *Context) Create(_ context.Context, value any, name string) (objectid.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireActive("Create"); err != nil {
		return objectid.Absent, err
	}

	id := c.ids.Next()
	entry := cache.Entry{ID: id, Name: name, Value: value, UpdateMode: cache.CREATE}
	c.private[id] = entry
	if name != "" {
		c.privateNames[name] = id
	}
	c.addPending(id)
	c.stats.Creates++

	logging.WithTxn(int64(c.id)).Debug("staged create", "object_id", id.String(), "name", name)
	return id, nil
}

// Destroy stages id for removal at commit. Permitted even if this
// transaction never read id (spec §4.3 edge case: "destruction of a
// detached handle").
func (c *Context) Destroy(_ context.Context, id objectid.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireActive("Destroy"); err != nil {
		return err
	}

	entry, ok := c.private[id]
	if !ok {
		entry = cache.Entry{ID: id}
	}
	entry.UpdateMode = cache.DESTROY
	c.private[id] = entry
	c.addPending(id)
	c.stats.Destroys++
	return nil
}

// Peek returns id's current value as seen by this transaction: its own
// uncommitted writes first, then the Shared Cache, then the backing store.
func (c *Context) Peek(ctx context.Context, id objectid.ID) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireActive("Peek"); err != nil {
		return nil, false, err
	}
	return c.peekLocked(ctx, id)
}

// peekLocked implements the read cascade of spec §4.3. Must be called with
// c.mu held.
//
// The Shared Cache tier is consulted through GetOrFetch rather than a plain
// GetByID, so that concurrent Peeks across transactions for the same
// not-yet-cached id coalesce into a single backing.Handle.Peek call instead
// of each stampeding the backing store independently, and so a backing hit
// warms the Shared Cache for the next transaction to reach it.
func (c *Context) peekLocked(ctx context.Context, id objectid.ID) (any, bool, error) {
	if entry, ok := c.private[id]; ok {
		if entry.UpdateMode == cache.DESTROY {
			return nil, false, nil
		}
		return entry.Value, true, nil
	}

	fetch := func(ctx context.Context) (cache.Entry, bool, error) {
		value, found, err := c.handle.Peek(ctx, id)
		if err != nil || !found {
			return cache.Entry{}, found, err
		}
		return cache.Entry{ID: id, Value: value}, true, nil
	}

	entry, found, err := c.shared.GetOrFetch(ctx, id, fetch)
	if err != nil {
		return nil, false, dberror.Wrap(err, dberror.BackingFailure, "Peek", "Context")
	}
	if !found {
		return nil, false, nil
	}

	c.private[id] = cache.Entry{ID: id, Name: entry.Name, Value: entry.Value, UpdateMode: cache.NONE}
	c.stats.Reads++
	return entry.Value, true, nil
}

// Lock acquires the exclusive lock on id via the Lock Manager, then fetches
// its value through the same cascade Peek uses. Calling Lock twice on the
// same ID within one transaction is idempotent (spec §4.3 edge case): the
// second call returns the cached value. For an entry in LOCK mode it does so
// without re-entering the Lock Manager; for an entry this transaction
// created or destroyed it re-enters Acquire, which returns at once because
// the lock is already held.
func (c *Context) Lock(ctx context.Context, id objectid.ID) (any, error) {
	c.mu.Lock()
	if err := c.requireActive("Lock"); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if entry, ok := c.private[id]; ok && entry.UpdateMode == cache.LOCK {
		c.mu.Unlock()
		return entry.Value, nil
	}
	c.mu.Unlock()

	// Acquire before any lookup intended for mutation: the Lock Manager may
	// block, and must not be called while holding c.mu, since it can itself
	// block for an unbounded time waiting on another transaction.
	if err := c.locks.Acquire(ctx, c.id.forLock(), id); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.heldLocks[id] = struct{}{}

	value, _, err := c.peekLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	// A pending CREATE or DESTROY already carries the intent that must reach
	// the backing store at commit; locking a not-yet-persisted object (spec
	// §8 scenario: create, peek, lock, mutate, peek within one transaction)
	// must not downgrade that intent to LOCK, or the CREATE would never be
	// replayed at commit.
	existing := c.private[id]
	mode := existing.UpdateMode
	if mode != cache.CREATE && mode != cache.DESTROY {
		mode = cache.LOCK
	}
	name := existing.Name
	entry := cache.Entry{ID: id, Name: name, Value: value, UpdateMode: mode}
	c.private[id] = entry
	if name != "" {
		c.privateNames[name] = id
	}
	c.addPending(id)
	c.stats.Writes++

	logging.WithLock(int64(c.id), id).Debug("lock acquired")
	return value, nil
}

// Lookup resolves name to an Object ID via the private cache, then the
// Shared Cache, then the backing store, returning objectid.Absent on a
// total miss.
func (c *Context) Lookup(ctx context.Context, name string) (objectid.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireActive("Lookup"); err != nil {
		return objectid.Absent, err
	}

	if id, ok := c.privateNames[name]; ok {
		return id, nil
	}

	if id := c.shared.GetIDByName(name); id != objectid.Absent {
		c.privateNames[name] = id
		return id, nil
	}

	id, err := c.handle.Lookup(ctx, name)
	if err != nil {
		return objectid.Absent, dberror.Wrap(err, dberror.BackingFailure, "Lookup", "Context")
	}
	if id != objectid.Absent {
		c.privateNames[name] = id
	}
	return id, nil
}

// LookupObject resolves value to the Object ID it was stored under, by
// equality, through the same private/shared/backing cascade as Lookup.
func (c *Context) LookupObject(ctx context.Context, value any) (objectid.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireActive("LookupObject"); err != nil {
		return objectid.Absent, err
	}

	for id, entry := range c.private {
		if entry.UpdateMode != cache.DESTROY && valuesEqual(entry.Value, value) {
			return id, nil
		}
	}

	if id := c.shared.GetIDByValue(value); id != objectid.Absent {
		return id, nil
	}

	id, err := c.handle.LookupObject(ctx, value)
	if err != nil {
		return objectid.Absent, dberror.Wrap(err, dberror.BackingFailure, "LookupObject", "Context")
	}
	return id, nil
}

// Commit applies every staged update, promotes committed state, and
// releases every lock this transaction holds, per spec §4.3's six-step
// commit algorithm.
func (c *Context) Commit(ctx context.Context) error {
	c.mu.Lock()
	if err := c.requireActive("Commit"); err != nil {
		c.mu.Unlock()
		return err
	}
	c.status = Committing

	pendingEntries := make([]cache.Entry, 0, len(c.pending))
	for _, id := range c.pending {
		pendingEntries = append(pendingEntries, c.private[id])
	}
	c.mu.Unlock()

	for _, entry := range pendingEntries {
		var err error
		switch entry.UpdateMode {
		case cache.CREATE:
			err = c.handle.Create(ctx, entry.ID, entry.Value, entry.Name)
		case cache.DESTROY:
			err = c.handle.Destroy(ctx, entry.ID)
		case cache.LOCK:
			// No backing call: the backing store already saw the lock's
			// effect via shared-memory update of the cached value.
		}
		if err != nil {
			return c.failCommit(ctx, dberror.Wrap(err, dberror.BackingFailure, "Commit", "Context"))
		}
	}

	if err := c.handle.Commit(ctx); err != nil {
		return c.failCommit(ctx, dberror.Wrap(err, dberror.BackingFailure, "Commit", "Context"))
	}

	// Only promote into the Shared Cache once the backing commit has actually
	// succeeded — otherwise another transaction could observe this
	// transaction's writes before they are durable, which is exactly the
	// partial-visibility spec §7 forbids for a failed commit.
	if c.onCommit != nil {
		c.onCommit(pendingEntries)
	}

	c.locks.ReleaseAll(c.id.forLock())

	c.mu.Lock()
	c.status = Committed
	c.endTime = time.Now()
	c.heldLocks = make(map[objectid.ID]struct{})
	c.private = nil
	c.pending = nil
	c.pendingSet = nil
	c.mu.Unlock()

	logging.WithTxn(int64(c.id)).Info("transaction committed")
	return nil
}

// failCommit implements spec §7's "BACKING_FAILURE during commit transitions
// the transaction to ABORTED and releases all locks before propagation."
func (c *Context) failCommit(ctx context.Context, cause error) error {
	c.locks.ReleaseAll(c.id.forLock())

	c.mu.Lock()
	c.status = Aborted
	c.endTime = time.Now()
	c.heldLocks = make(map[objectid.ID]struct{})
	c.private = nil
	c.pending = nil
	c.pendingSet = nil
	c.mu.Unlock()

	logging.WithError(cause).Error("commit failed, transaction aborted", "txn_id", int64(c.id))
	return cause
}

// Abort releases every lock this transaction holds and discards its
// private cache and pending-update set. Abort is idempotent: calling it
// again on an already-aborted transaction is a no-op.
func (c *Context) Abort(ctx context.Context) error {
	c.mu.Lock()
	if c.status == Aborted {
		c.mu.Unlock()
		return nil
	}
	if c.status == Committed {
		c.mu.Unlock()
		return dberror.New(dberror.InvalidState, "cannot abort a committed transaction")
	}
	c.status = Aborting
	c.mu.Unlock()

	c.locks.ReleaseAll(c.id.forLock())

	if err := c.handle.Abort(ctx); err != nil {
		logging.WithError(err).Warn("backing abort reported an error", "txn_id", int64(c.id))
	}

	c.mu.Lock()
	c.status = Aborted
	c.endTime = time.Now()
	c.heldLocks = make(map[objectid.ID]struct{})
	c.private = nil
	c.pending = nil
	c.pendingSet = nil
	c.mu.Unlock()

	logging.WithTxn(int64(c.id)).Info("transaction aborted")
	return nil
}

// valuesEqual implements the value-equality relation LookupObject searches
// by; see DESIGN.md for the reasoning behind deep equality.
func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
