package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storecache/pkg/dberror"
	"storecache/pkg/objectid"
	"storecache/pkg/logging"
)

// Manager grants and releases exclusive object locks and detects deadlocks
// via a wait-for graph. All locks are exclusive; there is no shared mode.
//
// Manager is the concurrency-control analogue of StoreMy's LockManager: the
// same table/waitqueue/dependency-graph split, generalized from page-level
// shared/exclusive locking down to spec-required exclusive-only locking on
// Object IDs, and with the teacher's exponential-backoff polling loop
// replaced by true channel-based blocking (the teacher already allocated a
// Chan on every LockRequest but never selected on it).
type Manager struct {
	mu        sync.Mutex
	table     *Table
	waitQueue *WaitQueue
	depGraph  *DependencyGraph

	policy         Policy
	acquireTimeout time.Duration
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithPolicy sets the deadlock victim policy. Default is RequesterVictim.
func WithPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithAcquireTimeout bounds how long Acquire will block waiting for a lock
// before failing with a Deadlock error. Zero (the default) means wait
// indefinitely, subject only to ctx cancellation.
func WithAcquireTimeout(d time.Duration) Option {
	return func(m *Manager) { m.acquireTimeout = d }
}

// NewManager returns an empty Manager configured with opts.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		table:     NewTable(),
		waitQueue: NewWaitQueue(),
		depGraph:  NewDependencyGraph(),
		policy:    RequesterVictim,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire blocks until txn holds the exclusive lock on id, ctx is cancelled,
// or a deadlock is detected. A transaction that already holds the lock
// returns immediately.
//
// Acquisition flow:
//  1. If txn already holds id, return.
//  2. If id is unlocked, grant it and return.
//  3. Compute the wait-for edge txn->holder(id) this request would create
//     and test it against the dependency graph *before* touching the wait
//     queue. If it would close a cycle, the policy picks the victim: under
//     RequesterVictim the requester fails immediately without queuing;
//     under DeterministicVictim the youngest transaction in the cycle is
//     the victim, so the requester fails only if it is the youngest, and
//     otherwise the victim's queued request is failed and the requester
//     continues to step 4.
//  4. Otherwise enqueue and record the edge, then block on the request's
//     channel until granted or ctx/timeout fires.
func (m *Manager) Acquire(ctx context.Context, txn TxnID, id objectid.ID) error {
	log := logging.WithLock(int64(txn), id)

	m.mu.Lock()
	if m.table.Holds(txn, id) {
		m.mu.Unlock()
		return nil
	}

	if !m.table.IsLocked(id) {
		m.table.Grant(txn, id)
		m.depGraph.RemoveTxn(txn)
		m.mu.Unlock()
		log.Debug("lock granted immediately")
		return nil
	}

	holder, _ := m.table.HolderOf(id)
	if m.depGraph.WouldCycle(txn, holder) {
		brokeByAbortingOther := m.policy == DeterministicVictim && m.breakCycleDeterministically(txn, holder)
		if !brokeByAbortingOther {
			m.mu.Unlock()
			log.Warn("deadlock detected, failing requester without queuing")
			return dberror.New(dberror.Deadlock, fmt.Sprintf("acquiring lock on %s would deadlock with txn %d", id, holder))
		}
		// The cycle was broken by aborting a different transaction's queued
		// request; txn's own request can now proceed safely below.
	}

	req := newRequest(txn, id)
	m.waitQueue.Enqueue(req)
	m.depGraph.AddEdge(txn, holder)
	m.mu.Unlock()

	log.Debug("lock request queued")

	var timeout <-chan time.Time
	if m.acquireTimeout > 0 {
		timer := time.NewTimer(m.acquireTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-req.grant:
		return err
	case <-ctx.Done():
		m.cancelWaiting(txn, id)
		return dberror.Wrap(ctx.Err(), dberror.Deadlock, "Acquire", "LockManager")
	case <-timeout:
		m.cancelWaiting(txn, id)
		return dberror.New(dberror.Deadlock, fmt.Sprintf("timed out waiting for lock on %s", id))
	}
}

// breakCycleDeterministically is called with m.mu held while a cycle formed
// by txn's pending request against holder is being evaluated. It picks the
// youngest transaction (highest TxnID) among the chain of transactions that
// would form the cycle and, if that victim is not txn itself, forcibly
// aborts the victim's queued request instead of failing txn. Returns true if
// it broke the cycle by aborting someone else, false if txn itself is the
// victim (or no other victim could be found) and the caller should fail txn.
func (m *Manager) breakCycleDeterministically(txn, holder TxnID) bool {
	path := m.depGraph.CyclePath(txn, holder)
	if len(path) == 0 {
		return false
	}

	victim := txn
	for _, candidate := range path {
		if candidate > victim {
			victim = candidate
		}
	}
	if victim == txn {
		return false
	}

	waitingOn, ok := m.waitQueue.WaitingOn(victim)
	if !ok {
		return false
	}

	victimReq := m.waitQueue.Get(victim, waitingOn)
	m.waitQueue.Remove(victim, waitingOn)
	m.depGraph.RemoveTxn(victim)
	logging.WithLock(int64(victim), waitingOn).Warn("deterministic victim policy aborted queued request")

	if victimReq != nil {
		victimReq.grant <- dberror.New(dberror.Deadlock, fmt.Sprintf("aborted as deadlock victim while waiting on %s", waitingOn))
	}
	return true
}

// cancelWaiting removes a request that lost its race (ctx cancelled or timed
// out) from the wait queue and dependency graph.
func (m *Manager) cancelWaiting(txn TxnID, id objectid.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waitQueue.Remove(txn, id)
	m.depGraph.RemoveTxn(txn)
}

// Release gives up txn's lock on id, if held, and wakes the next waiter.
func (m *Manager) Release(txn TxnID, id objectid.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.table.Release(txn, id)
	m.depGraph.RemoveTxn(txn)
	m.wakeNext(id)
}

// ReleaseAll gives up every lock txn holds, waking waiters on each freed
// object. Called at commit and abort.
func (m *Manager) ReleaseAll(txn TxnID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	freed := m.table.ReleaseAll(txn)
	m.depGraph.RemoveTxn(txn)
	if waitingOn, ok := m.waitQueue.WaitingOn(txn); ok {
		m.waitQueue.Remove(txn, waitingOn)
	}

	for _, id := range freed {
		m.wakeNext(id)
	}
}

// wakeNext grants id's lock to the head of its wait queue, if any, and
// signals that request's channel. Must be called with m.mu held.
func (m *Manager) wakeNext(id objectid.ID) {
	next := m.waitQueue.PopFront(id)
	if next == nil {
		return
	}

	m.table.Grant(next.txn, id)
	m.depGraph.RemoveTxn(next.txn)
	next.grant <- nil
}

// IsLocked reports whether id is currently held by any transaction.
func (m *Manager) IsLocked(id objectid.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.IsLocked(id)
}

// HeldBy returns the object IDs currently locked by txn.
func (m *Manager) HeldBy(txn TxnID) []objectid.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.HeldBy(txn)
}

// Snapshot is a point-in-time copy of the manager's state, for introspection
// by the watch dashboard and by tests that assert on lock-manager invariants
// directly instead of only through side effects.
type Snapshot struct {
	Holders map[objectid.ID]TxnID
	Waiters map[objectid.ID][]TxnID
	WaitFor map[TxnID][]TxnID
}

// Snapshot returns a copy of the manager's current holders, per-object
// waiter queues, and wait-for edges.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	holders := make(map[objectid.ID]TxnID, len(m.table.byObject))
	for id, held := range m.table.byObject {
		holders[id] = held.holder
	}

	waiters := make(map[objectid.ID][]TxnID, len(m.waitQueue.byObject))
	for id, reqs := range m.waitQueue.byObject {
		ids := make([]TxnID, len(reqs))
		for i, r := range reqs {
			ids[i] = r.txn
		}
		waiters[id] = ids
	}

	return Snapshot{
		Holders: holders,
		Waiters: waiters,
		WaitFor: m.depGraph.Edges(),
	}
}
