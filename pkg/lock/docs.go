// Package lock implements pessimistic, exclusive-only object locking with
// wait-for-graph deadlock detection.
//
// # Overview
//
// Locking here is deliberately simpler than a full two-phase-locking
// protocol: there is no shared/read lock mode, since reads that must observe
// a consistent value go through a transaction's private cache rather than
// through the lock table. A single lock mode grants exclusive access to an
// Object ID; a transaction acquires it before mutating the object under that
// ID and holds it until commit or abort.
//
// # Components
//
// [Manager] is the single public entry point. Callers use [Manager.Acquire]
// to obtain a lock and [Manager.Release] / [Manager.ReleaseAll] to give it
// up. Internally it coordinates three subsystems:
//
//   - [Table]           — tracks which transaction holds the lock on each
//     object, and which objects each transaction holds.
//   - [WaitQueue]        — per-object FIFO queues of pending [request] entries
//     for transactions that cannot be granted a lock immediately.
//   - [DependencyGraph]  — directed wait-for graph used for deadlock
//     detection. An edge A→B means transaction A is waiting for a lock held
//     by B. A cycle in this graph indicates a deadlock.
//
// # Lock Acquisition Flow
//
// When [Manager.Acquire] is called:
//
//  1. If the calling transaction already holds the lock, return immediately.
//  2. If the object is unlocked, grant it and return.
//  3. Otherwise, compute the wait-for edge this request would create and run
//     cycle detection against the hypothetical graph *before* enqueuing
//     anything.
//  4. If a cycle would result, the [Policy] picks the victim. Under
//     RequesterVictim the request fails immediately with a Deadlock error
//     and is never queued. Under DeterministicVictim the youngest
//     transaction in the cycle is the victim: if that is the requester it
//     fails the same way, otherwise the victim's queued request fails with
//     a Deadlock error and the requester continues to step 5.
//  5. Otherwise enqueue the request, record the edge, and block on the
//     request's channel until granted, the context is cancelled, or (if
//     configured) the acquire timeout elapses.
//
// # Deadlock Detection
//
// [DependencyGraph.WouldCycle] uses depth-first search over the wait-for
// graph including a hypothetical edge. The cached cycle result from
// [DependencyGraph.HasCycle] is invalidated on every structural change.
package lock
