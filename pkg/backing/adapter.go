// Package backing defines the Backing Store Adapter boundary: the interface
// through which a Transaction Context reaches persistent (or at least
// out-of-process) storage, and two concrete implementations.
//
// Grounded on StoreMy's own storage-boundary pattern (pkg/storage's
// DiskManager interface consumed by pkg/memory's PageStore) generalized from
// page bytes to arbitrary object values, since this domain has no page
// format or on-disk layout of its own — persistence is delegated entirely,
// per spec.
package backing

import (
	"context"

	"github.com/google/uuid"

	"storecache/pkg/objectid"
)

// Handle is a transaction-scoped view of the backing store: one Handle per
// Transaction Context; see spec §4.4. Every call performs real work — no
// caching semantics live here, those belong to pkg/cache and pkg/txn.
type Handle interface {
	// Create persists a new object under id and name. The Object ID space is
	// owned by the enclosing store (spec §3: "monotonically allocated by the
	// store"), not by the backing adapter, so id is always pre-allocated by
	// the caller — this keeps an Object ID stable across commit instead of
	// being replaced by whatever ID the backing store would have picked.
	Create(ctx context.Context, id objectid.ID, value any, name string) error
	// Destroy removes the object identified by id.
	Destroy(ctx context.Context, id objectid.ID) error
	// Peek fetches the current value of id without any locking side effect.
	// The second return is false if id does not exist.
	Peek(ctx context.Context, id objectid.ID) (any, bool, error)
	// Lock fetches the current value of id on behalf of a caller that has
	// already acquired the corresponding lock.Manager lock. Functionally
	// equivalent to Peek at this layer — the lock's exclusivity is enforced
	// entirely by pkg/lock, not by the backing store — but kept distinct in
	// the interface to match the capability set the calling Transaction
	// Context depends on.
	Lock(ctx context.Context, id objectid.ID) (any, bool, error)
	// Lookup resolves a Binding Name to an Object ID, or objectid.Absent.
	Lookup(ctx context.Context, name string) (objectid.ID, error)
	// LookupObject resolves a value to the Object ID it was stored under,
	// by equality, or objectid.Absent. See DESIGN.md for the value-equality
	// decision.
	LookupObject(ctx context.Context, value any) (objectid.ID, error)
	// Commit durably applies every effect performed on this handle since it
	// was opened. Must be atomic: either every effect is visible afterward,
	// or none are.
	Commit(ctx context.Context) error
	// Abort discards every effect performed on this handle since it was
	// opened. Must be safe to call multiple times.
	Abort(ctx context.Context) error
	// CurrentAppID identifies the adapter instance backing this handle, for
	// log correlation and (for RedisAdapter) key namespacing. It is never
	// part of the Object ID space.
	CurrentAppID() uuid.UUID
}

// Adapter opens transaction-scoped Handles against a backing store.
type Adapter interface {
	NewHandle() Handle
}
