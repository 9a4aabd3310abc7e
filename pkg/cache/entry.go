// Package cache implements the Shared Cache: a process-wide, thread-safe
// map from Object ID to Entry, with secondary indices by Binding Name and by
// value equality, bounded by an approximate-LRU eviction policy.
//
// Grounded on StoreMy's pkg/catalog/tablecache.TableCache for the
// bidirectional-index-plus-container/list-LRU shape, and on
// pkg/memory.LRUPageCache for the Pin/Unpin reference-count API that
// protects an entry from eviction. Unlike LRUPageCache, nothing in the
// transaction lifecycle calls Pin/Unpin — see DESIGN.md for why this
// cache's copy-on-read design doesn't need it.
package cache

import "storecache/pkg/objectid"

// UpdateMode describes the pending intent a transaction has recorded against
// a cache entry. An entry in the Shared Cache always has mode NONE — pending
// intents live only in private, per-transaction caches (see pkg/txn).
type UpdateMode int

const (
	// NONE means the entry reflects committed state with no pending intent.
	NONE UpdateMode = iota
	// LOCK means the owning transaction holds an exclusive lock on this
	// entry's Object ID and may mutate it before commit.
	LOCK
	// CREATE means the owning transaction has not yet persisted this entry;
	// both Name and Value must be set.
	CREATE
	// DESTROY means the owning transaction intends to remove this Object ID
	// at commit. Only ID is meaningful.
	DESTROY
)

func (m UpdateMode) String() string {
	switch m {
	case NONE:
		return "NONE"
	case LOCK:
		return "LOCK"
	case CREATE:
		return "CREATE"
	case DESTROY:
		return "DESTROY"
	default:
		return "UNKNOWN"
	}
}

// Entry is an in-memory record for one Object ID.
type Entry struct {
	ID         objectid.ID
	Name       string // empty if this entry was never bound to a name
	Value      any
	UpdateMode UpdateMode
}
