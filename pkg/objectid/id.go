// Package objectid defines the Object ID type shared by every layer of the
// caching core: the backing store, the shared cache, the lock manager, and
// transaction contexts all key their state off this single type.
package objectid

import (
	"fmt"
	"sync/atomic"
)

// ID is an opaque identifier for a persisted object. IDs are monotonically
// allocated by an Allocator and never reused within a process lifetime.
type ID int64

// Absent is the sentinel value meaning "no such object" or "no such binding".
// It is returned by lookups that miss rather than by a distinct error, since
// a missing name or value is a normal outcome, not a failure (spec.md §4.1).
const Absent ID = -1

// Valid reports whether id is a real, allocated object identifier.
func (id ID) Valid() bool {
	return id >= 0
}

func (id ID) String() string {
	if id == Absent {
		return "<absent>"
	}
	return fmt.Sprintf("obj-%d", int64(id))
}

// Allocator hands out monotonically increasing Object IDs. The zero value is
// not usable; construct one with NewAllocator. Mirrors the atomic counter
// StoreMy uses for transaction.NewTransactionID.
type Allocator struct {
	next int64
}

// NewAllocator returns an Allocator whose first allocation is 0.
func NewAllocator() *Allocator {
	return &Allocator{next: -1}
}

// Next returns the next unused Object ID. Safe for concurrent use.
func (a *Allocator) Next() ID {
	return ID(atomic.AddInt64(&a.next, 1))
}
