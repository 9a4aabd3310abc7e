package txn

import (
	"fmt"
	"sync/atomic"

	"storecache/pkg/lock"
)

var idCounter int64

// ID identifies one transaction for the lifetime of the process. IDs are
// allocated in increasing order starting at 1, mirroring StoreMy's
// transaction.TransactionID counter.
type ID int64

// NewID allocates the next unused transaction ID.
func NewID() ID {
	return ID(atomic.AddInt64(&idCounter, 1))
}

func (id ID) String() string {
	return fmt.Sprintf("TXN-%d", int64(id))
}

// forLock converts id to the type pkg/lock uses for its own bookkeeping.
// pkg/lock cannot import pkg/txn (txn depends on lock, not the reverse), so
// the two packages agree on the underlying int64 representation instead.
func (id ID) forLock() lock.TxnID {
	return lock.TxnID(id)
}
