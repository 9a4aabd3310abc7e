package lock

import (
	"time"

	"storecache/pkg/objectid"
)

// TxnID identifies the transaction requesting or holding a lock. The lock
// package does not depend on package txn to avoid an import cycle — txn
// depends on lock, not the other way around.
type TxnID int64

// Policy selects which transaction is aborted when a deadlock is detected.
type Policy int

const (
	// RequesterVictim fails the transaction whose request would close the
	// cycle, without ever queuing it. This is the default.
	RequesterVictim Policy = iota
	// DeterministicVictim aborts the youngest transaction in the cycle
	// (highest TxnID), so repeated runs of the same workload pick the same
	// victim.
	DeterministicVictim
)

// heldLock records a granted, currently-held lock.
type heldLock struct {
	holder    TxnID
	grantedAt time.Time
}

// request is a pending acquisition, queued FIFO per object.
type request struct {
	txn    TxnID
	object objectid.ID
	grant  chan error
}

func newRequest(txn TxnID, object objectid.ID) *request {
	return &request{
		txn:    txn,
		object: object,
		grant:  make(chan error, 1),
	}
}
