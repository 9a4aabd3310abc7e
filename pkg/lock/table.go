package lock

import (
	"time"

	"storecache/pkg/objectid"
)

// Table tracks the dual index of held locks: which transaction holds each
// object, and which objects each transaction holds. It has no synchronization
// of its own — the caller (Manager) holds a mutex around every call.
type Table struct {
	byObject map[objectid.ID]*heldLock
	byTxn    map[TxnID]map[objectid.ID]struct{}
}

// NewTable returns an empty lock table.
func NewTable() *Table {
	return &Table{
		byObject: make(map[objectid.ID]*heldLock),
		byTxn:    make(map[TxnID]map[objectid.ID]struct{}),
	}
}

// HolderOf returns the transaction holding id's lock, if any.
func (t *Table) HolderOf(id objectid.ID) (TxnID, bool) {
	held, ok := t.byObject[id]
	if !ok {
		return 0, false
	}
	return held.holder, true
}

// Holds reports whether txn already holds the lock on id.
func (t *Table) Holds(txn TxnID, id objectid.ID) bool {
	held, ok := t.byObject[id]
	return ok && held.holder == txn
}

// IsLocked reports whether id is currently held by any transaction.
func (t *Table) IsLocked(id objectid.ID) bool {
	_, ok := t.byObject[id]
	return ok
}

// Grant records that txn now holds the lock on id.
func (t *Table) Grant(txn TxnID, id objectid.ID) {
	t.byObject[id] = &heldLock{holder: txn, grantedAt: time.Now()}
	if t.byTxn[txn] == nil {
		t.byTxn[txn] = make(map[objectid.ID]struct{})
	}
	t.byTxn[txn][id] = struct{}{}
}

// Release removes a single held lock. It is a no-op if txn does not hold id.
func (t *Table) Release(txn TxnID, id objectid.ID) {
	held, ok := t.byObject[id]
	if !ok || held.holder != txn {
		return
	}
	delete(t.byObject, id)

	if objs, ok := t.byTxn[txn]; ok {
		delete(objs, id)
		if len(objs) == 0 {
			delete(t.byTxn, txn)
		}
	}
}

// ReleaseAll removes every lock held by txn and returns the freed object IDs
// so the caller can wake waiters queued on each one.
func (t *Table) ReleaseAll(txn TxnID) []objectid.ID {
	objs, ok := t.byTxn[txn]
	if !ok {
		return nil
	}

	freed := make([]objectid.ID, 0, len(objs))
	for id := range objs {
		delete(t.byObject, id)
		freed = append(freed, id)
	}
	delete(t.byTxn, txn)
	return freed
}

// HeldBy returns the set of object IDs currently locked by txn.
func (t *Table) HeldBy(txn TxnID) []objectid.ID {
	objs, ok := t.byTxn[txn]
	if !ok {
		return nil
	}
	ids := make([]objectid.ID, 0, len(objs))
	for id := range objs {
		ids = append(ids, id)
	}
	return ids
}
