package lock

import (
	"slices"

	"storecache/pkg/objectid"
)

// WaitQueue is a two-way index of pending lock requests: an ordered FIFO
// queue of requests per object, and a reverse index of which object each
// transaction is waiting on. A transaction waits on at most one object at a
// time, so the reverse index maps each waiting transaction to that single
// object.
//
// WaitQueue has no synchronization of its own; the caller (Manager) holds a
// mutex around every call.
type WaitQueue struct {
	byObject map[objectid.ID][]*request
	byTxn    map[TxnID]objectid.ID
}

// NewWaitQueue returns an empty wait queue.
func NewWaitQueue() *WaitQueue {
	return &WaitQueue{
		byObject: make(map[objectid.ID][]*request),
		byTxn:    make(map[TxnID]objectid.ID),
	}
}

// Enqueue appends req to id's FIFO wait list and records that req.txn is
// waiting for id.
func (wq *WaitQueue) Enqueue(req *request) {
	wq.byObject[req.object] = append(wq.byObject[req.object], req)
	wq.byTxn[req.txn] = req.object
}

// Front returns the first request in id's wait queue, or nil if empty.
func (wq *WaitQueue) Front(id objectid.ID) *request {
	q := wq.byObject[id]
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// Remove drops txn's pending request for id, wherever it sits in the queue.
func (wq *WaitQueue) Remove(txn TxnID, id objectid.ID) {
	q, ok := wq.byObject[id]
	if ok {
		filtered := slices.DeleteFunc(slices.Clone(q), func(r *request) bool {
			return r.txn == txn
		})
		if len(filtered) > 0 {
			wq.byObject[id] = filtered
		} else {
			delete(wq.byObject, id)
		}
	}

	if waiting, ok := wq.byTxn[txn]; ok && waiting == id {
		delete(wq.byTxn, txn)
	}
}

// Get returns txn's pending request for id, if it is currently queued.
func (wq *WaitQueue) Get(txn TxnID, id objectid.ID) *request {
	for _, r := range wq.byObject[id] {
		if r.txn == txn {
			return r
		}
	}
	return nil
}

// WaitingOn reports the object txn is currently queued for, if any.
func (wq *WaitQueue) WaitingOn(txn TxnID) (objectid.ID, bool) {
	id, ok := wq.byTxn[txn]
	return id, ok
}

// PopFront removes and returns the first request in id's queue.
func (wq *WaitQueue) PopFront(id objectid.ID) *request {
	q := wq.byObject[id]
	if len(q) == 0 {
		return nil
	}
	front := q[0]
	rest := q[1:]
	if len(rest) > 0 {
		wq.byObject[id] = rest
	} else {
		delete(wq.byObject, id)
	}
	delete(wq.byTxn, front.txn)
	return front
}
