// Package txn implements the Transaction Context: the transactional view of
// the object store that application code interacts with directly.
//
// A Context owns a private cache keyed by Object ID, a pending-update set
// referencing entries by ID only (per the arena-like scheme in spec.md §9,
// avoiding a direct-handle cycle between contexts and cache entries), and
// the set of locks it currently holds. All reads check the private cache
// first (read-your-writes), then the process-wide Shared Cache, then the
// backing store; all writes go through the Lock Manager before any cached
// value is trusted for mutation.
//
// Grounded on StoreMy's pkg/concurrency/transaction: TransactionContext's
// status machine and statistics counters, and TransactionRegistry's
// process-wide map from identity to context, adapted from page-oriented
// WAL bookkeeping to object-oriented cache/pending-set bookkeeping.
package txn
