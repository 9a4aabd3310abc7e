package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"storecache/pkg/dberror"
	"storecache/pkg/objectid"
)

func TestNewManager(t *testing.T) {
	m := NewManager()

	if m == nil {
		t.Fatal("NewManager() returned nil")
	}
	if m.table == nil {
		t.Error("table not initialized")
	}
	if m.waitQueue == nil {
		t.Error("waitQueue not initialized")
	}
	if m.depGraph == nil {
		t.Error("depGraph not initialized")
	}
	if m.policy != RequesterVictim {
		t.Error("default policy should be RequesterVictim")
	}
}

func TestAcquireUncontended(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	id := objectid.ID(1)

	if err := m.Acquire(ctx, 1, id); err != nil {
		t.Fatalf("Acquire failed on unlocked object: %v", err)
	}

	if !m.IsLocked(id) {
		t.Error("object should be locked after Acquire")
	}

	held := m.HeldBy(1)
	if len(held) != 1 || held[0] != id {
		t.Errorf("expected txn 1 to hold [%v], got %v", id, held)
	}
}

func TestAcquireIdempotentForHolder(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	id := objectid.ID(1)

	if err := m.Acquire(ctx, 1, id); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := m.Acquire(ctx, 1, id); err != nil {
		t.Fatalf("re-acquire by holder should succeed: %v", err)
	}
}

func TestAcquireBlocksThenGrantsOnRelease(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	id := objectid.ID(1)

	if err := m.Acquire(ctx, 1, id); err != nil {
		t.Fatalf("txn 1 failed to acquire: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- m.Acquire(ctx, 2, id)
	}()

	select {
	case <-acquired:
		t.Fatal("txn 2 should not have acquired the lock yet")
	case <-time.After(50 * time.Millisecond):
	}

	m.Release(1, id)

	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("txn 2 failed to acquire after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("txn 2 never got the lock after release")
	}

	held := m.HeldBy(2)
	if len(held) != 1 || held[0] != id {
		t.Errorf("expected txn 2 to hold [%v], got %v", id, held)
	}
}

func TestAcquireDeadlockRequesterVictim(t *testing.T) {
	m := NewManager(WithPolicy(RequesterVictim))
	ctx := context.Background()
	objA := objectid.ID(1)
	objB := objectid.ID(2)

	if err := m.Acquire(ctx, 1, objA); err != nil {
		t.Fatalf("txn 1 failed to acquire A: %v", err)
	}
	if err := m.Acquire(ctx, 2, objB); err != nil {
		t.Fatalf("txn 2 failed to acquire B: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Acquire(ctx, 1, objB); err != nil {
			t.Errorf("txn 1 waiting on B should not itself error: %v", err)
		}
	}()

	// Give txn 1's request time to enqueue against B before txn 2 requests A,
	// closing the cycle.
	time.Sleep(20 * time.Millisecond)

	err := m.Acquire(ctx, 2, objA)
	if err == nil {
		t.Fatal("expected deadlock error, got nil")
	}

	dbErr, ok := err.(*dberror.Error)
	if !ok {
		t.Fatalf("expected *dberror.Error, got %T", err)
	}
	if dbErr.Kind != dberror.Deadlock {
		t.Errorf("expected Deadlock kind, got %v", dbErr.Kind)
	}

	// The victim, txn 2, gives up its locks; freeing B unblocks txn 1's wait
	// so the goroutine can finish.
	m.ReleaseAll(2)
	wg.Wait()
}

func TestAcquireContextCancellation(t *testing.T) {
	m := NewManager()
	id := objectid.ID(1)

	if err := m.Acquire(context.Background(), 1, id); err != nil {
		t.Fatalf("txn 1 failed to acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.Acquire(ctx, 2, id)
	if err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}

	if m.IsLocked(id) {
		if held, _ := m.table.HolderOf(id); held == 2 {
			t.Error("txn 2 should not hold the lock after cancellation")
		}
	}
}

func TestAcquireTimeout(t *testing.T) {
	m := NewManager(WithAcquireTimeout(20 * time.Millisecond))
	id := objectid.ID(1)
	ctx := context.Background()

	if err := m.Acquire(ctx, 1, id); err != nil {
		t.Fatalf("txn 1 failed to acquire: %v", err)
	}

	err := m.Acquire(ctx, 2, id)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	dbErr, ok := err.(*dberror.Error)
	if !ok || dbErr.Kind != dberror.Deadlock {
		t.Fatalf("expected Deadlock-kind timeout error, got %v", err)
	}
}

func TestReleaseAllWakesEveryWaiter(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	objA := objectid.ID(1)
	objB := objectid.ID(2)

	if err := m.Acquire(ctx, 1, objA); err != nil {
		t.Fatalf("txn 1 failed to acquire A: %v", err)
	}
	if err := m.Acquire(ctx, 1, objB); err != nil {
		t.Fatalf("txn 1 failed to acquire B: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results <- m.Acquire(ctx, 2, objA)
	}()
	go func() {
		defer wg.Done()
		results <- m.Acquire(ctx, 3, objB)
	}()

	time.Sleep(20 * time.Millisecond)
	m.ReleaseAll(1)
	wg.Wait()
	close(results)

	for err := range results {
		if err != nil {
			t.Errorf("waiter failed to acquire after ReleaseAll: %v", err)
		}
	}
}

func TestSnapshotReflectsHoldersAndWaiters(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	id := objectid.ID(1)

	if err := m.Acquire(ctx, 1, id); err != nil {
		t.Fatalf("txn 1 failed to acquire: %v", err)
	}

	go m.Acquire(ctx, 2, id)
	time.Sleep(20 * time.Millisecond)

	snap := m.Snapshot()
	if snap.Holders[id] != 1 {
		t.Errorf("expected txn 1 to hold %v, snapshot says %v", id, snap.Holders[id])
	}
	waiters := snap.Waiters[id]
	if len(waiters) != 1 || waiters[0] != 2 {
		t.Errorf("expected txn 2 waiting on %v, got %v", id, waiters)
	}

	m.Release(1, id)
}
