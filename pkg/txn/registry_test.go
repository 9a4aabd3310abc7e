package txn

import (
	"context"
	"testing"
)

func TestRegistryBeginAssignsUniqueIDs(t *testing.T) {
	reg, _ := newTestRegistry(10)

	t1 := reg.Begin()
	t2 := reg.Begin()

	if t1.ID() == t2.ID() {
		t.Fatal("expected distinct transaction IDs")
	}
	if reg.Count() != 2 {
		t.Errorf("expected 2 registered transactions, got %d", reg.Count())
	}
}

func TestRegistryGetUnknownFails(t *testing.T) {
	reg, _ := newTestRegistry(10)

	if _, err := reg.Get(ID(999999)); err == nil {
		t.Fatal("expected error looking up an unregistered transaction")
	}
}

func TestRegistryActiveExcludesTerminated(t *testing.T) {
	reg, _ := newTestRegistry(10)
	ctx := context.Background()

	t1 := reg.Begin()
	t2 := reg.Begin()

	if err := t1.Abort(ctx); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}

	active := reg.Active()
	if len(active) != 1 || active[0].ID() != t2.ID() {
		t.Errorf("expected only t2 active, got %v", active)
	}
}

func TestRegistryRemove(t *testing.T) {
	reg, _ := newTestRegistry(10)
	txn := reg.Begin()

	reg.Remove(txn.ID())

	if _, err := reg.Get(txn.ID()); err == nil {
		t.Fatal("expected error after Remove")
	}
	if reg.Count() != 0 {
		t.Errorf("expected empty registry after Remove, got %d", reg.Count())
	}
}
