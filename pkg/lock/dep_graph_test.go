package lock

import "testing"

func TestDependencyGraphAddEdgeAndHasCycle(t *testing.T) {
	dg := NewDependencyGraph()

	dg.AddEdge(1, 2)
	if dg.HasCycle() {
		t.Fatal("single edge should not be a cycle")
	}

	dg.AddEdge(2, 1)
	if !dg.HasCycle() {
		t.Fatal("expected cycle 1->2->1")
	}
}

func TestDependencyGraphHasCycleCaching(t *testing.T) {
	dg := NewDependencyGraph()
	dg.AddEdge(1, 2)

	if dg.HasCycle() {
		t.Fatal("no cycle expected")
	}
	if !dg.cacheValid {
		t.Fatal("expected cache to be valid after HasCycle call")
	}

	dg.AddEdge(2, 1)
	if dg.cacheValid {
		t.Fatal("expected cache to be invalidated by AddEdge")
	}
	if !dg.HasCycle() {
		t.Fatal("expected cycle after adding the closing edge")
	}
}

func TestDependencyGraphRemoveTxnBreaksCycle(t *testing.T) {
	dg := NewDependencyGraph()
	dg.AddEdge(1, 2)
	dg.AddEdge(2, 1)

	if !dg.HasCycle() {
		t.Fatal("expected cycle before removal")
	}

	dg.RemoveTxn(2)
	if dg.HasCycle() {
		t.Fatal("cycle should be broken after removing a participant")
	}
}

func TestWouldCycleDetectsHypotheticalEdge(t *testing.T) {
	dg := NewDependencyGraph()
	dg.AddEdge(2, 3) // 2 waits for 3

	if dg.WouldCycle(1, 2) {
		t.Fatal("1->2 should not create a cycle, no path back to 1")
	}

	dg.AddEdge(3, 1) // 3 waits for 1: now 1->2->3->1 would be a cycle
	if !dg.WouldCycle(1, 2) {
		t.Fatal("expected hypothetical edge 1->2 to close a cycle via 2->3->1")
	}

	// The graph itself must be unchanged: WouldCycle never mutates.
	if len(dg.edges[1]) != 0 {
		t.Fatal("WouldCycle must not add edges to the real graph")
	}
}

func TestWouldCycleSelfWait(t *testing.T) {
	dg := NewDependencyGraph()
	if !dg.WouldCycle(1, 1) {
		t.Fatal("a transaction waiting on itself is trivially a cycle")
	}
}

func TestCyclePathReturnsChain(t *testing.T) {
	dg := NewDependencyGraph()
	dg.AddEdge(2, 3)
	dg.AddEdge(3, 1)

	path := dg.CyclePath(1, 2)
	if len(path) == 0 {
		t.Fatal("expected a non-empty cycle path")
	}
	if path[0] != 2 || path[len(path)-1] != 1 {
		t.Fatalf("expected path from 2 to 1, got %v", path)
	}
}

func TestEdgesSnapshot(t *testing.T) {
	dg := NewDependencyGraph()
	dg.AddEdge(1, 2)
	dg.AddEdge(1, 3)

	edges := dg.Edges()
	holders := edges[1]
	if len(holders) != 2 {
		t.Fatalf("expected 2 holders for waiter 1, got %v", holders)
	}
}
