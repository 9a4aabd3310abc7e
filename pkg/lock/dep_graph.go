package lock

// DependencyGraph tracks wait-for relationships between transactions for
// deadlock detection. It maintains a directed graph where an edge from A to
// B means transaction A is waiting for a lock held by transaction B.
//
// DependencyGraph has no synchronization of its own; the caller (Manager)
// holds a mutex around every call.
type DependencyGraph struct {
	edges      map[TxnID]map[TxnID]bool
	cacheValid bool
	lastResult bool
}

// NewDependencyGraph returns an empty dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		edges: make(map[TxnID]map[TxnID]bool),
	}
}

// AddEdge records that waiter is waiting for a resource held by holder.
func (dg *DependencyGraph) AddEdge(waiter, holder TxnID) {
	if dg.edges[waiter] == nil {
		dg.edges[waiter] = make(map[TxnID]bool)
	}
	dg.edges[waiter][holder] = true
	dg.cacheValid = false
}

// RemoveTxn deletes every edge where txn appears as waiter or holder.
func (dg *DependencyGraph) RemoveTxn(txn TxnID) {
	delete(dg.edges, txn)
	for waiter, holders := range dg.edges {
		if _, ok := holders[txn]; ok {
			delete(holders, txn)
			if len(holders) == 0 {
				delete(dg.edges, waiter)
			}
		}
	}
	dg.cacheValid = false
}

// HasCycle reports whether the graph as it currently stands contains a
// cycle. The result is cached until the next structural change.
//
// The Manager never calls this directly — WouldCycle checks a hypothetical
// edge before it is ever added, so a real edge closing a cycle should never
// occur. HasCycle exists as a standalone invariant check for tests to assert
// that guarantee holds independently of WouldCycle's own logic.
func (dg *DependencyGraph) HasCycle() bool {
	if dg.cacheValid {
		return dg.lastResult
	}

	visited := make(map[TxnID]bool)
	recStack := make(map[TxnID]bool)

	found := false
	for txn := range dg.edges {
		if visited[txn] {
			continue
		}
		if dg.hasCycleDFS(txn, visited, recStack) {
			found = true
			break
		}
	}

	dg.lastResult = found
	dg.cacheValid = true
	return found
}

func (dg *DependencyGraph) hasCycleDFS(txn TxnID, visited, recStack map[TxnID]bool) bool {
	visited[txn] = true
	recStack[txn] = true

	for neighbor := range dg.edges[txn] {
		if !visited[neighbor] {
			if dg.hasCycleDFS(neighbor, visited, recStack) {
				return true
			}
		} else if recStack[neighbor] {
			return true
		}
	}

	recStack[txn] = false
	return false
}

// WouldCycle reports whether adding an edge from waiter to holder would
// introduce a cycle, without mutating the graph. The lock manager calls this
// before enqueuing a request, so a doomed request never touches the wait
// queue or the real graph.
func (dg *DependencyGraph) WouldCycle(waiter, holder TxnID) bool {
	if waiter == holder {
		return true
	}
	// A cycle would close iff holder can already reach waiter: holder is
	// waiting (transitively) for something waiter holds.
	visited := make(map[TxnID]bool)
	return dg.canReach(holder, waiter, visited)
}

func (dg *DependencyGraph) canReach(from, target TxnID, visited map[TxnID]bool) bool {
	if from == target {
		return true
	}
	if visited[from] {
		return false
	}
	visited[from] = true

	for neighbor := range dg.edges[from] {
		if dg.canReach(neighbor, target, visited) {
			return true
		}
	}
	return false
}

// CyclePath returns the chain of transactions from holder to waiter that
// would close the cycle described by WouldCycle(waiter, holder), including
// both endpoints. It is used by the deterministic-victim policy to identify
// every transaction party to the deadlock. Returns nil if no such path
// exists.
func (dg *DependencyGraph) CyclePath(waiter, holder TxnID) []TxnID {
	visited := make(map[TxnID]bool)
	return dg.findPath(holder, waiter, visited)
}

func (dg *DependencyGraph) findPath(from, target TxnID, visited map[TxnID]bool) []TxnID {
	if from == target {
		return []TxnID{from}
	}
	if visited[from] {
		return nil
	}
	visited[from] = true

	for neighbor := range dg.edges[from] {
		if path := dg.findPath(neighbor, target, visited); path != nil {
			return append([]TxnID{from}, path...)
		}
	}
	return nil
}

// Waiters returns every transaction currently waiting on at least one
// resource, i.e. every node with an outgoing edge.
func (dg *DependencyGraph) Waiters() []TxnID {
	waiters := make([]TxnID, 0, len(dg.edges))
	for txn := range dg.edges {
		waiters = append(waiters, txn)
	}
	return waiters
}

// Edges returns a snapshot copy of the wait-for edges, keyed waiter->holders.
func (dg *DependencyGraph) Edges() map[TxnID][]TxnID {
	out := make(map[TxnID][]TxnID, len(dg.edges))
	for waiter, holders := range dg.edges {
		hs := make([]TxnID, 0, len(holders))
		for holder := range holders {
			hs = append(hs, holder)
		}
		out[waiter] = hs
	}
	return out
}
