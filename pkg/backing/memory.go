package backing

import (
	"context"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"storecache/pkg/dberror"
	"storecache/pkg/objectid"
	"storecache/pkg/logging"
)

// MemoryAdapter is an in-process backing store: an object table guarded by a
// mutex, plus a name directory. It is the default backend for tests and for
// storecli demo, standing in for whatever real object store a production
// deployment would plug in behind the same interface.
//
// Grounded on StoreMy's in-memory disk manager pattern (pkg/storage), scaled
// down to a flat map since this domain has no page format.
type MemoryAdapter struct {
	mu      sync.Mutex
	objects map[objectid.ID]memRecord
	names   map[string]objectid.ID
	appID   uuid.UUID
}

type memRecord struct {
	name  string
	value any
}

// NewMemoryAdapter returns an empty MemoryAdapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		objects: make(map[objectid.ID]memRecord),
		names:   make(map[string]objectid.ID),
		appID:   uuid.New(),
	}
}

// NewHandle returns a handle sharing this adapter's underlying object table.
// Transaction isolation is enforced above this layer by pkg/lock and
// pkg/txn; MemoryAdapter itself applies effects immediately since it has no
// durability boundary of its own to stage them behind.
func (a *MemoryAdapter) NewHandle() Handle {
	return &memoryHandle{adapter: a}
}

// memoryHandle is the transaction-scoped view of a MemoryAdapter. Since
// MemoryAdapter applies every call immediately, Commit and Abort are no-ops
// here — there is nothing left to stage or roll back at this layer once a
// call has returned, matching the "backing store trusted to provide
// atomicity" language of spec §7 for the simplest possible adapter.
type memoryHandle struct {
	adapter *MemoryAdapter
}

func (h *memoryHandle) Create(_ context.Context, id objectid.ID, value any, name string) error {
	a := h.adapter
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, exists := a.names[name]; exists && existing != id {
		return dberror.New(dberror.BackingFailure, "name already bound: "+name)
	}

	a.objects[id] = memRecord{name: name, value: value}
	a.names[name] = id
	logging.WithComponent("backing").Debug("object created", "object_id", id.String(), "name", name)
	return nil
}

func (h *memoryHandle) Destroy(_ context.Context, id objectid.ID) error {
	a := h.adapter
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.objects[id]
	if !ok {
		return nil
	}
	delete(a.objects, id)
	if rec.name != "" {
		delete(a.names, rec.name)
	}
	return nil
}

func (h *memoryHandle) Peek(_ context.Context, id objectid.ID) (any, bool, error) {
	a := h.adapter
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.objects[id]
	if !ok {
		return nil, false, nil
	}
	return rec.value, true, nil
}

func (h *memoryHandle) Lock(ctx context.Context, id objectid.ID) (any, bool, error) {
	return h.Peek(ctx, id)
}

func (h *memoryHandle) Lookup(_ context.Context, name string) (objectid.ID, error) {
	a := h.adapter
	a.mu.Lock()
	defer a.mu.Unlock()

	id, ok := a.names[name]
	if !ok {
		return objectid.Absent, nil
	}
	return id, nil
}

func (h *memoryHandle) LookupObject(_ context.Context, value any) (objectid.ID, error) {
	a := h.adapter
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, rec := range a.objects {
		if reflect.DeepEqual(rec.value, value) {
			return id, nil
		}
	}
	return objectid.Absent, nil
}

func (h *memoryHandle) Commit(_ context.Context) error { return nil }
func (h *memoryHandle) Abort(_ context.Context) error  { return nil }

func (h *memoryHandle) CurrentAppID() uuid.UUID { return h.adapter.appID }
