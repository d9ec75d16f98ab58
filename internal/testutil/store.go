package testutil

import (
	"context"
	"sync"

	"github.com/roach88/mixsync/internal/change"
)

// Call is one method invocation recorded by Store.
type Call struct {
	Method string
	UUID   string

	Snapshot change.Snapshot
	Delta    change.Delta
	NewName  string
}

// Store is a scriptable store fake. Each hook, when set, decides the result
// of the matching method; unset hooks succeed. Every call is recorded,
// including ones that fail or panic.
type Store struct {
	mu    sync.Mutex
	calls []Call

	OnCreate func(change.Snapshot) (change.Identity, change.RenameChangeset, error)
	OnPatch  func(change.Delta) error
	OnRemove func(uuid string) error
	OnRename func(uuid, newName string) error
}

func (s *Store) record(c Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *Store) CreateEntity(_ context.Context, snap change.Snapshot) (change.Identity, change.RenameChangeset, error) {
	s.record(Call{Method: "create", UUID: snap.UUID, Snapshot: snap})
	if s.OnCreate != nil {
		return s.OnCreate(snap)
	}
	return change.Identity{UUID: snap.UUID, Collection: snap.Collection, Name: snap.Name}, nil, nil
}

func (s *Store) PatchEntity(_ context.Context, d change.Delta) error {
	s.record(Call{Method: "patch", UUID: d.UUID, Delta: d})
	if s.OnPatch != nil {
		return s.OnPatch(d)
	}
	return nil
}

func (s *Store) RemoveEntity(_ context.Context, uuid string) error {
	s.record(Call{Method: "remove", UUID: uuid})
	if s.OnRemove != nil {
		return s.OnRemove(uuid)
	}
	return nil
}

func (s *Store) RenameEntity(_ context.Context, uuid, newName string) error {
	s.record(Call{Method: "rename", UUID: uuid, NewName: newName})
	if s.OnRename != nil {
		return s.OnRename(uuid, newName)
	}
	return nil
}

// Calls returns a copy of the recorded calls.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Dirty counts MarkDirty calls.
type Dirty struct {
	mu sync.Mutex
	n  int
}

func (d *Dirty) MarkDirty() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.n++
}

// Count returns how many times MarkDirty was called.
func (d *Dirty) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}
