package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/value"
)

// Create creates an entity locally with a fresh uuid. A taken name is
// resolved to the next free "Name.NNN" before the snapshot is returned, so
// peers receive the final name.
func (s *Store) Create(ctx context.Context, collection, name string, fields value.Object) (change.Snapshot, error) {
	snap := change.Snapshot{
		UUID:       s.ids.Generate(),
		Collection: collection,
		Name:       name,
		Fields:     fields.Clone(),
	}
	if snap.Fields == nil {
		snap.Fields = value.Object{}
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		final, err := s.insert(ctx, tx, snap)
		snap.Name = final
		return err
	})
	if err != nil {
		return change.Snapshot{}, fmt.Errorf("create: %w", err)
	}
	return snap, nil
}

// Update merges set into an entity's fields and deletes unset, returning
// the delta to propagate.
func (s *Store) Update(ctx context.Context, uuid string, set value.Object, unset []string) (change.Delta, error) {
	var d change.Delta
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		e, err := s.patch(ctx, tx, uuid, set, unset)
		if err != nil {
			return err
		}
		d = change.Delta{
			UUID:       e.UUID,
			Collection: e.Collection,
			Name:       e.Name,
			Set:        set.Clone(),
			Unset:      append([]string(nil), unset...),
		}
		return nil
	})
	if err != nil {
		return change.Delta{}, fmt.Errorf("update: %w", err)
	}
	return d, nil
}

// Remove removes an entity, returning the removal to propagate.
func (s *Store) Remove(ctx context.Context, uuid string) (change.Removal, error) {
	var r change.Removal
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		e, err := s.remove(ctx, tx, uuid)
		if err != nil {
			return err
		}
		r = change.Removal{UUID: e.UUID, DebugLabel: e.Label()}
		return nil
	})
	if err != nil {
		return change.Removal{}, fmt.Errorf("remove: %w", err)
	}
	return r, nil
}

// Rename renames an entity, returning the rename to propagate. Unlike a
// creation, a local rename to a taken name fails with ErrNameConflict.
func (s *Store) Rename(ctx context.Context, uuid, newName string) (change.Rename, error) {
	var r change.Rename
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := s.rename(ctx, tx, uuid, newName)
		if err != nil {
			return err
		}
		r = change.Rename{UUID: uuid, NewName: newName, DebugLabel: old.Label()}
		return nil
	})
	if err != nil {
		return change.Rename{}, fmt.Errorf("rename: %w", err)
	}
	return r, nil
}
