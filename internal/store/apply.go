package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/value"
)

// CreateEntity creates an entity received from a peer, keeping its uuid.
//
// If the name is taken in the collection the entity is stored under the
// next free "Name.NNN" and the returned changeset holds the one rename
// peers must apply to converge.
func (s *Store) CreateEntity(ctx context.Context, snap change.Snapshot) (change.Identity, change.RenameChangeset, error) {
	var (
		id      change.Identity
		renames change.RenameChangeset
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		name, err := s.insert(ctx, tx, snap)
		if err != nil {
			return err
		}
		id = change.Identity{UUID: snap.UUID, Collection: snap.Collection, Name: name}
		if name != snap.Name {
			renames = change.RenameChangeset{{
				UUID:       snap.UUID,
				NewName:    name,
				DebugLabel: snap.Label(),
			}}
		}
		return nil
	})
	if err != nil {
		return change.Identity{}, nil, fmt.Errorf("create entity: %w", err)
	}
	if len(renames) > 0 {
		s.log.Info("name collision resolved", "uuid", id.UUID, "label", snap.Label(), "name", id.Name)
	}
	return id, renames, nil
}

// insert writes snap under a free name and returns the name used.
func (s *Store) insert(ctx context.Context, tx *sql.Tx, snap change.Snapshot) (string, error) {
	if snap.UUID == "" {
		return "", fmt.Errorf("empty uuid")
	}
	tomb, err := isTombstoned(ctx, tx, snap.UUID)
	if err != nil {
		return "", err
	}
	if tomb {
		return "", fmt.Errorf("%w: %s", ErrTombstoned, snap.UUID)
	}
	if _, err := getEntity(ctx, tx, snap.UUID); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, snap.UUID)
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if err := s.validate(snap.Collection, snap.Fields); err != nil {
		return "", err
	}

	name, err := freeName(ctx, tx, snap.Collection, snap.Name)
	if err != nil {
		return "", err
	}
	fields, err := marshalFields(snap.Fields)
	if err != nil {
		return "", err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (uuid, collection, name, name_key, fields, version, seq)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`, snap.UUID, snap.Collection, name, nameKey(name), fields, s.clock.Next())
	if err != nil {
		return "", fmt.Errorf("insert: %w", err)
	}
	return name, nil
}

// PatchEntity applies a delta received from a peer. Set keys are merged
// into the stored fields and Unset keys deleted.
func (s *Store) PatchEntity(ctx context.Context, d change.Delta) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.patch(ctx, tx, d.UUID, d.Set, d.Unset)
		return err
	})
	if err != nil {
		return fmt.Errorf("patch entity: %w", err)
	}
	return nil
}

func (s *Store) patch(ctx context.Context, tx *sql.Tx, uuid string, set value.Object, unset []string) (Entity, error) {
	e, err := getEntity(ctx, tx, uuid)
	if err != nil {
		return Entity{}, err
	}
	e.Fields = change.Delta{Set: set, Unset: unset}.Apply(e.Fields)
	if err := s.validate(e.Collection, e.Fields); err != nil {
		return Entity{}, err
	}
	fields, err := marshalFields(e.Fields)
	if err != nil {
		return Entity{}, err
	}
	e.Version++
	e.Seq = s.clock.Next()
	_, err = tx.ExecContext(ctx, `
		UPDATE entities SET fields = ?, version = ?, seq = ? WHERE uuid = ?
	`, fields, e.Version, e.Seq, uuid)
	if err != nil {
		return Entity{}, fmt.Errorf("update: %w", err)
	}
	return e, nil
}

// RemoveEntity removes an entity and leaves a tombstone so a late creation
// of the same uuid is refused.
func (s *Store) RemoveEntity(ctx context.Context, uuid string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.remove(ctx, tx, uuid)
		return err
	})
	if err != nil {
		return fmt.Errorf("remove entity: %w", err)
	}
	return nil
}

func (s *Store) remove(ctx context.Context, tx *sql.Tx, uuid string) (Entity, error) {
	e, err := getEntity(ctx, tx, uuid)
	if err != nil {
		return Entity{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE uuid = ?`, uuid); err != nil {
		return Entity{}, fmt.Errorf("delete: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tombstones (uuid, label, seq) VALUES (?, ?, ?)
		ON CONFLICT(uuid) DO NOTHING
	`, uuid, e.Label(), s.clock.Next())
	if err != nil {
		return Entity{}, fmt.Errorf("tombstone: %w", err)
	}
	return e, nil
}

// RenameEntity renames an entity to a name chosen by a peer. A name taken
// by another entity is an error; the store does not pick a new one, since
// the peer's name is already the resolution of a collision.
func (s *Store) RenameEntity(ctx context.Context, uuid, newName string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.rename(ctx, tx, uuid, newName)
		return err
	})
	if err != nil {
		return fmt.Errorf("rename entity: %w", err)
	}
	return nil
}

func (s *Store) rename(ctx context.Context, tx *sql.Tx, uuid, newName string) (Entity, error) {
	e, err := getEntity(ctx, tx, uuid)
	if err != nil {
		return Entity{}, err
	}
	if newName == "" {
		return Entity{}, fmt.Errorf("empty name")
	}
	taken, err := nameTaken(ctx, tx, e.Collection, newName, uuid)
	if err != nil {
		return Entity{}, err
	}
	if taken {
		return Entity{}, fmt.Errorf("%w: %q in %s", ErrNameConflict, newName, e.Collection)
	}
	old := e
	e.Name = newName
	e.Version++
	e.Seq = s.clock.Next()
	_, err = tx.ExecContext(ctx, `
		UPDATE entities SET name = ?, name_key = ?, version = ?, seq = ? WHERE uuid = ?
	`, e.Name, nameKey(e.Name), e.Version, e.Seq, uuid)
	if err != nil {
		return Entity{}, fmt.Errorf("update: %w", err)
	}
	return old, nil
}

func (s *Store) validate(collection string, fields value.Object) error {
	if s.validator == nil {
		return nil
	}
	if err := s.validator.Validate(collection, fields); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
