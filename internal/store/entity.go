package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/value"
)

// Entity is one stored entity.
type Entity struct {
	UUID       string
	Collection string
	Name       string
	Fields     value.Object
	// Version starts at 1 and increases on every patch and rename.
	Version int64
	// Seq is the logical time of the last write.
	Seq int64
}

// Label returns "collection/name".
func (e Entity) Label() string {
	return e.Collection + "/" + e.Name
}

// Snapshot returns the entity as a creation record.
func (e Entity) Snapshot() change.Snapshot {
	return change.Snapshot{
		UUID:       e.UUID,
		Collection: e.Collection,
		Name:       e.Name,
		Fields:     e.Fields.Clone(),
	}
}

// Identity returns the entity's identity.
func (e Entity) Identity() change.Identity {
	return change.Identity{UUID: e.UUID, Collection: e.Collection, Name: e.Name}
}

// Get returns the live entity with the given uuid.
func (s *Store) Get(ctx context.Context, uuid string) (Entity, error) {
	return getEntity(ctx, s.db, uuid)
}

// List returns live entities ordered by seq then uuid. An empty collection
// lists every collection.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) List(ctx context.Context, collection string) ([]Entity, error) {
	query := `
		SELECT uuid, collection, name, fields, version, seq
		FROM entities
	`
	var args []any
	if collection != "" {
		query += ` WHERE collection = ?`
		args = append(args, collection)
	}
	query += ` ORDER BY seq ASC, uuid COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	entities := []Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}

// Tombstoned reports whether uuid belonged to a removed entity.
func (s *Store) Tombstoned(ctx context.Context, uuid string) (bool, error) {
	return isTombstoned(ctx, s.db, uuid)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (Entity, error) {
	var (
		e      Entity
		fields string
	)
	if err := row.Scan(&e.UUID, &e.Collection, &e.Name, &fields, &e.Version, &e.Seq); err != nil {
		return Entity{}, err
	}
	obj, err := unmarshalFields(fields)
	if err != nil {
		return Entity{}, fmt.Errorf("entity %s: %w", e.UUID, err)
	}
	e.Fields = obj
	return e, nil
}

func getEntity(ctx context.Context, q querier, uuid string) (Entity, error) {
	row := q.QueryRowContext(ctx, `
		SELECT uuid, collection, name, fields, version, seq
		FROM entities
		WHERE uuid = ?
	`, uuid)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entity{}, fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}
	if err != nil {
		return Entity{}, fmt.Errorf("get entity: %w", err)
	}
	return e, nil
}

func isTombstoned(ctx context.Context, q querier, uuid string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tombstones WHERE uuid = ?`, uuid).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check tombstone: %w", err)
	}
	return n > 0, nil
}

// marshalFields stores fields as canonical JSON so identical content is
// byte-identical on every peer.
func marshalFields(fields value.Object) (string, error) {
	if fields == nil {
		fields = value.Object{}
	}
	data, err := value.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

func unmarshalFields(s string) (value.Object, error) {
	obj, err := value.UnmarshalObject([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return obj, nil
}
