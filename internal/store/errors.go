package store

import "errors"

var (
	// ErrNotFound: no live entity has the uuid.
	ErrNotFound = errors.New("entity not found")

	// ErrExists: a live entity already has the uuid.
	ErrExists = errors.New("entity already exists")

	// ErrTombstoned: the uuid belonged to a removed entity.
	ErrTombstoned = errors.New("entity was removed")

	// ErrNameConflict: the name is taken in the collection.
	ErrNameConflict = errors.New("name already in use")

	// ErrInvalid: the fields failed validation.
	ErrInvalid = errors.New("invalid fields")
)
