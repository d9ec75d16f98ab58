// Package store provides SQLite-backed storage for replicated entities.
//
// Every entity has a stable uuid, a collection, a name unique within its
// collection, and a fields object stored as canonical JSON.
//
// # Names
//
// Names are compared in Unicode NFC form. When a creation arrives for a name
// that is taken, the entity is stored as the first free "Name.NNN" (Name.001,
// Name.002, ...); a name that already ends in a numeric suffix continues
// counting from it.
//
// # Removal
//
// Removed entities leave a tombstone. Creating a tombstoned uuid fails with
// ErrTombstoned, so a creation that crosses a removal on the wire does not
// resurrect the entity.
//
// # Ordering
//
// Writes are stamped with seq from a logical Clock, never wall time.
// List orders by seq ASC, uuid ASC COLLATE BINARY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
