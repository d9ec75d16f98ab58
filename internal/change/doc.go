// Package change defines the mutation records exchanged between peers:
// creations (Snapshot), updates (Delta), removals and renames, the
// changesets that carry them in producer order, and the error taxonomy used
// to contain per-record failures.
//
// Every record that references an existing entity carries its UUID, which is
// stable across renames and never reused after removal within a session.
package change
