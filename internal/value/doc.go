// Package value provides the field-value model carried by entity snapshots
// and update deltas, and its canonical JSON encoding.
//
// Value is sealed: only the types in this package implement it. The encoding
// is deterministic (sorted keys, fixed number formatting) so two peers that
// hold the same data produce byte-identical payloads and digests.
//
// This package imports nothing internal.
package value
