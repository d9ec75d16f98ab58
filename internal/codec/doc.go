// Package codec serializes single Creation (Snapshot) and Update (Delta)
// records.
//
// The encoding is canonical JSON wrapped in a versioned, self-describing
// envelope, so Decode recovers the record kind without help from the
// caller. Encode and Decode are inverse for every record this module
// produces. Failures are returned as *change.Error so callers can contain
// them per record.
package codec
