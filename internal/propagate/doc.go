// Package propagate replicates entity changes between peers.
//
// The Translator turns local changesets into wire messages and hands them to
// an Outbox. The Applier decodes inbound messages and writes them to a Store.
// A Dispatcher ties the two together for a connected peer: renames the
// Store makes while resolving a name collision on an inbound creation are
// fed back to the Translator so every peer converges on the same name.
//
// Both directions are gated. While the gate is disabled nothing is sent and
// inbound messages are ignored.
package propagate
