package propagate

import (
	"log/slog"
	"runtime/debug"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/codec"
	"github.com/roach88/mixsync/internal/gate"
	"github.com/roach88/mixsync/internal/metrics"
	"github.com/roach88/mixsync/internal/wire"
)

// Translator turns local changesets into outbound messages, one message per
// record, in changeset order.
//
// A record that fails to encode is logged and skipped; the rest of the
// changeset is still sent. When the gate is disabled every Send is a no-op.
type Translator struct {
	gate  gate.Gate
	out   Outbox
	codec codec.Codec
	log   *slog.Logger
	rec   metrics.Recorder
}

// NewTranslator returns a Translator writing to out.
func NewTranslator(g gate.Gate, out Outbox, opts ...Option) *Translator {
	cfg := newConfig(opts)
	return &Translator{
		gate:  g,
		out:   out,
		codec: codec.New(),
		log:   cfg.logger,
		rec:   cfg.recorder,
	}
}

// SendCreations sends one DATA_CREATE per snapshot and returns how many
// were enqueued.
func (t *Translator) SendCreations(cs change.CreationChangeset) int {
	if !t.gate.Enabled() {
		return 0
	}
	sent := 0
	for _, s := range cs {
		if t.sendRecord(wire.DataCreate, s) {
			sent++
		}
	}
	return sent
}

// SendUpdates sends one DATA_UPDATE per delta and returns how many were
// enqueued.
func (t *Translator) SendUpdates(us change.UpdateChangeset) int {
	if !t.gate.Enabled() {
		return 0
	}
	sent := 0
	for _, d := range us {
		if t.sendRecord(wire.DataUpdate, d) {
			sent++
		}
	}
	return sent
}

// SendRemovals sends one DATA_REMOVE per removal.
func (t *Translator) SendRemovals(rs change.RemovalChangeset) int {
	if !t.gate.Enabled() {
		return 0
	}
	for _, r := range rs {
		t.log.Debug("send removal", "uuid", r.UUID, "label", r.DebugLabel)
		t.enqueue(wire.New(wire.DataRemove, wire.EncodeStrings(r.UUID, r.DebugLabel)))
	}
	return len(rs)
}

// SendRenames sends one DATA_RENAME per rename.
func (t *Translator) SendRenames(rs change.RenameChangeset) int {
	if !t.gate.Enabled() {
		return 0
	}
	for _, r := range rs {
		t.log.Debug("send rename", "uuid", r.UUID, "label", r.DebugLabel, "new_name", r.NewName)
		t.enqueue(wire.New(wire.DataRename, wire.EncodeStrings(r.UUID, r.NewName, r.DebugLabel)))
	}
	return len(rs)
}

// SendBatch sends removals, renames, creations and updates, in that order.
// Removals and renames go first so names they free are available when a
// creation reuses them; creations precede updates that may reference them.
func (t *Translator) SendBatch(b *change.Batch) int {
	if !t.gate.Enabled() || b == nil {
		return 0
	}
	return t.SendRemovals(b.Removals) +
		t.SendRenames(b.Renames) +
		t.SendCreations(b.Creations) +
		t.SendUpdates(b.Updates)
}

func (t *Translator) sendRecord(typ wire.MessageType, rec change.Record) bool {
	blob, err := t.codec.Encode(rec)
	if err != nil {
		t.log.Error("encode failed, record skipped",
			"type", typ.String(),
			"uuid", rec.ID(),
			"label", rec.Label(),
			"error", err,
			"stack", string(debug.Stack()),
		)
		t.rec.Skipped(rec.Kind())
		return false
	}
	t.log.Debug("send record",
		"type", typ.String(),
		"uuid", rec.ID(),
		"label", rec.Label(),
		"digest", codec.DigestBytes(rec.Kind(), blob),
		"bytes", len(blob),
	)
	t.enqueue(wire.New(typ, wire.EncodeString(string(blob))))
	return true
}

func (t *Translator) enqueue(msg wire.Message) {
	t.out.Enqueue(msg)
	t.rec.Sent(msg.Type)
}
