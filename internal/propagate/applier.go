package propagate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/codec"
	"github.com/roach88/mixsync/internal/gate"
	"github.com/roach88/mixsync/internal/metrics"
	"github.com/roach88/mixsync/internal/wire"
)

// Applier decodes inbound messages and applies them to the local store.
//
// Every failure, whether the payload is malformed, the store rejects the
// change or the store panics, is contained to the one message: it is
// logged with a dump of the payload's head and tail and the message is
// discarded. The same policy holds for all four message types.
type Applier struct {
	gate     gate.Gate
	store    Store
	dirty    DirtyNotifier
	codec    codec.Codec
	log      *slog.Logger
	rec      metrics.Recorder
	dumpSize int
}

// NewApplier returns an Applier writing to s. dirty may be nil.
func NewApplier(g gate.Gate, s Store, dirty DirtyNotifier, opts ...Option) *Applier {
	cfg := newConfig(opts)
	return &Applier{
		gate:     g,
		store:    s,
		dirty:    dirty,
		codec:    codec.New(),
		log:      cfg.logger,
		rec:      cfg.recorder,
		dumpSize: cfg.dumpSize,
	}
}

// BuildCreate applies a DATA_CREATE payload. It returns the renames the
// store made to avoid a name collision; the caller must send them.
func (a *Applier) BuildCreate(ctx context.Context, payload []byte) change.RenameChangeset {
	secondary, _ := a.Apply(ctx, wire.New(wire.DataCreate, payload))
	return secondary
}

// BuildUpdate applies a DATA_UPDATE payload.
func (a *Applier) BuildUpdate(ctx context.Context, payload []byte) {
	_, _ = a.Apply(ctx, wire.New(wire.DataUpdate, payload))
}

// BuildRemove applies a DATA_REMOVE payload.
func (a *Applier) BuildRemove(ctx context.Context, payload []byte) {
	_, _ = a.Apply(ctx, wire.New(wire.DataRemove, payload))
}

// BuildRename applies a DATA_RENAME payload.
func (a *Applier) BuildRename(ctx context.Context, payload []byte) {
	_, _ = a.Apply(ctx, wire.New(wire.DataRename, payload))
}

// Apply applies one message. The returned error has already been logged and
// counted; it is returned for callers that want to inspect it and never
// needs to be propagated. A disabled gate returns (nil, nil).
func (a *Applier) Apply(ctx context.Context, msg wire.Message) (secondary change.RenameChangeset, err error) {
	if !a.gate.Enabled() {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			secondary = nil
			err = change.NewApplicationError(msg.Type.Kind(), "", "", fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			a.discard(msg, err)
			return
		}
		if a.dirty != nil {
			a.dirty.MarkDirty()
		}
		a.rec.Applied(msg.Type)
	}()

	switch msg.Type {
	case wire.DataCreate:
		return a.applyCreate(ctx, msg.Payload)
	case wire.DataUpdate:
		return nil, a.applyUpdate(ctx, msg.Payload)
	case wire.DataRemove:
		return nil, a.applyRemove(ctx, msg.Payload)
	case wire.DataRename:
		return nil, a.applyRename(ctx, msg.Payload)
	default:
		return nil, change.NewDecodingError(0, fmt.Errorf("unknown message type %s", msg.Type))
	}
}

func (a *Applier) applyCreate(ctx context.Context, payload []byte) (change.RenameChangeset, error) {
	blob, err := decodeBlob(change.KindCreation, payload)
	if err != nil {
		return nil, err
	}
	s, err := a.codec.DecodeSnapshot(blob)
	if err != nil {
		return nil, err
	}
	id, renames, err := a.store.CreateEntity(ctx, s)
	if err != nil {
		return nil, change.NewApplicationError(change.KindCreation, s.UUID, s.Label(), err)
	}
	a.log.Debug("applied creation",
		"uuid", id.UUID,
		"label", s.Label(),
		"name", id.Name,
		"digest", codec.DigestBytes(change.KindCreation, blob),
		"renames", len(renames),
	)
	return renames, nil
}

func (a *Applier) applyUpdate(ctx context.Context, payload []byte) error {
	blob, err := decodeBlob(change.KindUpdate, payload)
	if err != nil {
		return err
	}
	d, err := a.codec.DecodeDelta(blob)
	if err != nil {
		return err
	}
	if err := a.store.PatchEntity(ctx, d); err != nil {
		return change.NewApplicationError(change.KindUpdate, d.UUID, d.Label(), err)
	}
	a.log.Debug("applied update",
		"uuid", d.UUID,
		"label", d.Label(),
		"digest", codec.DigestBytes(change.KindUpdate, blob),
		"set", len(d.Set),
		"unset", len(d.Unset),
	)
	return nil
}

func (a *Applier) applyRemove(ctx context.Context, payload []byte) error {
	fields, err := wire.DecodeStrings(payload, 2)
	if err != nil {
		return change.NewDecodingError(change.KindRemoval, err)
	}
	uuid, label := fields[0], fields[1]
	if err := a.store.RemoveEntity(ctx, uuid); err != nil {
		return change.NewApplicationError(change.KindRemoval, uuid, label, err)
	}
	a.log.Debug("applied removal", "uuid", uuid, "label", label)
	return nil
}

func (a *Applier) applyRename(ctx context.Context, payload []byte) error {
	fields, err := wire.DecodeStrings(payload, 3)
	if err != nil {
		return change.NewDecodingError(change.KindRename, err)
	}
	uuid, newName, label := fields[0], fields[1], fields[2]
	if err := a.store.RenameEntity(ctx, uuid, newName); err != nil {
		return change.NewApplicationError(change.KindRename, uuid, label, err)
	}
	a.log.Debug("applied rename", "uuid", uuid, "label", label, "new_name", newName)
	return nil
}

// decodeBlob unwraps the single string field around a codec blob.
func decodeBlob(kind change.Kind, payload []byte) ([]byte, error) {
	fields, err := wire.DecodeStrings(payload, 1)
	if err != nil {
		return nil, change.NewDecodingError(kind, err)
	}
	return []byte(fields[0]), nil
}

func (a *Applier) discard(msg wire.Message, err error) {
	code := change.CodeOf(err)
	head, tail := dump(msg.Payload, a.dumpSize)
	a.log.Error("inbound message discarded",
		"type", msg.Type.String(),
		"code", string(code),
		"error", err,
		"payload_len", len(msg.Payload),
		"payload_head", head,
		"payload_tail", tail,
	)
	a.rec.Discarded(msg.Type, code)
}

// dump quotes up to n bytes from each end of b. When b is short enough for
// the two to overlap, tail is empty.
func dump(b []byte, n int) (head, tail string) {
	if len(b) <= n {
		return fmt.Sprintf("%q", b), ""
	}
	head = fmt.Sprintf("%q", b[:n])
	start := len(b) - n
	if start < n {
		start = n
	}
	return head, fmt.Sprintf("%q", b[start:])
}
