package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/codec"
	"github.com/roach88/mixsync/internal/gate"
	"github.com/roach88/mixsync/internal/propagate"
	"github.com/roach88/mixsync/internal/schema"
	"github.com/roach88/mixsync/internal/store"
	"github.com/roach88/mixsync/internal/testutil"
	"github.com/roach88/mixsync/internal/transport"
	"github.com/roach88/mixsync/internal/value"
	"github.com/roach88/mixsync/internal/wire"
)

// maxSyncRounds bounds how many delivery rounds one sync step may take.
// Each round drains both inboxes; renames sent in reply need a second.
const maxSyncRounds = 16

// peer is one side of a scenario.
type peer struct {
	name       string
	store      *store.Store
	gate       *gate.Switch
	translator *propagate.Translator
	dispatcher *propagate.Dispatcher
	endpoint   *transport.Endpoint
}

// Harness runs one scenario.
type Harness struct {
	peers   []*peer
	byName  map[string]*peer
	aliases map[string]string
	logger  *slog.Logger
	seq     int64
	trace   []TraceEvent
}

// Run executes a scenario and evaluates its assertions.
//
// Each peer gets a fresh in-memory store with deterministic ids
// (0000000a-..., 0000000b-...) and a deterministic clock, so the same
// scenario always produces the same trace.
func Run(scenario *Scenario) (*Result, error) {
	var validator store.Validator
	if scenario.Schema != "" {
		v, err := schema.Load(scenario.Schema)
		if err != nil {
			return nil, err
		}
		validator = v
	}

	h := &Harness{
		byName:  make(map[string]*peer),
		aliases: make(map[string]string),
		// Suppress logs in scenarios
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	pipe := transport.NewPipe()
	defer pipe.Close()
	for _, pc := range []struct {
		name   string
		prefix string
		ep     *transport.Endpoint
	}{
		{PeerA, "0000000a", pipe.A},
		{PeerB, "0000000b", pipe.B},
	} {
		p, err := h.newPeer(pc.name, pc.prefix, pc.ep, validator)
		if err != nil {
			return nil, err
		}
		defer p.store.Close()
		h.peers = append(h.peers, p)
		h.byName[p.name] = p
	}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}

	result := NewResult()
	result.Trace = append(result.Trace, h.trace...)
	for k, v := range h.aliases {
		result.Aliases[k] = v
	}
	for _, p := range h.peers {
		entities, err := p.store.List(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("read state of %s: %w", p.name, err)
		}
		states := make([]EntityState, len(entities))
		for i, e := range entities {
			states[i] = entityState(e)
		}
		result.State[p.name] = states
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) newPeer(name, idPrefix string, ep *transport.Endpoint, validator store.Validator) (*peer, error) {
	st, err := store.Open(":memory:",
		store.WithIDGenerator(testutil.NewSequentialIDs(idPrefix)),
		store.WithClock(testutil.NewDeterministicClock()),
		store.WithValidator(validator),
		store.WithLogger(h.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store for %s: %w", name, err)
	}

	sw := gate.NewSwitch(true)
	opts := []propagate.Option{propagate.WithLogger(h.logger.With("peer", name))}
	translator := propagate.NewTranslator(sw, ep, opts...)
	applier := propagate.NewApplier(sw, st, st, opts...)

	return &peer{
		name:       name,
		store:      st,
		gate:       sw,
		translator: translator,
		dispatcher: propagate.NewDispatcher(applier, translator, opts...),
		endpoint:   ep,
	}, nil
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	if step.Op == OpSync {
		return h.sync(ctx)
	}
	p := h.byName[step.Peer]

	switch step.Op {
	case OpCreate:
		fields, err := value.ObjectFromMap(step.Fields)
		if err != nil {
			return fmt.Errorf("fields: %w", err)
		}
		snap, err := p.store.Create(ctx, step.Collection, step.Name, fields)
		if ok, err := expect(step, err); !ok {
			return err
		}
		if step.As != "" {
			h.aliases[step.As] = snap.UUID
		}
		p.translator.SendCreations(change.CreationChangeset{snap})

	case OpUpdate:
		id, err := h.resolve(step.Ref)
		if err != nil {
			return err
		}
		set, err := value.ObjectFromMap(step.Set)
		if err != nil {
			return fmt.Errorf("set: %w", err)
		}
		d, err := p.store.Update(ctx, id, set, step.Unset)
		if ok, err := expect(step, err); !ok {
			return err
		}
		p.translator.SendUpdates(change.UpdateChangeset{d})

	case OpRename:
		id, err := h.resolve(step.Ref)
		if err != nil {
			return err
		}
		r, err := p.store.Rename(ctx, id, step.Name)
		if ok, err := expect(step, err); !ok {
			return err
		}
		p.translator.SendRenames(change.RenameChangeset{r})

	case OpRemove:
		id, err := h.resolve(step.Ref)
		if err != nil {
			return err
		}
		r, err := p.store.Remove(ctx, id)
		if ok, err := expect(step, err); !ok {
			return err
		}
		p.translator.SendRemovals(change.RemovalChangeset{r})

	case OpGate:
		p.gate.Set(*step.Enabled)

	case OpInject:
		typ, err := parseMessageType(step.Type)
		if err != nil {
			return err
		}
		payload := []byte(step.Raw)
		if step.Raw == "" {
			fields := make([]string, len(step.Strings))
			for i, s := range step.Strings {
				fields[i] = h.expand(s)
			}
			payload = wire.EncodeStrings(fields...)
		}
		// Injected messages bypass the sender's gate and translator.
		p.endpoint.Enqueue(wire.New(typ, payload))

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

// expect reconciles a local edit's error with the step's expect_error.
// It returns ok=true when the step should go on to send the change.
func expect(step Step, err error) (bool, error) {
	if step.ExpectError == "" {
		return err == nil, err
	}
	if err == nil {
		return false, fmt.Errorf("expected error containing %q, got success", step.ExpectError)
	}
	if !strings.Contains(err.Error(), step.ExpectError) {
		return false, fmt.Errorf("expected error containing %q, got %v", step.ExpectError, err)
	}
	return false, nil
}

func (h *Harness) resolve(ref string) (string, error) {
	id, ok := h.aliases[ref]
	if !ok {
		return "", fmt.Errorf("unknown ref %q", ref)
	}
	return id, nil
}

// expand replaces "$alias" with the alias's uuid.
func (h *Harness) expand(s string) string {
	if alias, ok := strings.CutPrefix(s, "$"); ok {
		if id, ok := h.aliases[alias]; ok {
			return id
		}
	}
	return s
}

// sync delivers messages until both inboxes stay empty for a round.
func (h *Harness) sync(ctx context.Context) error {
	for round := 0; round < maxSyncRounds; round++ {
		moved := false
		for _, p := range h.peers {
			for {
				msg, ok, err := p.endpoint.Receive()
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				moved = true
				h.deliver(ctx, p, msg)
			}
		}
		if !moved {
			return nil
		}
	}
	return fmt.Errorf("peers did not settle after %d rounds", maxSyncRounds)
}

func (h *Harness) deliver(ctx context.Context, to *peer, msg wire.Message) {
	h.seq++
	ev := describe(msg)
	ev.Seq = h.seq
	ev.To = to.name
	ev.From = h.other(to).name

	if !to.gate.Enabled() {
		ev.Outcome = OutcomeIgnored
	} else if err := to.dispatcher.Dispatch(ctx, msg); err != nil {
		ev.Outcome = string(change.CodeOf(err))
	} else {
		ev.Outcome = OutcomeApplied
	}
	h.trace = append(h.trace, ev)
}

func (h *Harness) other(p *peer) *peer {
	if p.name == PeerA {
		return h.byName[PeerB]
	}
	return h.byName[PeerA]
}

// describe reads what it can of msg for the trace. Unreadable payloads
// leave the identity fields empty.
func describe(msg wire.Message) TraceEvent {
	ev := TraceEvent{Type: msg.Type.String()}
	switch msg.Type {
	case wire.DataCreate, wire.DataUpdate:
		fields, err := wire.DecodeStrings(msg.Payload, 1)
		if err != nil {
			return ev
		}
		rec, err := codec.New().Decode([]byte(fields[0]))
		if err != nil {
			return ev
		}
		ev.UUID, ev.Label = rec.ID(), rec.Label()
	case wire.DataRemove:
		if fields, err := wire.DecodeStrings(msg.Payload, 2); err == nil {
			ev.UUID, ev.Label = fields[0], fields[1]
		}
	case wire.DataRename:
		if fields, err := wire.DecodeStrings(msg.Payload, 3); err == nil {
			ev.UUID, ev.NewName, ev.Label = fields[0], fields[1], fields[2]
		}
	}
	return ev
}

func parseMessageType(s string) (wire.MessageType, error) {
	return wire.ParseMessageType(s)
}
