package propagate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/codec"
	"github.com/roach88/mixsync/internal/value"
	"github.com/roach88/mixsync/internal/wire"
)

// countingRecorder tallies Recorder calls.
type countingRecorder struct {
	mu        sync.Mutex
	sent      map[wire.MessageType]int
	skipped   map[change.Kind]int
	applied   map[wire.MessageType]int
	discarded map[change.ErrorCode]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		sent:      map[wire.MessageType]int{},
		skipped:   map[change.Kind]int{},
		applied:   map[wire.MessageType]int{},
		discarded: map[change.ErrorCode]int{},
	}
}

func (r *countingRecorder) Sent(t wire.MessageType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[t]++
}

func (r *countingRecorder) Skipped(k change.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped[k]++
}

func (r *countingRecorder) Applied(t wire.MessageType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied[t]++
}

func (r *countingRecorder) Discarded(_ wire.MessageType, code change.ErrorCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discarded[code]++
}

func snapshot(id, name string) change.Snapshot {
	return change.Snapshot{
		UUID:       id,
		Collection: "objects",
		Name:       name,
		Fields: value.Obj(
			value.F("location", value.Arr(value.Float(0), value.Float(1.5), value.Float(0))),
			value.F("hide_render", value.Bool(false)),
		),
	}
}

func delta(id, name string, set value.Object) change.Delta {
	return change.Delta{UUID: id, Collection: "objects", Name: name, Set: set}
}

// createPayload builds a DATA_CREATE payload the way a Translator would.
func createPayload(t *testing.T, s change.Snapshot) []byte {
	t.Helper()
	blob, err := codec.New().Encode(s)
	require.NoError(t, err)
	return wire.EncodeString(string(blob))
}

func updatePayload(t *testing.T, d change.Delta) []byte {
	t.Helper()
	blob, err := codec.New().Encode(d)
	require.NoError(t, err)
	return wire.EncodeString(string(blob))
}

// decodeRecord reverses a Translator CREATE/UPDATE payload.
func decodeRecord(t *testing.T, msg wire.Message) change.Record {
	t.Helper()
	fields, err := wire.DecodeStrings(msg.Payload, 1)
	require.NoError(t, err)
	rec, err := codec.New().Decode([]byte(fields[0]))
	require.NoError(t, err)
	return rec
}
