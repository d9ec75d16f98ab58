package cli

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mixsync/internal/transport"
	"github.com/roach88/mixsync/internal/wire"
)

const testBatch = `
changes:
  - {op: create, collection: objects, name: Cube, fields: {pass_index: 1}, as: cube}
  - {op: update, ref: cube, set: {hide_render: true}}
  - {op: create, collection: objects, name: Lamp, as: lamp}
  - {op: rename, ref: lamp, name: Light}
`

// startRelay serves a hub and returns its websocket URL.
func startRelay(t *testing.T) (*transport.Hub, string) {
	t.Helper()
	hub := transport.NewHub(nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// listener is a bare link recording what the relay forwards to it.
type listener struct {
	mu   sync.Mutex
	msgs []wire.Message
}

func listen(t *testing.T, ctx context.Context, url string) *listener {
	t.Helper()
	link, err := transport.Dial(ctx, url, nil, nil)
	require.NoError(t, err)
	l := &listener{}
	go func() {
		_ = link.Run(ctx, func(_ context.Context, msg wire.Message) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.msgs = append(l.msgs, msg)
		})
	}()
	return l
}

func (l *listener) types() []wire.MessageType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]wire.MessageType, len(l.msgs))
	for i, m := range l.msgs {
		out[i] = m.Type
	}
	return out
}

func TestApply_LocalOnly(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "a.db")
	batch := writeFile(t, dir, "batch.yaml", testBatch)

	out, err := execute(t, NewApplyCommand(&RootOptions{Format: "json"}), "--db", db, batch)
	require.NoError(t, err)

	var resp struct {
		Data ApplyResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	// The update and rename fold into the two creations.
	assert.Equal(t, 2, resp.Data.Creations)
	assert.Equal(t, 0, resp.Data.Updates)
	assert.Equal(t, 0, resp.Data.Renames)
	assert.Equal(t, 0, resp.Data.Sent)
	assert.Len(t, resp.Data.Created, 2)

	entities := listEntities(t, db)
	require.Len(t, entities, 2)
	assert.Equal(t, "Cube", entities[0].Name)
	assert.Contains(t, entities[0].Fields, "hide_render")
	assert.Equal(t, "Light", entities[1].Name)
}

func TestApply_ExistingEntities(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "a.db")
	ids := seedStore(t, db, "Cube", "Sphere")
	batch := writeFile(t, dir, "batch.yaml", `
changes:
  - {op: rename, uuid: `+ids[0]+`, name: Box}
  - {op: remove, uuid: `+ids[1]+`}
`)

	out, err := execute(t, NewApplyCommand(&RootOptions{Format: "text"}), "--db", db, batch)
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 0 creation(s), 0 update(s), 1 rename(s), 1 removal(s)")

	entities := listEntities(t, db)
	require.Len(t, entities, 1)
	assert.Equal(t, "Box", entities[0].Name)
}

func TestApply_FailingChange(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "a.db")
	batch := writeFile(t, dir, "batch.yaml", `
changes:
  - {op: remove, uuid: 0190a1b2-0000-7000-8000-00000000dead}
`)

	out, err := execute(t, NewApplyCommand(&RootOptions{Format: "text"}), "--db", db, batch)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "change 1 (remove) failed")
	assert.Contains(t, err.Error(), "entity not found")
}

func TestLoadBatch_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "changes: [{op: create, collection: o, name: n, colour: red}]", "field colour not found"},
		{"unknown op", "changes: [{op: explode}]", "change 1 (explode): unknown op"},
		{"create without name", "changes: [{op: create, collection: o}]", "collection and name are required"},
		{"rename without name", "changes: [{op: rename, uuid: u}]", "name is required"},
		{"uuid and ref", "changes: [{op: remove, uuid: u, ref: r}]", "exactly one of uuid and ref"},
		{"neither uuid nor ref", "changes: [{op: update}]", "exactly one of uuid and ref"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBatch(writeFile(t, t.TempDir(), "batch.yaml", tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApply_RequiresDB(t *testing.T) {
	batch := writeFile(t, t.TempDir(), "batch.yaml", testBatch)

	_, err := execute(t, NewApplyCommand(&RootOptions{Format: "text"}), batch)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestApply_SendsThroughRelay(t *testing.T) {
	hub, url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := listen(t, ctx, url)
	require.Eventually(t, func() bool { return hub.Peers() == 1 }, 2*time.Second, 10*time.Millisecond)

	dir := t.TempDir()
	db := filepath.Join(dir, "a.db")
	ids := seedStore(t, db, "Old")
	batch := writeFile(t, dir, "batch.yaml", `
changes:
  - {op: create, collection: objects, name: Cube, as: cube}
  - {op: update, uuid: `+ids[0]+`, set: {pass_index: 9}}
  - {op: remove, uuid: `+ids[0]+`}
  - {op: create, collection: objects, name: Lamp}
`)

	out, err := execute(t, NewApplyCommand(&RootOptions{Format: "text"}), "--db", db, "--url", url, batch)
	require.NoError(t, err)
	assert.Contains(t, out, "Sent 3 message(s)")

	require.Eventually(t, func() bool { return len(l.types()) == 3 }, 2*time.Second, 10*time.Millisecond)
	// Removals go out before creations.
	assert.Equal(t, []wire.MessageType{wire.DataRemove, wire.DataCreate, wire.DataCreate}, l.types())
}

func TestApply_SyncDisabledSendsNothing(t *testing.T) {
	_, url := startRelay(t)

	dir := t.TempDir()
	db := filepath.Join(dir, "a.db")
	batch := writeFile(t, dir, "batch.yaml", testBatch)

	out, err := execute(t, NewApplyCommand(&RootOptions{Format: "text"}), "--db", db, "--url", url, "--sync=false", batch)
	require.NoError(t, err)
	assert.Contains(t, out, "Sent 0 message(s)")
	assert.Len(t, listEntities(t, db), 2)
}

func TestApply_UnreachableRelay(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "a.db")
	batch := writeFile(t, dir, "batch.yaml", testBatch)

	_, err := execute(t, NewApplyCommand(&RootOptions{Format: "text"}), "--db", db, "--url", "ws://127.0.0.1:1/sync", batch)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to send changes")
	assert.Contains(t, err.Error(), "2 local change(s) were saved to "+db+" but not delivered")

	// The edits stay in the local store.
	assert.Len(t, listEntities(t, db), 2)
}
