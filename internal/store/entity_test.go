package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/testutil"
	"github.com/roach88/mixsync/internal/value"
)

func remoteSnapshot(id, name string) change.Snapshot {
	return change.Snapshot{
		UUID:       id,
		Collection: "objects",
		Name:       name,
		Fields:     value.Obj(value.F("pass_index", value.Int(1))),
	}
}

func TestCreateEntity_StoresSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	snap := remoteSnapshot("uuid-a", "Cube")
	id, renames, err := s.CreateEntity(ctx, snap)
	require.NoError(t, err)
	assert.Empty(t, renames)
	assert.Equal(t, change.Identity{UUID: "uuid-a", Collection: "objects", Name: "Cube"}, id)

	e, err := s.Get(ctx, "uuid-a")
	require.NoError(t, err)
	assert.Equal(t, snap, e.Snapshot())
	assert.Equal(t, int64(1), e.Version)
}

func TestCreateEntity_NameCollision(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, _, err := s.CreateEntity(ctx, remoteSnapshot("uuid-a", "Cube"))
	require.NoError(t, err)

	id, renames, err := s.CreateEntity(ctx, remoteSnapshot("uuid-b", "Cube"))
	require.NoError(t, err)
	assert.Equal(t, "Cube.001", id.Name)
	assert.Equal(t, change.RenameChangeset{{UUID: "uuid-b", NewName: "Cube.001", DebugLabel: "objects/Cube"}}, renames)

	id, renames, err = s.CreateEntity(ctx, remoteSnapshot("uuid-c", "Cube"))
	require.NoError(t, err)
	assert.Equal(t, "Cube.002", id.Name)
	require.Len(t, renames, 1)

	// A suffixed name continues from its own number.
	id, _, err = s.CreateEntity(ctx, remoteSnapshot("uuid-d", "Cube.002"))
	require.NoError(t, err)
	assert.Equal(t, "Cube.003", id.Name)
}

func TestCreateEntity_NamesCompareInNFC(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	composed := "Caf\u00e9"
	decomposed := "Cafe\u0301"

	_, _, err := s.CreateEntity(ctx, remoteSnapshot("uuid-a", composed))
	require.NoError(t, err)
	id, renames, err := s.CreateEntity(ctx, remoteSnapshot("uuid-b", decomposed))
	require.NoError(t, err)
	assert.Equal(t, decomposed+".001", id.Name)
	assert.Len(t, renames, 1)
}

func TestCreateEntity_SameNameOtherCollection(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, _, err := s.CreateEntity(ctx, remoteSnapshot("uuid-a", "Cube"))
	require.NoError(t, err)

	mesh := remoteSnapshot("uuid-m", "Cube")
	mesh.Collection = "meshes"
	id, renames, err := s.CreateEntity(ctx, mesh)
	require.NoError(t, err)
	assert.Equal(t, "Cube", id.Name)
	assert.Empty(t, renames)
}

func TestCreateEntity_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, _, err := s.CreateEntity(ctx, remoteSnapshot("uuid-a", "Cube"))
	require.NoError(t, err)

	_, _, err = s.CreateEntity(ctx, remoteSnapshot("uuid-a", "Other"))
	assert.ErrorIs(t, err, ErrExists)

	require.NoError(t, s.RemoveEntity(ctx, "uuid-a"))
	_, _, err = s.CreateEntity(ctx, remoteSnapshot("uuid-a", "Cube"))
	assert.ErrorIs(t, err, ErrTombstoned)

	_, _, err = s.CreateEntity(ctx, remoteSnapshot("", "Cube"))
	assert.Error(t, err)
}

func TestPatchEntity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	snap := remoteSnapshot("uuid-a", "Cube")
	snap.Fields["parent"] = value.String("uuid-p")
	_, _, err := s.CreateEntity(ctx, snap)
	require.NoError(t, err)

	err = s.PatchEntity(ctx, change.Delta{
		UUID:  "uuid-a",
		Set:   value.Obj(value.F("pass_index", value.Int(5)), value.F("hide_render", value.Bool(true))),
		Unset: []string{"parent"},
	})
	require.NoError(t, err)

	e, err := s.Get(ctx, "uuid-a")
	require.NoError(t, err)
	assert.Equal(t, value.Obj(
		value.F("pass_index", value.Int(5)),
		value.F("hide_render", value.Bool(true)),
	), e.Fields)
	assert.Equal(t, int64(2), e.Version)

	err = s.PatchEntity(ctx, change.Delta{UUID: "uuid-missing", Set: value.Object{}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveEntity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, _, err := s.CreateEntity(ctx, remoteSnapshot("uuid-a", "Cube"))
	require.NoError(t, err)
	require.NoError(t, s.RemoveEntity(ctx, "uuid-a"))

	_, err = s.Get(ctx, "uuid-a")
	assert.ErrorIs(t, err, ErrNotFound)
	tomb, err := s.Tombstoned(ctx, "uuid-a")
	require.NoError(t, err)
	assert.True(t, tomb)

	assert.ErrorIs(t, s.RemoveEntity(ctx, "uuid-a"), ErrNotFound)

	// The name is free again.
	id, renames, err := s.CreateEntity(ctx, remoteSnapshot("uuid-b", "Cube"))
	require.NoError(t, err)
	assert.Equal(t, "Cube", id.Name)
	assert.Empty(t, renames)
}

func TestRenameEntity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, _, err := s.CreateEntity(ctx, remoteSnapshot("uuid-a", "Cube"))
	require.NoError(t, err)
	_, _, err = s.CreateEntity(ctx, remoteSnapshot("uuid-b", "Sphere"))
	require.NoError(t, err)

	require.NoError(t, s.RenameEntity(ctx, "uuid-a", "Cone"))
	e, err := s.Get(ctx, "uuid-a")
	require.NoError(t, err)
	assert.Equal(t, "Cone", e.Name)
	assert.Equal(t, int64(2), e.Version)

	assert.ErrorIs(t, s.RenameEntity(ctx, "uuid-a", "Sphere"), ErrNameConflict)
	assert.ErrorIs(t, s.RenameEntity(ctx, "uuid-missing", "X"), ErrNotFound)

	// Renaming to the current name is allowed.
	assert.NoError(t, s.RenameEntity(ctx, "uuid-b", "Sphere"))
}

func TestLocalMutations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	snap, err := s.Create(ctx, "objects", "Cube", value.Obj(value.F("pass_index", value.Int(0))))
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", snap.UUID)
	assert.Equal(t, "Cube", snap.Name)

	dup, err := s.Create(ctx, "objects", "Cube", nil)
	require.NoError(t, err)
	assert.Equal(t, "Cube.001", dup.Name)
	assert.Equal(t, value.Object{}, dup.Fields)

	d, err := s.Update(ctx, snap.UUID, value.Obj(value.F("pass_index", value.Int(4))), nil)
	require.NoError(t, err)
	assert.Equal(t, "objects/Cube", d.Label())
	assert.Equal(t, value.Obj(value.F("pass_index", value.Int(4))), d.Set)

	r, err := s.Rename(ctx, snap.UUID, "Box")
	require.NoError(t, err)
	assert.Equal(t, change.Rename{UUID: snap.UUID, NewName: "Box", DebugLabel: "objects/Cube"}, r)

	_, err = s.Rename(ctx, snap.UUID, "Cube.001")
	assert.ErrorIs(t, err, ErrNameConflict)

	rm, err := s.Remove(ctx, dup.UUID)
	require.NoError(t, err)
	assert.Equal(t, change.Removal{UUID: dup.UUID, DebugLabel: "objects/Cube.001"}, rm)

	list, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Box", list[0].Name)
}

func TestList_OrderAndFilter(t *testing.T) {
	s := createTestStore(t, WithClock(testutil.NewDeterministicClock()))
	ctx := context.Background()

	for _, snap := range []change.Snapshot{
		remoteSnapshot("uuid-c", "C"),
		remoteSnapshot("uuid-a", "A"),
		{UUID: "uuid-m", Collection: "meshes", Name: "M"},
	} {
		_, _, err := s.CreateEntity(ctx, snap)
		require.NoError(t, err)
	}

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].Seq, all[1].Seq, all[2].Seq})
	assert.Equal(t, "uuid-c", all[0].UUID)

	objects, err := s.List(ctx, "objects")
	require.NoError(t, err)
	assert.Len(t, objects, 2)

	none, err := s.List(ctx, "cameras")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

type rejectValidator struct{ key string }

func (v rejectValidator) Validate(_ string, fields value.Object) error {
	if _, ok := fields[v.key]; ok {
		return errors.New("forbidden field " + v.key)
	}
	return nil
}

func TestValidator(t *testing.T) {
	s := createTestStore(t, WithValidator(rejectValidator{key: "bad"}))
	ctx := context.Background()

	bad := remoteSnapshot("uuid-a", "Cube")
	bad.Fields["bad"] = value.Bool(true)
	_, _, err := s.CreateEntity(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalid)

	_, _, err = s.CreateEntity(ctx, remoteSnapshot("uuid-b", "Cube"))
	require.NoError(t, err)
	err = s.PatchEntity(ctx, change.Delta{UUID: "uuid-b", Set: value.Obj(value.F("bad", value.Int(1)))})
	assert.ErrorIs(t, err, ErrInvalid)

	e, err := s.Get(ctx, "uuid-b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Version, "rejected patch must not be written")
}

func TestDirty(t *testing.T) {
	s := createTestStore(t)

	var notified int
	s.OnDirty(func() { notified++ })

	assert.False(t, s.Dirty())
	s.MarkDirty()
	s.MarkDirty()
	assert.True(t, s.Dirty())
	assert.Equal(t, 2, notified)

	assert.True(t, s.ClearDirty())
	assert.False(t, s.Dirty())
	assert.False(t, s.ClearDirty())
}

func TestRenameEntity_BatchedNameSwapConverges(t *testing.T) {
	ctx := context.Background()
	local := createTestStore(t)
	remote := createTestStore(t)
	for _, s := range []*Store{local, remote} {
		_, _, err := s.CreateEntity(ctx, remoteSnapshot("uuid-a", "X"))
		require.NoError(t, err)
		_, _, err = s.CreateEntity(ctx, remoteSnapshot("uuid-b", "Y"))
		require.NoError(t, err)
	}

	var b change.Batch
	for _, step := range []struct{ uuid, name string }{
		{"uuid-a", "T"},
		{"uuid-b", "X"},
		{"uuid-a", "Y"},
	} {
		r, err := local.Rename(ctx, step.uuid, step.name)
		require.NoError(t, err)
		b.Rename(r)
	}

	for _, r := range b.Renames {
		require.NoError(t, remote.RenameEntity(ctx, r.UUID, r.NewName), "rename %s to %s", r.UUID, r.NewName)
	}

	names := func(s *Store) map[string]string {
		list, err := s.List(ctx, "objects")
		require.NoError(t, err)
		out := make(map[string]string, len(list))
		for _, e := range list {
			out[e.UUID] = e.Name
		}
		return out
	}
	assert.Equal(t, map[string]string{"uuid-a": "Y", "uuid-b": "X"}, names(local))
	assert.Equal(t, names(local), names(remote))
}
