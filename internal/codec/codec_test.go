package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/value"
)

func testSnapshot() change.Snapshot {
	return change.Snapshot{
		UUID:       "0b1f6c1e-6a43-4c1b-9d76-7c9e3a1f0001",
		Collection: "objects",
		Name:       "Cube",
		Fields: value.Obj(
			value.F("location", value.Arr(value.Float(1), value.Float(0.5), value.Float(-2))),
			value.F("data", value.String("0b1f6c1e-6a43-4c1b-9d76-7c9e3a1f0002")),
			value.F("hide_render", value.Bool(false)),
			value.F("pass_index", value.Int(3)),
			value.F("parent", value.Null{}),
		),
	}
}

func testDelta() change.Delta {
	return change.Delta{
		UUID:       "0b1f6c1e-6a43-4c1b-9d76-7c9e3a1f0001",
		Collection: "objects",
		Name:       "Cube",
		Set:        value.Obj(value.F("location", value.Arr(value.Float(2), value.Float(0), value.Float(0)))),
		Unset:      []string{"parent"},
	}
}

func TestCodec_RoundTripSnapshot(t *testing.T) {
	c := New()
	in := testSnapshot()

	data, err := c.Encode(in)
	require.NoError(t, err)

	out, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCodec_RoundTripDelta(t *testing.T) {
	c := New()
	in := testDelta()

	data, err := c.Encode(in)
	require.NoError(t, err)

	out, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCodec_RoundTripEmptyDelta(t *testing.T) {
	c := New()
	in := change.Delta{UUID: "u1", Collection: "meshes", Name: "Mesh", Set: value.Object{}}

	data, err := c.Encode(in)
	require.NoError(t, err)

	out, err := c.DecodeDelta(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCodec_RoundTripEmptyContainers(t *testing.T) {
	c := New()
	in := change.Snapshot{
		UUID:       "u1",
		Collection: "objects",
		Name:       "Cube",
		Fields: value.Obj(
			value.F("tags", value.Arr()),
			value.F("modifiers", value.Obj()),
			value.F("nested", value.Obj(
				value.F("empty_list", value.Arr()),
				value.F("grid", value.Arr(value.Arr(), value.Obj())),
			)),
		),
	}

	data, err := c.Encode(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tags":[]`)

	out, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// Cloned fields round-trip the same way.
	in.Fields = in.Fields.Clone()
	data, err = c.Encode(in)
	require.NoError(t, err)
	out, err = c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCodec_EncodingIsCanonical(t *testing.T) {
	c := New()
	data, err := c.Encode(change.Snapshot{UUID: "u1", Collection: "objects", Name: "A", Fields: value.Obj(
		value.F("b", value.Int(1)),
		value.F("a", value.Int(2)),
	)})
	require.NoError(t, err)
	assert.Equal(t,
		`{"body":{"collection":"objects","fields":{"a":2,"b":1},"name":"A","uuid":"u1"},"type":"snapshot","version":1}`,
		string(data))
}

func TestCodec_EncodeFailureIdentifiesRecord(t *testing.T) {
	c := New()
	bad := testDelta()
	bad.Set = value.Obj(value.F("scale", value.Float(math.NaN())))

	_, err := c.Encode(bad)
	require.Error(t, err)
	assert.True(t, change.IsEncodingError(err))

	var ce *change.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, bad.UUID, ce.UUID)
	assert.Equal(t, "objects/Cube", ce.Label)
	assert.Equal(t, change.KindUpdate, ce.Kind)
}

func TestCodec_EncodeRejectsEmptyUUID(t *testing.T) {
	_, err := New().Encode(change.Snapshot{Collection: "objects", Name: "Cube"})
	assert.True(t, change.IsEncodingError(err))
}

func TestCodec_DecodeFailures(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `\x00\x01garbage`},
		{"not object", `[1,2,3]`},
		{"bad version", `{"body":{},"type":"snapshot","version":2}`},
		{"unknown type", `{"body":{},"type":"shader","version":1}`},
		{"missing body", `{"type":"delta","version":1}`},
		{"snapshot missing fields", `{"body":{"collection":"objects","name":"A","uuid":"u"},"type":"snapshot","version":1}`},
		{"delta bad unset", `{"body":{"collection":"o","name":"A","set":{},"unset":[1],"uuid":"u"},"type":"delta","version":1}`},
		{"empty uuid", `{"body":{"collection":"o","fields":{},"name":"A","uuid":""},"type":"snapshot","version":1}`},
		{"truncated", `{"body":{"collection":"objects"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Decode([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, change.IsDecodingError(err))
		})
	}
}

func TestCodec_DecodeSnapshotRejectsDelta(t *testing.T) {
	c := New()
	data, err := c.Encode(testDelta())
	require.NoError(t, err)

	_, err = c.DecodeSnapshot(data)
	assert.True(t, change.IsDecodingError(err))

	_, err = c.DecodeDelta(data)
	assert.NoError(t, err)
}

func TestCodec_DigestStableAndDomainSeparated(t *testing.T) {
	c := New()
	d1, err := c.Digest(testSnapshot())
	require.NoError(t, err)
	d2, err := c.Digest(testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)

	data, err := c.Encode(testSnapshot())
	require.NoError(t, err)
	assert.NotEqual(t, DigestBytes(change.KindCreation, data), DigestBytes(change.KindUpdate, data))
}
