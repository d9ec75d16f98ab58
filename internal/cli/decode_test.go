package cli

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/codec"
	"github.com/roach88/mixsync/internal/value"
	"github.com/roach88/mixsync/internal/wire"
)

const testUUID = "0190a1b2-0000-7000-8000-000000000001"

func creationPayload(t *testing.T) []byte {
	t.Helper()
	blob, err := codec.New().Encode(change.Snapshot{
		UUID:       testUUID,
		Collection: "objects",
		Name:       "Cube",
		Fields:     value.Obj(value.F("pass_index", value.Int(3))),
	})
	require.NoError(t, err)
	return wire.EncodeString(string(blob))
}

func TestDecode_Creation(t *testing.T) {
	payload := creationPayload(t)

	out, err := execute(t, NewDecodeCommand(&RootOptions{Format: "text"}), "--type", "create", hex.EncodeToString(payload))
	require.NoError(t, err)

	assert.Contains(t, out, "type:     DATA_CREATE")
	assert.Contains(t, out, "uuid:     "+testUUID)
	assert.Contains(t, out, "label:    objects/Cube")
	assert.Contains(t, out, "digest:   ")
	assert.Contains(t, out, `"pass_index":3`)
}

func TestDecode_FrameJSON(t *testing.T) {
	frame := wire.MarshalMessage(wire.New(wire.DataRename, wire.EncodeStrings(testUUID, "Cube.001", "objects/Cube")))

	out, err := execute(t, NewDecodeCommand(&RootOptions{Format: "json"}), "--frame", hex.EncodeToString(frame))
	require.NoError(t, err)

	var resp struct {
		Data DecodeResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "DATA_RENAME", resp.Data.Type)
	assert.Equal(t, testUUID, resp.Data.UUID)
	assert.Equal(t, "Cube.001", resp.Data.NewName)
	assert.Equal(t, "objects/Cube", resp.Data.Label)
}

func TestDecode_AcceptsSpacedHexAndFullTypeName(t *testing.T) {
	payload := hex.EncodeToString(wire.EncodeStrings(testUUID, "objects/Cube"))
	spaced := payload[:8] + " " + payload[8:]

	out, err := execute(t, NewDecodeCommand(&RootOptions{Format: "text"}), "--type", "DATA_REMOVE", spaced)
	require.NoError(t, err)
	assert.Contains(t, out, "uuid:     "+testUUID)
}

func TestDecode_MalformedPayload(t *testing.T) {
	// One string where a removal needs two.
	payload := wire.EncodeStrings(testUUID)

	out, err := execute(t, NewDecodeCommand(&RootOptions{Format: "text"}), "--type", "remove", hex.EncodeToString(payload))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "DECODING_FAILED")
}

func TestDecode_KindMismatch(t *testing.T) {
	_, err := DecodeMessage(wire.New(wire.DataUpdate, creationPayload(t)))
	require.Error(t, err)
	assert.True(t, change.IsDecodingError(err))
}

func TestDecode_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad hex", []string{"--type", "create", "zz"}, "input is not hex"},
		{"unknown type", []string{"--type", "explode", "00"}, "unknown type"},
		{"no type", []string{"00"}, "one of --type and --frame is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewDecodeCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestParseTypeName(t *testing.T) {
	for in, want := range map[string]wire.MessageType{
		"create":      wire.DataCreate,
		"Update":      wire.DataUpdate,
		"DATA_REMOVE": wire.DataRemove,
		"rename":      wire.DataRename,
	} {
		got, err := parseTypeName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
