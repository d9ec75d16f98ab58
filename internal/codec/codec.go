package codec

import (
	"errors"
	"fmt"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/value"
)

// Version is the envelope version written by Encode. Decode rejects others.
const Version = 1

const (
	typeSnapshot = "snapshot"
	typeDelta    = "delta"
)

var errEmptyUUID = errors.New("record has no uuid")

// Codec converts Snapshot and Delta records to and from bytes.
// The zero value is ready to use and holds no state.
type Codec struct{}

// New returns a Codec.
func New() Codec {
	return Codec{}
}

// Encode serializes rec as canonical JSON:
//
//	{"body":{...},"type":"snapshot"|"delta","version":1}
//
// Failures are *change.Error with code ENCODING_FAILED naming the record.
func (Codec) Encode(rec change.Record) ([]byte, error) {
	env, err := envelope(rec)
	if err != nil {
		return nil, change.NewEncodingError(rec, err)
	}
	data, err := value.Marshal(env)
	if err != nil {
		return nil, change.NewEncodingError(rec, err)
	}
	return data, nil
}

// Decode parses bytes produced by Encode. The record kind is read from the
// envelope. Failures are *change.Error with code DECODING_FAILED.
func (Codec) Decode(data []byte) (change.Record, error) {
	rec, kind, err := decode(data)
	if err != nil {
		return nil, change.NewDecodingError(kind, err)
	}
	return rec, nil
}

// DecodeSnapshot decodes data and requires a Snapshot.
func (Codec) DecodeSnapshot(data []byte) (change.Snapshot, error) {
	rec, _, err := decode(data)
	if err != nil {
		return change.Snapshot{}, change.NewDecodingError(change.KindCreation, err)
	}
	s, ok := rec.(change.Snapshot)
	if !ok {
		return change.Snapshot{}, change.NewDecodingError(change.KindCreation,
			fmt.Errorf("expected snapshot, got %s", rec.Kind()))
	}
	return s, nil
}

// DecodeDelta decodes data and requires a Delta.
func (Codec) DecodeDelta(data []byte) (change.Delta, error) {
	rec, _, err := decode(data)
	if err != nil {
		return change.Delta{}, change.NewDecodingError(change.KindUpdate, err)
	}
	d, ok := rec.(change.Delta)
	if !ok {
		return change.Delta{}, change.NewDecodingError(change.KindUpdate,
			fmt.Errorf("expected delta, got %s", rec.Kind()))
	}
	return d, nil
}

func envelope(rec change.Record) (value.Object, error) {
	if rec.ID() == "" {
		return nil, errEmptyUUID
	}
	var (
		typ  string
		body value.Object
	)
	switch r := rec.(type) {
	case change.Snapshot:
		typ = typeSnapshot
		body = value.Obj(
			value.F("uuid", value.String(r.UUID)),
			value.F("collection", value.String(r.Collection)),
			value.F("name", value.String(r.Name)),
			value.F("fields", orEmpty(r.Fields)),
		)
	case change.Delta:
		typ = typeDelta
		unset := make(value.Array, len(r.Unset))
		for i, k := range r.Unset {
			unset[i] = value.String(k)
		}
		body = value.Obj(
			value.F("uuid", value.String(r.UUID)),
			value.F("collection", value.String(r.Collection)),
			value.F("name", value.String(r.Name)),
			value.F("set", orEmpty(r.Set)),
			value.F("unset", unset),
		)
	default:
		return nil, fmt.Errorf("unsupported record type %T", rec)
	}
	return value.Obj(
		value.F("version", value.Int(Version)),
		value.F("type", value.String(typ)),
		value.F("body", body),
	), nil
}

func decode(data []byte) (change.Record, change.Kind, error) {
	env, err := value.UnmarshalObject(data)
	if err != nil {
		return nil, 0, fmt.Errorf("parse envelope: %w", err)
	}
	version, err := intField(env, "version")
	if err != nil {
		return nil, 0, err
	}
	if version != Version {
		return nil, 0, fmt.Errorf("unsupported codec version %d", version)
	}
	typ, err := stringField(env, "type")
	if err != nil {
		return nil, 0, err
	}
	body, err := objectField(env, "body")
	if err != nil {
		return nil, 0, err
	}

	switch typ {
	case typeSnapshot:
		s, err := decodeSnapshot(body)
		return s, change.KindCreation, err
	case typeDelta:
		d, err := decodeDelta(body)
		return d, change.KindUpdate, err
	default:
		return nil, 0, fmt.Errorf("unknown record type %q", typ)
	}
}

func decodeSnapshot(body value.Object) (change.Snapshot, error) {
	var (
		s   change.Snapshot
		err error
	)
	if s.UUID, err = stringField(body, "uuid"); err != nil {
		return change.Snapshot{}, err
	}
	if s.Collection, err = stringField(body, "collection"); err != nil {
		return change.Snapshot{}, err
	}
	if s.Name, err = stringField(body, "name"); err != nil {
		return change.Snapshot{}, err
	}
	if s.Fields, err = objectField(body, "fields"); err != nil {
		return change.Snapshot{}, err
	}
	if s.UUID == "" {
		return change.Snapshot{}, errEmptyUUID
	}
	return s, nil
}

func decodeDelta(body value.Object) (change.Delta, error) {
	var (
		d   change.Delta
		err error
	)
	if d.UUID, err = stringField(body, "uuid"); err != nil {
		return change.Delta{}, err
	}
	if d.Collection, err = stringField(body, "collection"); err != nil {
		return change.Delta{}, err
	}
	if d.Name, err = stringField(body, "name"); err != nil {
		return change.Delta{}, err
	}
	if d.Set, err = objectField(body, "set"); err != nil {
		return change.Delta{}, err
	}
	raw, ok := body["unset"].(value.Array)
	if !ok {
		return change.Delta{}, fmt.Errorf("field %q: expected array", "unset")
	}
	for i, elem := range raw {
		k, ok := elem.(value.String)
		if !ok {
			return change.Delta{}, fmt.Errorf("unset[%d]: expected string, got %T", i, elem)
		}
		d.Unset = append(d.Unset, string(k))
	}
	if d.UUID == "" {
		return change.Delta{}, errEmptyUUID
	}
	return d, nil
}

func orEmpty(obj value.Object) value.Object {
	if obj == nil {
		return value.Object{}
	}
	return obj
}

func stringField(obj value.Object, key string) (string, error) {
	v, ok := obj[key].(value.String)
	if !ok {
		return "", fmt.Errorf("field %q: expected string, got %T", key, obj[key])
	}
	return string(v), nil
}

func intField(obj value.Object, key string) (int64, error) {
	v, ok := obj[key].(value.Int)
	if !ok {
		return 0, fmt.Errorf("field %q: expected integer, got %T", key, obj[key])
	}
	return int64(v), nil
}

func objectField(obj value.Object, key string) (value.Object, error) {
	v, ok := obj[key].(value.Object)
	if !ok {
		return nil, fmt.Errorf("field %q: expected object, got %T", key, obj[key])
	}
	return v, nil
}
