package value

import (
	"fmt"
	"math"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the field values an entity snapshot may carry.
// Only Null, String, Int, Float, Bool, Array and Object implement it.
type Value interface {
	value()
}

// Null is an explicit JSON null.
type Null struct{}

func (Null) value() {}

// String is a UTF-8 string value.
type String string

func (String) value() {}

// Int is a 64-bit integer value.
type Int int64

func (Int) value() {}

// Float is a finite 64-bit float value. NaN and infinities cannot be encoded.
type Float float64

func (Float) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Array is an ordered list of values. A nil Array encodes as [] and
// decodes as an empty, non-nil Array; construct with Arr to compare equal
// after a round trip.
type Array []Value

func (Array) value() {}

// Object maps field names to values. Use SortedKeys for deterministic iteration.
// Like Array, a nil Object decodes as an empty one.
type Object map[string]Value

func (Object) value() {}

// Field is a key/value pair for Object construction.
type Field struct {
	Key   string
	Value Value
}

// F is shorthand for Field.
//
//	value.Obj(value.F("name", value.String("Cube")), value.F("users", value.Int(2)))
func F(key string, v Value) Field {
	return Field{Key: key, Value: v}
}

// Obj builds an Object from fields. Later duplicates win.
func Obj(fields ...Field) Object {
	obj := make(Object, len(fields))
	for _, f := range fields {
		obj[f.Key] = f.Value
	}
	return obj
}

// Arr builds an Array. Arr() is empty, not nil.
func Arr(vals ...Value) Array {
	if vals == nil {
		return Array{}
	}
	return Array(vals)
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// Clone returns a deep copy of the object.
func (obj Object) Clone() Object {
	if obj == nil {
		return nil
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = clone(v)
	}
	return out
}

func clone(v Value) Value {
	switch val := v.(type) {
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = clone(elem)
		}
		return out
	case Object:
		if val == nil {
			return Object{}
		}
		return val.Clone()
	default:
		return v
	}
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}

// ToAny converts a Value into plain Go values (string, int64, float64, bool,
// []any, map[string]any, nil) for encoders that do not know this package.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}

// FromAny converts plain Go values, as produced by YAML or JSON decoders,
// into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of range: %d", val)
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ObjectFromMap converts a decoded map into an Object.
func ObjectFromMap(m map[string]any) (Object, error) {
	if m == nil {
		return Object{}, nil
	}
	v, err := FromAny(m)
	if err != nil {
		return nil, err
	}
	return v.(Object), nil
}
