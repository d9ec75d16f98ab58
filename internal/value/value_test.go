package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny_YAMLShapes(t *testing.T) {
	in := map[string]any{
		"name":     "Cube",
		"users":    2,
		"scale":    1.5,
		"hide":     false,
		"location": []any{0, 1.5, nil},
		"nested":   map[string]any{"k": "v"},
	}

	obj, err := ObjectFromMap(in)
	require.NoError(t, err)

	assert.Equal(t, Obj(
		F("name", String("Cube")),
		F("users", Int(2)),
		F("scale", Float(1.5)),
		F("hide", Bool(false)),
		F("location", Arr(Int(0), Float(1.5), Null{})),
		F("nested", Obj(F("k", String("v")))),
	), obj)
}

func TestFromAny_RejectsUnsupported(t *testing.T) {
	_, err := FromAny(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestToAny_InvertsFromAny(t *testing.T) {
	obj := Obj(F("a", Arr(Int(1), Float(2.5))), F("b", Null{}))
	got := ToAny(obj)
	assert.Equal(t, map[string]any{"a": []any{int64(1), 2.5}, "b": nil}, got)
}

func TestObject_CloneIsDeep(t *testing.T) {
	orig := Obj(F("list", Arr(Int(1))), F("sub", Obj(F("x", Int(1)))))
	cp := orig.Clone()

	cp["list"].(Array)[0] = Int(99)
	cp["sub"].(Object)["x"] = Int(99)

	assert.Equal(t, Int(1), orig["list"].(Array)[0])
	assert.Equal(t, Int(1), orig["sub"].(Object)["x"])
}

func TestArr_EmptyIsNotNil(t *testing.T) {
	assert.NotNil(t, Arr())
	assert.Equal(t, Array{}, Arr())
}

func TestObject_CloneNestedNil(t *testing.T) {
	orig := Object{"list": Array(nil), "sub": Object(nil)}
	cp := orig.Clone()

	assert.Equal(t, Array{}, cp["list"])
	assert.Equal(t, Object{}, cp["sub"])
}

func TestObjectFromMap_Nil(t *testing.T) {
	obj, err := ObjectFromMap(nil)
	require.NoError(t, err)
	assert.Equal(t, Object{}, obj)
}
