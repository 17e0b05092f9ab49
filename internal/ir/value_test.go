package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra":  IRString("z"),
		"apple":  IRString("a"),
		"banana": IRString("b"),
	}
	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestIRObjectSortedKeysUTF16Order(t *testing.T) {
	// U+FF61 is a single UTF-16 unit; U+1F600 encodes as a surrogate pair
	// starting 0xD83D, which sorts before it even though its UTF-8 form
	// sorts after.
	obj := Obj(O("｡", IRInt(1)), O("\U0001F600", IRInt(2)))
	assert.Equal(t, []string{"\U0001F600", "｡"}, obj.SortedKeys())
}

func TestIRObjectAccessors(t *testing.T) {
	obj := Obj(
		O("name", IRString("arch")),
		O("count", IRInt(5)),
		O("enabled", IRBool(true)),
		O("deleted_at", IRNull{}),
	)

	assert.Equal(t, "arch", obj.String("name"))
	assert.Equal(t, int64(5), obj.Int("count"))
	assert.True(t, obj.Bool("enabled"))

	assert.Equal(t, "", obj.String("count"), "wrong kind yields zero value")
	assert.Equal(t, int64(0), obj.Int("missing"))

	v, ok := obj.Get("deleted_at")
	assert.True(t, ok)
	assert.Equal(t, IRNull{}, v)

	_, ok = obj.Get("missing")
	assert.False(t, ok)

	var nilObj IRObject
	_, ok = nilObj.Get("anything")
	assert.False(t, ok)
}

func TestIRObjectCloneMerge(t *testing.T) {
	base := IRObject{"a": IRInt(1), "b": IRInt(2)}

	clone := base.Clone()
	clone["a"] = IRInt(99)
	assert.Equal(t, IRInt(1), base["a"], "clone must not alias")

	merged := base.Merge(IRObject{"b": IRInt(3), "c": IRInt(4)})
	assert.Equal(t, IRObject{"a": IRInt(1), "b": IRInt(3), "c": IRInt(4)}, merged)
	assert.Len(t, base, 2)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b IRValue
		want bool
	}{
		{"nil equals null", nil, IRNull{}, true},
		{"same string", IRString("x"), IRString("x"), true},
		{"string vs int", IRString("1"), IRInt(1), false},
		{"arrays", IRArray{IRInt(1), IRString("a")}, IRArray{IRInt(1), IRString("a")}, true},
		{"array length", IRArray{IRInt(1)}, IRArray{}, false},
		{"nested objects", IRObject{"k": IRObject{"n": IRBool(true)}}, IRObject{"k": IRObject{"n": IRBool(true)}}, true},
		{"object value differs", IRObject{"k": IRInt(1)}, IRObject{"k": IRInt(2)}, false},
		{"null vs zero", IRNull{}, IRInt(0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"id":   int64(7),
		"name": []byte("wiki"),
		"tags": []any{"a", true},
		"gone": nil,
	})
	require.NoError(t, err)

	assert.Equal(t, IRObject{
		"id":   IRInt(7),
		"name": IRString("wiki"),
		"tags": IRArray{IRString("a"), IRBool(true)},
		"gone": IRNull{},
	}, v)
}

func TestFromGoRejectsFloats(t *testing.T) {
	_, err := FromGo(3.14)
	require.Error(t, err)

	_, err = FromGo(json.Number("1.5"))
	require.Error(t, err)

	_, err = FromGo([]any{int64(1), 2.0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[1]")
}

func TestToGo(t *testing.T) {
	tests := []struct {
		in   IRValue
		want any
	}{
		{IRNull{}, nil},
		{nil, nil},
		{IRString("s"), "s"},
		{IRInt(-3), int64(-3)},
		{IRBool(true), true},
		{IRArray{IRInt(1), IRInt(2)}, "[1,2]"},
		{IRObject{"b": IRInt(2), "a": IRInt(1)}, `{"a":1,"b":2}`},
	}
	for _, tt := range tests {
		got, err := ToGo(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestUnmarshalIRValue(t *testing.T) {
	v, err := UnmarshalIRValue([]byte(`{"guild_id": 1234567890123456789, "name": "arch", "url": null}`))
	require.NoError(t, err)

	obj, ok := v.(IRObject)
	require.True(t, ok)
	assert.Equal(t, IRInt(1234567890123456789), obj["guild_id"], "large ints survive without float rounding")
	assert.Equal(t, IRNull{}, obj["url"])

	_, err = UnmarshalIRValue([]byte(`{"ratio": 0.5}`))
	require.Error(t, err)

	_, err = UnmarshalIRValue([]byte(`{"ratio": 1e3}`))
	require.Error(t, err)
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	obj := IRObject{
		"name":  IRString("arch"),
		"count": IRInt(3),
		"meta":  IRObject{"nested": IRArray{IRBool(false), IRNull{}}},
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"count":3,"meta":{"nested":[false,null]},"name":"arch"}`, string(data))

	var back IRObject
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, Equal(obj, back))
}

func TestIRObjectUnmarshalRejectsNonObject(t *testing.T) {
	var obj IRObject
	err := json.Unmarshal([]byte(`[1,2]`), &obj)
	require.Error(t, err)
}
