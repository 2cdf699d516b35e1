package rtv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryMake(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Kind{Tag: 0x100, Name: "pos3d", Size: 24}))

	v, err := reg.Make(0x100, make([]byte, 24))
	require.NoError(t, err)
	assert.Equal(t, Tag(0x100), v.Tag())
	assert.Equal(t, 24, v.Size())

	_, err = reg.Make(0x100, make([]byte, 23))
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = reg.Make(0x101, nil)
	assert.ErrorIs(t, err, ErrTagUnknown)

	// the payload is copied on construction
	require.NoError(t, reg.Register(Kind{Tag: 0x101, Name: "tri", Size: 3}))
	raw := []byte{1, 2, 3}
	v, err = reg.Make(0x101, raw)
	require.NoError(t, err)
	raw[0] = 99
	assert.Equal(t, []byte{1, 2, 3}, v.Bytes())
}

func TestRegistryCollisions(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Kind{Tag: 9, Name: "nine", Size: 1}))
	assert.ErrorIs(t, reg.Register(Kind{Tag: 9, Name: "other", Size: 2}), ErrTagTaken)
	assert.ErrorIs(t, reg.Register(Kind{Tag: 10, Name: "nine", Size: 2}), ErrTagTaken)
	assert.ErrorIs(t, reg.Register(Kind{Tag: 0, Name: "zero", Size: 1}), ErrBadKind)
	assert.ErrorIs(t, reg.Register(Kind{Tag: 11, Name: "", Size: 1}), ErrBadKind)
	assert.ErrorIs(t, reg.Register(Kind{Tag: 12, Name: "big", Size: 1 << 20}), ErrBadKind)
}

func TestStdKinds(t *testing.T) {
	kinds := Std.Kinds()
	assert.Equal(t, 7, len(kinds))

	k, ok := Std.KindByName("u64")
	assert.True(t, ok)
	assert.Equal(t, TagU64, k.Tag)
	assert.Equal(t, 8, k.Size)

	_, ok = Std.Kind(0xdead)
	assert.False(t, ok)
}

func TestValueWire(t *testing.T) {
	v, err := Text16("hp")
	require.NoError(t, err)

	var buf []byte
	buf = AppendValue(buf, 'K', v)
	buf = AppendValue(buf, 'V', U64(100))

	k, rest, err := TakeValue(Std, 'K', buf)
	require.NoError(t, err)
	assert.True(t, v.Equals(k))
	u, rest, err := TakeValue(Std, 'V', rest)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), u.Uint64())
	assert.Equal(t, 0, len(rest))

	// a kind the registry does not know is rejected on decode
	strange := ValueRecord('V', Value{tag: 0x999, data: make([]byte, 4)})
	_, _, err = TakeValue(Std, 'V', strange)
	assert.ErrorIs(t, err, ErrTagUnknown)

	// a truncated record does not decode
	_, _, err = TakeValue(Std, 'K', buf[:3])
	assert.Error(t, err)
}
