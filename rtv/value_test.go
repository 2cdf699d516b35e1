package rtv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEqualsHash(t *testing.T) {
	a := U64(7)
	b := U64(7)
	assert.True(t, a.Equals(b))
	assert.Equal(t, a.Hash(), b.Hash())

	c := U64(8)
	assert.False(t, a.Equals(c))

	// same bits under a different tag is a different value
	i := I64(7)
	assert.False(t, a.Equals(i))
	assert.NotEqual(t, a.Hash(), i.Hash())

	assert.True(t, Value{}.IsZero())
	assert.False(t, a.IsZero())
}

func TestTextPadding(t *testing.T) {
	a, err := Text16("hp")
	require.NoError(t, err)
	b, err := Text16("hp")
	require.NoError(t, err)

	// the padding tail is always zero, so equal texts are equal values
	assert.True(t, a.Equals(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, 16, a.Size())
	assert.Equal(t, "hp", a.Text())
	assert.Equal(t, make([]byte, 14), a.Bytes()[2:])

	_, err = Text16("this does not fit in sixteen")
	assert.ErrorIs(t, err, ErrTextOversize)

	full, err := Text16("exactly--sixteen")
	require.NoError(t, err)
	assert.Equal(t, "exactly--sixteen", full.Text())
}

func TestAccessors(t *testing.T) {
	assert.Equal(t, uint64(42), U64(42).Uint64())
	assert.Equal(t, int64(-7), I64(-7).Int64())
	assert.Equal(t, 3.14, F64(3.14).Float64())
	assert.True(t, Bool(true).Bool())
	assert.False(t, Bool(false).Bool())

	// mismatched reads are zero, not junk
	assert.Equal(t, uint64(0), I64(-7).Uint64())
	assert.Equal(t, "", U64(1).Text())
	assert.False(t, U64(1).Bool())
}

func TestParseString(t *testing.T) {
	literals := []string{
		"u:42", "i:-7", "f:3.14", "b:true", "t:hello", "t16:hp", "t64:the long form",
	}
	for _, lit := range literals {
		v, err := Parse(lit)
		require.NoError(t, err, lit)
		assert.Equal(t, lit, v.String(), lit)
	}

	_, err := Parse("nope")
	assert.ErrorIs(t, err, ErrBadLiteral)
	_, err = Parse("x:1")
	assert.ErrorIs(t, err, ErrBadLiteral)
	_, err = Parse("u:many")
	assert.ErrorIs(t, err, ErrBadLiteral)
}
