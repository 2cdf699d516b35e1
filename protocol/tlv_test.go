package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTLVAppend(t *testing.T) {
	buf := []byte{}
	buf = Append(buf, 'A', []byte{'A'})
	buf = Append(buf, 'b', []byte{'B', 'B'})
	correct2 := []byte{'a', 1, 'A', '2', 'B', 'B'}
	assert.Equal(t, correct2, buf, "basic TLV fail")

	var c256 [256]byte
	for n := range c256 {
		c256[n] = 'c'
	}
	buf = Append(buf, 'C', c256[:])
	assert.Equal(t, len(correct2)+1+4+len(c256), len(buf))
	assert.Equal(t, uint8(67), buf[len(correct2)])
	assert.Equal(t, uint8(1), buf[len(correct2)+2])

	lit, body, buf, err := TakeAnyWary(buf)
	assert.Nil(t, err)
	assert.Equal(t, uint8('A'), lit)
	assert.Equal(t, []byte{'A'}, body)

	body2, _, err2 := TakeWary('B', buf)
	assert.Nil(t, err2)
	assert.Equal(t, []byte{'B', 'B'}, body2)
}

func TestFeedHeader(t *testing.T) {
	buf := []byte{}
	l, buf := OpenHeader(buf, 'A')
	text := "some text"
	buf = append(buf, text...)
	CloseHeader(buf, l)
	lit, body, rest, err := TakeAnyWary(buf)
	assert.Nil(t, err)
	assert.Equal(t, uint8('A'), lit)
	assert.Equal(t, text, string(body))
	assert.Equal(t, 0, len(rest))
}

func TestTinyRecord(t *testing.T) {
	body := "12"
	tiny := TinyRecord('X', []byte(body))
	assert.Equal(t, "212", string(tiny))
}

func TestSplit(t *testing.T) {
	whole := Join(
		Record('A', []byte("one")),
		TinyRecord('B', []byte("2")),
		Record('C', make([]byte, 300)),
	)
	recs, err := Split(bytes.NewBuffer(whole))
	assert.Nil(t, err)
	assert.Equal(t, 3, len(recs))
	assert.Equal(t, uint8('A'), Lit(recs[0]))
	assert.Equal(t, uint8('0'), Lit(recs[1]))
	assert.Equal(t, uint8('C'), Lit(recs[2]))

	// a trailing partial record is reported, parsed records survive
	chopped := bytes.NewBuffer(whole[:len(whole)-10])
	recs, err = Split(chopped)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 2, len(recs))

	_, err = Split(bytes.NewBuffer([]byte{0xff, 1, 2}))
	assert.ErrorIs(t, err, ErrBadRecord)
}

func TestZipUint64(t *testing.T) {
	cases := []uint64{0, 1, 0xff, 0x100, 0xffff, 0x10000, 0xdeadbeef, ^uint64(0)}
	lens := []int{0, 1, 1, 2, 2, 3, 4, 8}
	for i, v := range cases {
		zip := ZipUint64(v)
		assert.Equal(t, lens[i], len(zip), "value %x", v)
		assert.Equal(t, v, UnzipUint64(zip))
	}
}

func TestZipUint64Pair(t *testing.T) {
	pairs := [][2]uint64{
		{0, 0}, {1, 0}, {0, 1}, {5, 9},
		{0x1234, 8}, {8, 0x1234}, {0xdeadbeef, 0xcafe},
		{^uint64(0), 1}, {^uint64(0), ^uint64(0)},
	}
	for _, p := range pairs {
		zip := ZipUint64Pair(p[0], p[1])
		big, lil := UnzipUint64Pair(zip)
		assert.Equal(t, p[0], big)
		assert.Equal(t, p[1], lil)
	}
}
