package rtv

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash"
)

// Value is a typed record: a type tag plus an owned, fixed-size payload.
// Values are immutable once constructed; the zero Value means "no value".
// Two values are equal when both the tag and every payload bit match, and
// Hash is consistent with that, so constructors must leave no byte of the
// payload undefined (the text kinds zero-fill their tails for exactly
// this reason).
type Value struct {
	tag  Tag
	data []byte
}

func (v Value) Tag() Tag { return v.tag }

func (v Value) Size() int { return len(v.data) }

func (v Value) IsZero() bool { return v.tag == 0 && v.data == nil }

// Bytes returns a copy of the payload; the Value stays immutable.
func (v Value) Bytes() []byte {
	ret := make([]byte, len(v.data))
	copy(ret, v.data)
	return ret
}

func (v Value) Equals(o Value) bool {
	return v.tag == o.tag && bytes.Equal(v.data, o.data)
}

// Hash digests the tag and the payload together, so values of different
// kinds with identical bits hash apart. Equal values hash equal.
func (v Value) Hash() uint64 {
	d := xxhash.New()
	var tag [4]byte
	binary.LittleEndian.PutUint32(tag[:], uint32(v.tag))
	_, _ = d.Write(tag[:])
	_, _ = d.Write(v.data)
	return d.Sum64()
}

// String renders built-in kinds as their literal form (see Parse);
// anything else comes out as tag:hexbytes.
func (v Value) String() string {
	switch v.tag {
	case TagU64:
		return fmt.Sprintf("u:%d", v.Uint64())
	case TagI64:
		return fmt.Sprintf("i:%d", v.Int64())
	case TagF64:
		return fmt.Sprintf("f:%g", v.Float64())
	case TagBool:
		return fmt.Sprintf("b:%t", v.Bool())
	case TagText16:
		return "t16:" + v.Text()
	case TagText32:
		return "t:" + v.Text()
	case TagText64:
		return "t64:" + v.Text()
	}
	return fmt.Sprintf("%d:%s", uint32(v.tag), hex.EncodeToString(v.data))
}
