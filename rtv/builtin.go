package rtv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Built-in kinds. Applications pick their own tags from 0x100 up.
const (
	TagU64    Tag = 1
	TagI64    Tag = 2
	TagF64    Tag = 3
	TagBool   Tag = 4
	TagText16 Tag = 5
	TagText32 Tag = 6
	TagText64 Tag = 7
)

var builtins = []Kind{
	{TagU64, "u64", 8},
	{TagI64, "i64", 8},
	{TagF64, "f64", 8},
	{TagBool, "bool", 1},
	{TagText16, "text16", 16},
	{TagText32, "text32", 32},
	{TagText64, "text64", 64},
}

// Std is the registry preloaded with the built-in kinds. Most applications
// register their own kinds here on top.
var Std = NewRegistry()

func init() {
	for _, k := range builtins {
		if err := Std.Register(k); err != nil {
			panic(err)
		}
	}
}

func U64(u uint64) Value {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], u)
	return Value{tag: TagU64, data: b[:]}
}

func I64(i int64) Value {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(i))
	return Value{tag: TagI64, data: b[:]}
}

func F64(f float64) Value {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
	return Value{tag: TagF64, data: b[:]}
}

func Bool(b bool) Value {
	data := make([]byte, 1)
	if b {
		data[0] = 1
	}
	return Value{tag: TagBool, data: data}
}

func text(tag Tag, size int, s string) (Value, error) {
	if len(s) > size {
		return Value{}, fmt.Errorf("%w: %d bytes into %d", ErrTextOversize, len(s), size)
	}
	data := make([]byte, size) // the tail stays zero
	copy(data, s)
	return Value{tag: tag, data: data}, nil
}

// Text16/Text32/Text64 hold UTF-8 in a fixed capacity, zero-padded; the
// text may not contain NUL and may not exceed the capacity.
func Text16(s string) (Value, error) { return text(TagText16, 16, s) }
func Text32(s string) (Value, error) { return text(TagText32, 32, s) }
func Text64(s string) (Value, error) { return text(TagText64, 64, s) }

// Lenient accessors: a tag mismatch reads as the zero value.

func (v Value) Uint64() uint64 {
	if v.tag != TagU64 || len(v.data) != 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(v.data)
}

func (v Value) Int64() int64 {
	if v.tag != TagI64 || len(v.data) != 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(v.data))
}

func (v Value) Float64() float64 {
	if v.tag != TagF64 || len(v.data) != 8 {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(v.data))
}

func (v Value) Bool() bool {
	return v.tag == TagBool && len(v.data) == 1 && v.data[0] != 0
}

// Text returns the payload of a text kind up to its zero padding.
func (v Value) Text() string {
	switch v.tag {
	case TagText16, TagText32, TagText64:
	default:
		return ""
	}
	if i := bytes.IndexByte(v.data, 0); i >= 0 {
		return string(v.data[:i])
	}
	return string(v.data)
}

// Parse turns a typed literal into a Value: "u:42", "i:-7", "f:3.14",
// "b:true", "t:hello" (text32), "t16:hp", "t64:long form". The inverse
// of Value.String for the built-in kinds.
func Parse(lit string) (Value, error) {
	kind, rest, ok := strings.Cut(lit, ":")
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrBadLiteral, lit)
	}
	switch kind {
	case "u":
		u, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q", ErrBadLiteral, lit)
		}
		return U64(u), nil
	case "i":
		i, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q", ErrBadLiteral, lit)
		}
		return I64(i), nil
	case "f":
		f, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q", ErrBadLiteral, lit)
		}
		return F64(f), nil
	case "b":
		b, err := strconv.ParseBool(rest)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q", ErrBadLiteral, lit)
		}
		return Bool(b), nil
	case "t":
		return Text32(rest)
	case "t16":
		return Text16(rest)
	case "t64":
		return Text64(rest)
	}
	return Value{}, fmt.Errorf("%w: unknown kind %q", ErrBadLiteral, kind)
}
