package rtv

import (
	"github.com/recast-db/recast/protocol"
)

// Wire form of a value: a record of the caller's type whose body is a tiny
// 'T' record with the zipped tag, followed by the raw payload. The payload
// length is implied by the registry, which both ends must share.

// AppendValue appends one value as a TLV record of the given type.
func AppendValue(into []byte, lit byte, v Value) []byte {
	tag := protocol.TinyRecord('T', protocol.ZipUint64(uint64(v.tag)))
	return protocol.Append(into, lit, tag, v.data)
}

// ValueRecord encodes one value as a standalone record.
func ValueRecord(lit byte, v Value) []byte {
	tag := protocol.TinyRecord('T', protocol.ZipUint64(uint64(v.tag)))
	return protocol.Record(lit, tag, v.data)
}

// TakeValue decodes the record of the given type at the start of data,
// checking tag and payload size against the registry. The returned Value
// owns a copy of the payload bytes.
func TakeValue(reg *Registry, lit byte, data []byte) (v Value, rest []byte, err error) {
	body, rest, err := protocol.TakeWary(lit, data)
	if err != nil {
		return Value{}, data, err
	}
	tagzip, payload := protocol.Take('T', body)
	if tagzip == nil {
		return Value{}, data, protocol.ErrBadRecord
	}
	v, err = reg.Make(Tag(protocol.UnzipUint64(tagzip)), payload)
	if err != nil {
		return Value{}, data, err
	}
	return v, rest, nil
}
