/*
Package rtv implements recast typed values: fixed-size opaque payloads
stamped with a numeric type tag. A Registry maps tags to kinds and is the
only way to build a Value from raw bytes; replication requires the exact
same registrations on every peer, so tags must be explicit and stable.
Payload layout is the application's business, the store never looks inside.
*/
package rtv

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrTagUnknown   = errors.New("rtv: unknown type tag")
	ErrTagTaken     = errors.New("rtv: type tag already registered")
	ErrBadKind      = errors.New("rtv: bad kind")
	ErrTypeMismatch = errors.New("rtv: payload size does not match the kind")
	ErrTextOversize = errors.New("rtv: text does not fit the kind")
	ErrBadLiteral   = errors.New("rtv: bad value literal")
)

// Tag identifies a record shape. Tags are assigned by the application;
// the range below 0x100 is reserved for the built-in kinds.
type Tag uint32

// Kind describes one registered value shape: a stable tag, a debug name
// and the exact payload size in bytes.
type Kind struct {
	Tag  Tag
	Name string
	Size int
}

// Registry holds the known kinds. Register everything once, at startup,
// before values start moving; lookups are not synchronized.
type Registry struct {
	kinds map[Tag]Kind
	names map[string]Tag
}

func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[Tag]Kind),
		names: make(map[string]Tag),
	}
}

func (r *Registry) Register(k Kind) error {
	if k.Tag == 0 || k.Name == "" || k.Size <= 0 || k.Size > 0xffff {
		return fmt.Errorf("%w: %+v", ErrBadKind, k)
	}
	if prev, ok := r.kinds[k.Tag]; ok {
		return fmt.Errorf("%w: tag %d is %s", ErrTagTaken, k.Tag, prev.Name)
	}
	if _, ok := r.names[k.Name]; ok {
		return fmt.Errorf("%w: name %s", ErrTagTaken, k.Name)
	}
	r.kinds[k.Tag] = k
	r.names[k.Name] = k.Tag
	return nil
}

func (r *Registry) Kind(tag Tag) (Kind, bool) {
	k, ok := r.kinds[tag]
	return k, ok
}

func (r *Registry) KindByName(name string) (Kind, bool) {
	tag, ok := r.names[name]
	if !ok {
		return Kind{}, false
	}
	return r.kinds[tag], true
}

// Kinds lists the registered kinds in tag order.
func (r *Registry) Kinds() []Kind {
	ret := make([]Kind, 0, len(r.kinds))
	for _, k := range r.kinds {
		ret = append(ret, k)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Tag < ret[j].Tag })
	return ret
}

// Make builds a Value of the given kind from a raw payload. The payload
// must be exactly Kind.Size bytes and is copied, the Value owns its bits.
func (r *Registry) Make(tag Tag, payload []byte) (Value, error) {
	k, ok := r.kinds[tag]
	if !ok {
		return Value{}, fmt.Errorf("%w: %d", ErrTagUnknown, tag)
	}
	if len(payload) != k.Size {
		return Value{}, fmt.Errorf("%w: %s wants %d bytes, got %d",
			ErrTypeMismatch, k.Name, k.Size, len(payload))
	}
	data := make([]byte, k.Size)
	copy(data, payload)
	return Value{tag: tag, data: data}, nil
}
