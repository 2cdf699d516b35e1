package recast

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"

	"github.com/recast-db/recast/protocol"
	"github.com/recast-db/recast/rtv"
)

// Record letters. The sync stream carries 'H', 'D' (with 'A'/'U'/'R' ops
// inside) and 'B'; the letters 'C', 'S' and 'Y' only ever appear as pebble
// values. Keys and values travel as 'K'/'V' records (see rtv wire form).
//
//	H  handshake: source, store name, trace id, mode
//	D  diff batch: store name + ops
//	A  add op: (pos, rep) pair, key, value
//	U  update op: (pos, rep) pair, key, value
//	R  remove op: pos
//	B  bye: trace id, reason text
//	C  store config value: name, key tag, value tag
//	S  store state value: (tick, shape), next instance id, 'E' per entry
//	Y  replica identity value: source, name

// Pebble key layout: 'Y' alone for the identity, 'C'/'S' plus the store id
// for configs and states. Store ids hash from the name; CreateStore rejects
// a second name landing on a taken id instead of silently colliding.

func storeID(name string) uint32 {
	return uint32(xxhash.Sum64String(name))
}

func configKey(sid uint32) []byte {
	return binary.BigEndian.AppendUint32([]byte{'C'}, sid)
}

func stateKey(sid uint32) []byte {
	return binary.BigEndian.AppendUint32([]byte{'S'}, sid)
}

var identityKey = []byte{'Y'}

// Diff ops. A remove is just the position; adds and updates carry the
// (position, rep) pair and both values. Bodies parse positionally, the
// tiny records inside do not keep their letters.

func appendOpRecord(into []byte, op DiffOp) []byte {
	switch op.Kind {
	case OpRemove:
		return protocol.Append(into, 'R', protocol.ZipUint64(uint64(op.Pos)))
	case OpAdd, OpUpdate:
		pair := protocol.TinyRecord('P', protocol.ZipUint64Pair(uint64(op.Pos), op.Rep))
		key := rtv.ValueRecord('K', op.Key)
		val := rtv.ValueRecord('V', op.Val)
		return protocol.Append(into, byte(op.Kind), pair, key, val)
	}
	panic("unknown diff op kind")
}

func takeOpRecord(reg *rtv.Registry, data []byte) (op DiffOp, rest []byte, err error) {
	lit, body, rest, err := protocol.TakeAnyWary(data)
	if err != nil {
		return DiffOp{}, data, err
	}
	switch lit {
	case 'R':
		return DiffOp{Kind: OpRemove, Pos: int(protocol.UnzipUint64(body))}, rest, nil
	case 'A', 'U':
		pair, body := protocol.Take('P', body)
		if pair == nil {
			return DiffOp{}, data, ErrBadDiff
		}
		pos, rep := protocol.UnzipUint64Pair(pair)
		key, body, err := rtv.TakeValue(reg, 'K', body)
		if err != nil {
			return DiffOp{}, data, err
		}
		val, _, err := rtv.TakeValue(reg, 'V', body)
		if err != nil {
			return DiffOp{}, data, err
		}
		return DiffOp{Kind: OpKind(lit), Pos: int(pos), Key: key, Val: val, Rep: rep}, rest, nil
	}
	return DiffOp{}, data, ErrBadDiff
}

// DiffRecord encodes one diff batch for the store.
func DiffRecord(store string, ops []DiffOp) []byte {
	body := protocol.TinyRecord('N', []byte(store))
	for _, op := range ops {
		body = appendOpRecord(body, op)
	}
	return protocol.Record('D', body)
}

// ParseDiffRecord decodes a 'D' record into the store name and its ops.
func ParseDiffRecord(reg *rtv.Registry, rec []byte) (store string, ops []DiffOp, err error) {
	body, _, err := protocol.TakeWary('D', rec)
	if err != nil {
		return "", nil, err
	}
	name, body := protocol.Take('N', body)
	if name == nil {
		return "", nil, protocol.ErrBadRecord
	}
	for len(body) > 0 {
		var op DiffOp
		op, body, err = takeOpRecord(reg, body)
		if err != nil {
			return string(name), nil, err
		}
		ops = append(ops, op)
	}
	return string(name), ops, nil
}

type handshake struct {
	Src   uint64
	Store string
	Trace uuid.UUID
	Mode  SyncMode
}

func handshakeRecord(h handshake) []byte {
	return protocol.Record('H',
		protocol.TinyRecord('S', protocol.ZipUint64(h.Src)),
		protocol.TinyRecord('N', []byte(h.Store)),
		protocol.TinyRecord('T', h.Trace[:]),
		protocol.TinyRecord('M', protocol.ZipUint64(uint64(h.Mode))),
	)
}

func parseHandshake(rec []byte) (h handshake, err error) {
	body, _, err := protocol.TakeWary('H', rec)
	if err != nil {
		return handshake{}, err
	}
	src, body := protocol.Take('S', body)
	name, body := protocol.Take('N', body)
	trace, body := protocol.Take('T', body)
	mode, _ := protocol.Take('M', body)
	if src == nil || name == nil || trace == nil || mode == nil {
		return handshake{}, ErrBadHandshake
	}
	h.Src = protocol.UnzipUint64(src)
	h.Store = string(name)
	if h.Trace, err = uuid.FromBytes(trace); err != nil {
		return handshake{}, ErrBadHandshake
	}
	h.Mode = SyncMode(protocol.UnzipUint64(mode))
	return h, nil
}

func byeRecord(trace uuid.UUID, reason string) []byte {
	return protocol.Record('B',
		protocol.TinyRecord('T', trace[:]),
		[]byte(reason),
	)
}

func parseBye(rec []byte) (trace uuid.UUID, reason string, err error) {
	body, _, err := protocol.TakeWary('B', rec)
	if err != nil {
		return uuid.Nil, "", err
	}
	tr, rest := protocol.Take('T', body)
	if tr == nil {
		return uuid.Nil, "", protocol.ErrBadRecord
	}
	if trace, err = uuid.FromBytes(tr); err != nil {
		return uuid.Nil, "", protocol.ErrBadRecord
	}
	return trace, string(rest), nil
}

// Storage values. These are pebble value bodies, headerless on the outside
// since the key already says what they are.

func configValue(name string, ktag, vtag rtv.Tag) []byte {
	val := protocol.TinyRecord('N', []byte(name))
	val = protocol.Append(val, 'k', protocol.ZipUint64(uint64(ktag)))
	val = protocol.Append(val, 'v', protocol.ZipUint64(uint64(vtag)))
	return val
}

func parseConfigValue(val []byte) (name string, ktag, vtag rtv.Tag, err error) {
	n, val := protocol.Take('N', val)
	k, val := protocol.Take('K', val)
	v, _ := protocol.Take('V', val)
	if n == nil || k == nil || v == nil {
		return "", 0, 0, ErrBadState
	}
	return string(n), rtv.Tag(protocol.UnzipUint64(k)), rtv.Tag(protocol.UnzipUint64(v)), nil
}

func stateValue(m *DeltaMap) []byte {
	val := protocol.TinyRecord('C', protocol.ZipUint64Pair(m.tick, m.shape))
	val = protocol.Append(val, 'i', protocol.ZipUint64(m.nextID))
	for _, e := range m.entries {
		pair := protocol.TinyRecord('P', protocol.ZipUint64Pair(e.id, e.rep))
		key := rtv.ValueRecord('K', e.key)
		v := rtv.ValueRecord('V', e.val)
		val = protocol.Append(val, 'E', pair, key, v)
	}
	return val
}

func loadStateValue(reg *rtv.Registry, val []byte) (entries []*Entry, tick, shape, nextID uint64, err error) {
	clock, val := protocol.Take('C', val)
	next, val := protocol.Take('I', val)
	if clock == nil || next == nil {
		return nil, 0, 0, 0, ErrBadState
	}
	tick, shape = protocol.UnzipUint64Pair(clock)
	nextID = protocol.UnzipUint64(next)
	for len(val) > 0 {
		var body []byte
		body, val, err = protocol.TakeWary('E', val)
		if err != nil {
			return nil, 0, 0, 0, err
		}
		pair, body := protocol.Take('P', body)
		if pair == nil {
			return nil, 0, 0, 0, ErrBadState
		}
		id, rep := protocol.UnzipUint64Pair(pair)
		var key, v rtv.Value
		if key, body, err = rtv.TakeValue(reg, 'K', body); err != nil {
			return nil, 0, 0, 0, err
		}
		if v, _, err = rtv.TakeValue(reg, 'V', body); err != nil {
			return nil, 0, 0, 0, err
		}
		entries = append(entries, &Entry{key: key, val: v, id: id, rep: rep})
	}
	return entries, tick, shape, nextID, nil
}

func identityValue(src uint64, name string) []byte {
	val := protocol.TinyRecord('S', protocol.ZipUint64(src))
	return append(val, name...)
}

func parseIdentityValue(val []byte) (src uint64, name string, err error) {
	s, rest := protocol.Take('S', val)
	if s == nil {
		return 0, "", ErrBadState
	}
	return protocol.UnzipUint64(s), string(rest), nil
}
