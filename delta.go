package recast

import "github.com/recast-db/recast/rtv"

type OpKind byte

const (
	OpRemove OpKind = 'R'
	OpAdd    OpKind = 'A'
	OpUpdate OpKind = 'U'
)

func (k OpKind) String() string {
	switch k {
	case OpRemove:
		return "remove"
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	}
	return "?"
}

// DiffOp is one step of a diff batch. Positions address the receiver's
// sequence at the moment the op applies, so a batch replays strictly in
// order: removes against the old layout, adds and updates against the
// final one. Removes carry the position only; the receiver knows the key.
type DiffOp struct {
	Kind OpKind
	Pos  int
	Key  rtv.Value
	Val  rtv.Value
	Rep  uint64
}

// Baseline is the sender's record of what a peer holds: the ordered
// (instance id, rep id) sequence of the container at some earlier point.
// Instance ids, not keys: a key removed and added back is a different
// instance, so it diffs as remove plus add, and an instance that lived
// and died entirely between two baselines produces no op at all.
type Baseline struct {
	items []baseItem
}

type baseItem struct {
	id  uint64
	rep uint64
}

func (b Baseline) Len() int { return len(b.items) }

// Baseline captures the current instance/rep sequence of the container.
func (m *DeltaMap) Baseline() Baseline {
	items := make([]baseItem, len(m.entries))
	for i, e := range m.entries {
		items[i] = baseItem{id: e.id, rep: e.rep}
	}
	return Baseline{items: items}
}

// DiffSince computes the op sequence turning a peer that holds the
// baseline into a copy of the current state: removes first, positions
// descending so earlier ones stay valid, then adds ascending by final
// position, then updates of surviving instances whose rep advanced.
// Surviving instances never reorder, which is what makes the positional
// replay sound. An empty baseline yields the full snapshot.
func (m *DeltaMap) DiffSince(bl Baseline) []DiffOp {
	current := make(map[uint64]int, len(m.entries))
	for i, e := range m.entries {
		current[e.id] = i
	}

	var ops []DiffOp
	for i := len(bl.items) - 1; i >= 0; i-- {
		if _, alive := current[bl.items[i].id]; !alive {
			ops = append(ops, DiffOp{Kind: OpRemove, Pos: i})
		}
	}

	base := make(map[uint64]uint64, len(bl.items))
	for _, it := range bl.items {
		base[it.id] = it.rep
	}
	for i, e := range m.entries {
		if _, held := base[e.id]; !held {
			ops = append(ops, DiffOp{Kind: OpAdd, Pos: i, Key: e.key, Val: e.val, Rep: e.rep})
		}
	}
	for i, e := range m.entries {
		if rep, held := base[e.id]; held && e.rep > rep {
			ops = append(ops, DiffOp{Kind: OpUpdate, Pos: i, Key: e.key, Val: e.val, Rep: e.rep})
		}
	}
	return ops
}

// clear empties the container through the removal hook, entry by entry in
// container order. Used when a sync session restarts over existing state.
func (m *DeltaMap) clear() {
	for len(m.entries) > 0 {
		_ = m.applyRemove(0)
	}
}
