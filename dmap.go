package recast

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/recast-db/recast/rtv"
)

// Notifier receives container events, synchronously, on the goroutine
// that mutates or applies. A nil Notifier means no fan-out.
type Notifier interface {
	Added(key, val rtv.Value)
	Updated(key, val rtv.Value)
	Removed(key rtv.Value)
}

const findCacheSize = 128

// DeltaMap is an ordered key/value sequence with per-item change tracking.
// Entries keep insertion order; removal compacts without reordering the
// survivors. One entry per key. All operations are synchronous, O(n) over
// a sequence that is expected to hold tens of entries, and the map itself
// never locks: one logical writer per container is the caller's contract.
//
// The container clock (tick) stamps every change as the entry's rep id;
// shape counts structural revisions (adds and removes). Both drive the
// delta engine in delta.go.
type DeltaMap struct {
	entries []*Entry
	tick    uint64
	shape   uint64
	nextID  uint64
	notif   Notifier

	// keyHash to position shortcut; positions shift on removal, so any
	// structural compaction purges it. The slice is the source of truth,
	// hash collisions are survived by re-checking the key.
	finder *lru.Cache[uint64, int]
}

func NewDeltaMap(n Notifier) *DeltaMap {
	finder, _ := lru.New[uint64, int](findCacheSize)
	return &DeltaMap{notif: n, finder: finder}
}

func (m *DeltaMap) Len() int { return len(m.entries) }

// Tick is the container clock, the source of rep ids.
func (m *DeltaMap) Tick() uint64 { return m.tick }

// Shape is the structural revision, bumped by every add and remove.
func (m *DeltaMap) Shape() uint64 { return m.shape }

func (m *DeltaMap) notifyAdded(k, v rtv.Value) {
	if m.notif != nil {
		m.notif.Added(k, v)
	}
}

func (m *DeltaMap) notifyUpdated(k, v rtv.Value) {
	if m.notif != nil {
		m.notif.Updated(k, v)
	}
}

func (m *DeltaMap) notifyRemoved(k rtv.Value) {
	if m.notif != nil {
		m.notif.Removed(k)
	}
}

func (m *DeltaMap) find(key rtv.Value) (int, bool) {
	h := key.Hash()
	if pos, ok := m.finder.Get(h); ok && pos < len(m.entries) && m.entries[pos].key.Equals(key) {
		return pos, true
	}
	for i, e := range m.entries {
		if e.key.Equals(key) {
			m.finder.Add(h, i)
			return i, true
		}
	}
	return 0, false
}

// AddOrUpdate sets the value for the key, appending a fresh entry for an
// unseen key and replacing the value in place for a known one. Updating
// is unconditional: setting the same value again still ticks the clock
// and notifies. Returns the resulting op for the replication tap.
func (m *DeltaMap) AddOrUpdate(key, val rtv.Value) DiffOp {
	if pos, found := m.find(key); found {
		e := m.entries[pos]
		e.val = val
		m.tick++
		e.rep = m.tick
		m.notifyUpdated(key, val)
		return DiffOp{Kind: OpUpdate, Pos: pos, Key: key, Val: val, Rep: e.rep}
	}
	m.tick++
	m.nextID++
	e := &Entry{key: key, val: val, id: m.nextID, rep: m.tick}
	m.entries = append(m.entries, e)
	m.shape++
	m.finder.Add(key.Hash(), len(m.entries)-1)
	m.notifyAdded(key, val)
	return DiffOp{Kind: OpAdd, Pos: len(m.entries) - 1, Key: key, Val: val, Rep: e.rep}
}

// Remove drops the entry for the key, notifying removed BEFORE the entry
// leaves the sequence. Removing an absent key is a no-op: no event, no
// structural change, ok is false.
func (m *DeltaMap) Remove(key rtv.Value) (op DiffOp, ok bool) {
	pos, found := m.find(key)
	if !found {
		return DiffOp{}, false
	}
	m.notifyRemoved(key)
	m.entries = append(m.entries[:pos], m.entries[pos+1:]...)
	m.shape++
	m.finder.Purge()
	return DiffOp{Kind: OpRemove, Pos: pos, Key: key}, true
}

// Find returns the value for the key; absence is (zero, false), never an
// error.
func (m *DeltaMap) Find(key rtv.Value) (rtv.Value, bool) {
	pos, found := m.find(key)
	if !found {
		return rtv.Value{}, false
	}
	return m.entries[pos].val, true
}

// Keys returns the keys in container order, a point-in-time copy.
func (m *DeltaMap) Keys() []rtv.Value {
	ret := make([]rtv.Value, len(m.entries))
	for i, e := range m.entries {
		ret[i] = e.key
	}
	return ret
}

// Range enumerates entries in container order until fn returns false.
func (m *DeltaMap) Range(fn func(key, val rtv.Value) bool) {
	for _, e := range m.entries {
		if !fn(e.key, e.val) {
			return
		}
	}
}

// The apply primitives mutate the sequence the way a received diff op
// says, firing the entry hooks instead of ticking the local clock; the
// rep ids on the wire come from the authority's clock and the local one
// only keeps pace.

func (m *DeltaMap) applyRemove(pos int) error {
	if pos < 0 || pos >= len(m.entries) {
		return ErrBadDiff
	}
	e := m.entries[pos]
	e.OnWillBeRemoved(m)
	m.entries = append(m.entries[:pos], m.entries[pos+1:]...)
	m.shape++
	m.finder.Purge()
	return nil
}

func (m *DeltaMap) applyAdd(pos int, key, val rtv.Value, rep uint64) error {
	if pos < 0 || pos > len(m.entries) {
		return ErrBadDiff
	}
	if _, dup := m.find(key); dup {
		return ErrBadDiff
	}
	m.nextID++
	m.tick = max(m.tick, rep)
	e := &Entry{key: key, val: val, id: m.nextID, rep: rep}
	m.entries = append(m.entries, nil)
	copy(m.entries[pos+1:], m.entries[pos:])
	m.entries[pos] = e
	m.shape++
	m.finder.Purge()
	e.OnWasAdded(m)
	return nil
}

func (m *DeltaMap) applyUpdate(pos int, key, val rtv.Value, rep uint64) error {
	if pos < 0 || pos >= len(m.entries) {
		return ErrBadDiff
	}
	e := m.entries[pos]
	if !e.key.Equals(key) {
		return ErrDiffKeyMismatch
	}
	e.val = val
	e.rep = rep
	m.tick = max(m.tick, rep)
	e.OnWasChanged(m)
	return nil
}

// restore replaces the whole container from persisted state, silently.
func (m *DeltaMap) restore(entries []*Entry, tick, shape, nextID uint64) {
	m.entries = entries
	m.tick = tick
	m.shape = shape
	m.nextID = nextID
	m.finder.Purge()
}
