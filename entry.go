package recast

import "github.com/recast-db/recast/rtv"

// Entry is one key/value pair inside a DeltaMap, plus the bookkeeping
// delta replication runs on: the instance id pins this physical entry
// across diffs (a removed and re-added key is a new instance), the rep id
// is the container tick at which the entry last changed. Entries belong
// to their map; they are not shared between containers.
type Entry struct {
	key rtv.Value
	val rtv.Value
	id  uint64
	rep uint64
}

func (e *Entry) Key() rtv.Value { return e.key }

func (e *Entry) Value() rtv.Value { return e.val }

// Rep is the container tick at which this entry last changed.
func (e *Entry) Rep() uint64 { return e.rep }

// SetValue replaces the payload in place. Meant for DeltaMap.AddOrUpdate
// and the diff-apply path; a bare SetValue skips dirty tracking.
func (e *Entry) SetValue(v rtv.Value) { e.val = v }

// Matches reports key equality, which is the dedup rule: one entry per
// key, whatever the values.
func (e *Entry) Matches(o *Entry) bool { return e.key.Equals(o.key) }

// Replication hooks, fired by the diff-apply path in op order so that
// observers of a mirrored container see the same events, in the same
// order, as observers of the original.

// OnWillBeRemoved fires before the entry leaves the sequence.
func (e *Entry) OnWillBeRemoved(m *DeltaMap) { m.notifyRemoved(e.key) }

// OnWasAdded fires after the entry is in place.
func (e *Entry) OnWasAdded(m *DeltaMap) { m.notifyAdded(e.key, e.val) }

// OnWasChanged fires after the value got replaced.
func (e *Entry) OnWasChanged(m *DeltaMap) { m.notifyUpdated(e.key, e.val) }
