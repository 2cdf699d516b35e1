package recast

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/recast-db/recast/rtv"
	"github.com/recast-db/recast/utils"
)

// Token identifies one subscription on a Store.
type Token uuid.UUID

func (t Token) String() string { return uuid.UUID(t).String() }

type StoreOptions struct {
	// KeyType and ValueType restrict the store to one kind each; zero
	// means unrestricted. Violations are logged and dropped, not errors.
	KeyType   rtv.Tag
	ValueType rtv.Tag
	Logger    utils.Logger
	Registry  *rtv.Registry
}

type StoreOption func(*StoreOptions)

func WithKeyType(tag rtv.Tag) StoreOption {
	return func(o *StoreOptions) { o.KeyType = tag }
}

func WithValueType(tag rtv.Tag) StoreOption {
	return func(o *StoreOptions) { o.ValueType = tag }
}

func WithLogger(l utils.Logger) StoreOption {
	return func(o *StoreOptions) { o.Logger = l }
}

func WithRegistry(r *rtv.Registry) StoreOption {
	return func(o *StoreOptions) { o.Registry = r }
}

// Store is a replicated record store: one DeltaMap, optional type
// restrictions, and any number of observers. Writes belong to a single
// logical writer (the authority process mutates, observers only apply);
// a standalone store is lock-free. A Replica-owned store gets a sequence
// lock so persistence, broadcast and snapshot capture follow mutation
// order, and reads stay coherent next to the replication-apply path.
type Store struct {
	name string
	dmap *DeltaMap
	ktag rtv.Tag
	vtag rtv.Tag
	reg  *rtv.Registry
	log  utils.Logger

	added   map[Token]func(key, val rtv.Value)
	updated map[Token]func(key, val rtv.Value)
	removed map[Token]func(key rtv.Value)

	// set by the owning Replica
	seq    *sync.Mutex
	commit func(ops []DiffOp, local bool)
}

func NewStore(name string, opts ...StoreOption) *Store {
	o := StoreOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Registry == nil {
		o.Registry = rtv.Std
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
	s := &Store{
		name:    name,
		ktag:    o.KeyType,
		vtag:    o.ValueType,
		reg:     o.Registry,
		log:     o.Logger,
		added:   make(map[Token]func(key, val rtv.Value)),
		updated: make(map[Token]func(key, val rtv.Value)),
		removed: make(map[Token]func(key rtv.Value)),
	}
	s.dmap = NewDeltaMap(s)
	return s
}

func (s *Store) Name() string { return s.name }

func (s *Store) KeyType() rtv.Tag { return s.ktag }

func (s *Store) ValueType() rtv.Tag { return s.vtag }

func (s *Store) Len() int {
	s.lock()
	defer s.unlock()
	return s.dmap.Len()
}

func (s *Store) lock() {
	if s.seq != nil {
		s.seq.Lock()
	}
}

func (s *Store) unlock() {
	if s.seq != nil {
		s.seq.Unlock()
	}
}

// SetData sets the value for the key. A key or value whose kind violates
// the store's restrictions is logged, counted and dropped; the call is
// void either way, per the replication contract the authority does not
// get to see schema errors its observers would not.
func (s *Store) SetData(key, val rtv.Value) {
	s.lock()
	defer s.unlock()
	if s.ktag != 0 && key.Tag() != s.ktag {
		s.log.Warn("schema violation, key kind not allowed",
			"store", s.name, "key", key.String())
		schemaViolations.WithLabelValues(s.name, "key").Inc()
		return
	}
	if s.vtag != 0 && val.Tag() != s.vtag {
		s.log.Warn("schema violation, value kind not allowed",
			"store", s.name, "key", key.String(), "value", val.String())
		schemaViolations.WithLabelValues(s.name, "value").Inc()
		return
	}
	op := s.dmap.AddOrUpdate(key, val)
	mutations.WithLabelValues(s.name, op.Kind.String()).Inc()
	if s.commit != nil {
		s.commit([]DiffOp{op}, true)
	}
}

// RemoveData drops the entry for the key; removing an absent key is a
// no-op.
func (s *Store) RemoveData(key rtv.Value) {
	s.lock()
	defer s.unlock()
	op, ok := s.dmap.Remove(key)
	if !ok {
		return
	}
	mutations.WithLabelValues(s.name, op.Kind.String()).Inc()
	if s.commit != nil {
		s.commit([]DiffOp{op}, true)
	}
}

// GetData returns the value for the key; absence is (zero, false).
func (s *Store) GetData(key rtv.Value) (rtv.Value, bool) {
	s.lock()
	defer s.unlock()
	return s.dmap.Find(key)
}

// GetKeys returns the keys in container order, a point-in-time copy.
func (s *Store) GetKeys() []rtv.Value {
	s.lock()
	defer s.unlock()
	return s.dmap.Keys()
}

// Range enumerates entries in container order until fn returns false.
func (s *Store) Range(fn func(key, val rtv.Value) bool) {
	s.lock()
	defer s.unlock()
	s.dmap.Range(fn)
}

// Baseline captures what this store holds right now, for DiffSince.
func (s *Store) Baseline() Baseline {
	s.lock()
	defer s.unlock()
	return s.dmap.Baseline()
}

// DiffSince computes the ops leading from the baseline to the current
// state.
func (s *Store) DiffSince(bl Baseline) []DiffOp {
	s.lock()
	defer s.unlock()
	return s.dmap.DiffSince(bl)
}

// ApplyDiff replays a received diff batch strictly in order, firing the
// entry hooks so observers see the same events the authority's observers
// saw. Positions and keys are validated; an op that does not fit the
// current sequence fails the batch at that op, leaving the prefix
// applied.
func (s *Store) ApplyDiff(ops []DiffOp) error {
	s.lock()
	defer s.unlock()
	return s.applyDiff(ops)
}

func (s *Store) applyDiff(ops []DiffOp) error {
	applied := 0
	var err error
	for _, op := range ops {
		switch op.Kind {
		case OpRemove:
			err = s.dmap.applyRemove(op.Pos)
		case OpAdd:
			err = s.dmap.applyAdd(op.Pos, op.Key, op.Val, op.Rep)
		case OpUpdate:
			err = s.dmap.applyUpdate(op.Pos, op.Key, op.Val, op.Rep)
		default:
			err = ErrBadDiff
		}
		if err != nil {
			err = errors.Wrapf(err, "applying %s at %d to %s", op.Kind, op.Pos, s.name)
			break
		}
		appliedOps.WithLabelValues(s.name, op.Kind.String()).Inc()
		applied++
	}
	if applied > 0 && s.commit != nil {
		s.commit(nil, false)
	}
	return err
}

// resetForSync empties the store through removal events; a new session
// always starts from a full snapshot.
func (s *Store) resetForSync() {
	s.lock()
	defer s.unlock()
	if s.dmap.Len() == 0 {
		return
	}
	s.dmap.clear()
	if s.commit != nil {
		s.commit(nil, false)
	}
}

// Subscriptions. Callbacks run synchronously on the goroutine that
// mutates or applies; each observer sees every event exactly once, in
// mutation order; the order across observers is unspecified. A callback
// must not call back into the store, the event carries all there is to
// know. Subscribe before the store starts moving, Off from the same
// goroutine that mutates.

func (s *Store) OnAdded(fn func(key, val rtv.Value)) Token {
	t := Token(uuid.New())
	s.added[t] = fn
	return t
}

func (s *Store) OnUpdated(fn func(key, val rtv.Value)) Token {
	t := Token(uuid.New())
	s.updated[t] = fn
	return t
}

func (s *Store) OnRemoved(fn func(key rtv.Value)) Token {
	t := Token(uuid.New())
	s.removed[t] = fn
	return t
}

// Off cancels a subscription; unknown tokens are ignored.
func (s *Store) Off(t Token) {
	delete(s.added, t)
	delete(s.updated, t)
	delete(s.removed, t)
}

// The Store is its own map's Notifier.

func (s *Store) Added(key, val rtv.Value) {
	notifications.WithLabelValues(s.name, "added").Inc()
	for _, fn := range s.added {
		fn(key, val)
	}
}

func (s *Store) Updated(key, val rtv.Value) {
	notifications.WithLabelValues(s.name, "updated").Inc()
	for _, fn := range s.updated {
		fn(key, val)
	}
}

func (s *Store) Removed(key rtv.Value) {
	notifications.WithLabelValues(s.name, "removed").Inc()
	for _, fn := range s.removed {
		fn(key)
	}
}
