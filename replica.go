package recast

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/recast-db/recast/protocol"
	"github.com/recast-db/recast/rtv"
	"github.com/recast-db/recast/utils"
)

// Replica owns a set of stores and makes them durable and replicable:
// every mutation is persisted through pebble and broadcast to the live
// hoses as a one-op diff batch. The Replica is also the receiving end of
// a sync session, it implements protocol.Drainer by applying handshakes
// and diff batches to its own stores.
type Replica struct {
	src  uint64
	name string
	dir  string
	log  utils.Logger
	reg  *rtv.Registry
	opts Options

	db     *pebble.DB
	stores *xsync.MapOf[string, *Store]
	sids   *xsync.MapOf[uint32, string]
	hoses  utils.CMap[string, *utils.FDQueue[protocol.Records]]

	// guards open/create/close; never taken on the per-store hot path
	lock sync.Mutex
}

// Open opens (or creates) a replica in the directory and loads every
// persisted store, state and clocks included, so diffing picks up where
// the previous process left off.
func Open(dir string, opts Options) (*Replica, error) {
	opts.SetDefaults()
	db, err := pebble.Open(dir, &opts.Options)
	if err != nil {
		return nil, errors.Wrap(err, "opening the replica db")
	}
	r := &Replica{
		src:    opts.Src,
		name:   opts.Name,
		dir:    dir,
		log:    opts.Logger,
		reg:    opts.Registry,
		opts:   opts,
		db:     db,
		stores: xsync.NewMapOf[string, *Store](),
		sids:   xsync.NewMapOf[uint32, string](),
	}
	if err = r.loadIdentity(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err = r.loadStores(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Replica) loadIdentity() error {
	val, closer, err := r.db.Get(identityKey)
	if err == pebble.ErrNotFound {
		return errors.Wrap(
			r.db.Set(identityKey, identityValue(r.src, r.name), &WriteOptions),
			"writing the identity record")
	}
	if err != nil {
		return errors.Wrap(err, "reading the identity record")
	}
	defer closer.Close()
	src, name, err := parseIdentityValue(val)
	if err != nil {
		return errors.Wrap(err, "decoding the identity record")
	}
	// the directory knows who it is; options only matter the first time
	if r.src != 0 && r.src != src {
		r.log.Warn("replica dir has a different source, keeping the stored one",
			"dir", r.dir, "stored", src, "asked", r.src)
	}
	r.src, r.name = src, name
	return nil
}

func (r *Replica) loadStores() error {
	it, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{'C'},
		UpperBound: []byte{'D'},
	})
	if err != nil {
		return errors.Wrap(err, "iterating store configs")
	}
	defer it.Close()
	for it.SeekGE([]byte{'C'}); it.Valid(); it.Next() {
		name, ktag, vtag, err := parseConfigValue(it.Value())
		if err != nil {
			return errors.Wrapf(err, "decoding store config %x", it.Key())
		}
		s := NewStore(name,
			WithKeyType(ktag), WithValueType(vtag),
			WithLogger(r.log), WithRegistry(r.reg))
		if err = r.loadState(s); err != nil {
			return err
		}
		r.adopt(s)
	}
	return nil
}

func (r *Replica) loadState(s *Store) error {
	val, closer, err := r.db.Get(stateKey(storeID(s.name)))
	if err == pebble.ErrNotFound {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading the state of %s", s.name)
	}
	defer closer.Close()
	entries, tick, shape, nextID, err := loadStateValue(r.reg, val)
	if err != nil {
		return errors.Wrapf(err, "decoding the state of %s", s.name)
	}
	s.dmap.restore(entries, tick, shape, nextID)
	return nil
}

// adopt wires a store to this replica: a write lock, and a commit hook
// that persists the state and broadcasts local ops to the hoses. The hook
// runs under the store's write lock, so the persisted snapshots and the
// broadcast batches follow the mutation order exactly.
func (r *Replica) adopt(s *Store) {
	sid := storeID(s.name)
	s.seq = &sync.Mutex{}
	s.commit = func(ops []DiffOp, local bool) {
		if err := r.db.Set(stateKey(sid), stateValue(s.dmap), &WriteOptions); err != nil {
			r.log.Error("persisting store state", "store", s.name, "err", err)
		}
		if local && len(ops) > 0 {
			r.Broadcast(context.Background(),
				protocol.Records{DiffRecord(s.name, ops)}, "")
		}
	}
	r.stores.Store(s.name, s)
	r.sids.Store(sid, s.name)
}

// CreateStore registers a new named store. Options default to the
// replica's logger and registry; restriction tags come in the usual way
// (WithKeyType, WithValueType). The rare name whose hash collides with an
// existing store's is rejected rather than silently shared.
func (r *Replica) CreateStore(name string, opts ...StoreOption) (*Store, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.db == nil {
		return nil, ErrClosed
	}
	if _, taken := r.stores.Load(name); taken {
		return nil, errors.Wrap(ErrStoreExists, name)
	}
	if other, taken := r.sids.Load(storeID(name)); taken {
		return nil, errors.Wrapf(ErrStoreExists, "%s collides with %s", name, other)
	}
	opts = append([]StoreOption{WithLogger(r.log), WithRegistry(r.reg)}, opts...)
	s := NewStore(name, opts...)
	sid := storeID(name)
	b := r.db.NewBatch()
	defer b.Close()
	_ = b.Set(configKey(sid), configValue(name, s.ktag, s.vtag), nil)
	_ = b.Set(stateKey(sid), stateValue(s.dmap), nil)
	if err := r.db.Apply(b, &WriteOptions); err != nil {
		return nil, errors.Wrapf(err, "persisting store %s", name)
	}
	r.adopt(s)
	r.log.Debug("store created", "store", name, "replica", r.name)
	return s, nil
}

// Store returns the named store or ErrStoreUnknown.
func (r *Replica) Store(name string) (*Store, error) {
	s, ok := r.stores.Load(name)
	if !ok {
		return nil, errors.Wrap(ErrStoreUnknown, name)
	}
	return s, nil
}

// Stores lists the store names, sorted.
func (r *Replica) Stores() []string {
	var names []string
	r.stores.Range(func(name string, _ *Store) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

func (r *Replica) Source() uint64 { return r.src }

func (r *Replica) Name() string { return r.name }

func (r *Replica) DB() *pebble.DB { return r.db }

// AddHose subscribes a named queue to the replica's broadcast stream;
// every local mutation of every store arrives as a one-op diff batch.
func (r *Replica) AddHose(name string) protocol.FeedCloser {
	q := utils.NewFDQueue[protocol.Records](
		r.opts.HoseLimit, r.opts.HoseTimeLimit, r.opts.HoseBatchSize)
	r.hoses.Store(name, q)
	return q
}

func (r *Replica) RemoveHose(name string) error {
	q, ok := r.hoses.LoadAndDelete(name)
	if !ok {
		return errors.Wrap(ErrHoseUnknown, name)
	}
	return q.Close()
}

// Broadcast pushes the records to every hose except the named one. A hose
// that overflows or fails is dropped; its consumer resyncs when it notices.
func (r *Replica) Broadcast(ctx context.Context, recs protocol.Records, except string) {
	r.hoses.Range(func(name string, q *utils.FDQueue[protocol.Records]) bool {
		if name == except {
			return true
		}
		if err := q.Drain(ctx, recs); err != nil {
			r.log.Warn("dropping a failed hose", "hose", name, "err", err)
			_ = q.Close()
			r.hoses.Delete(name)
		}
		return true
	})
}

// Drain applies an incoming sync stream: a handshake resets (or creates)
// the named store, diff batches replay onto it, a bye just logs. Decode
// and apply errors surface to the caller, they never travel back to the
// authority.
func (r *Replica) Drain(ctx context.Context, recs protocol.Records) error {
	for _, rec := range recs {
		switch protocol.Lit(rec) {
		case 'H':
			h, err := parseHandshake(rec)
			if err != nil {
				return err
			}
			s, err := r.Store(h.Store)
			if errors.Is(err, ErrStoreUnknown) {
				// restrictions live on the authority; a mirror takes
				// whatever a well-formed authority accepted
				if s, err = r.CreateStore(h.Store); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
			s.resetForSync()
			r.log.DebugCtx(ctx, "sync: handshake received",
				"store", h.Store, "src", h.Src, "mode", h.Mode.String(),
				"trace", h.Trace.String())

		case 'D':
			name, ops, err := ParseDiffRecord(r.reg, rec)
			if err != nil {
				return err
			}
			s, err := r.Store(name)
			if err != nil {
				return err
			}
			diffBatches.WithLabelValues("in").Inc()
			if err = s.ApplyDiff(ops); err != nil {
				return err
			}

		case 'B':
			trace, reason, err := parseBye(rec)
			if err != nil {
				return err
			}
			r.log.DebugCtx(ctx, "sync: bye received",
				"trace", trace.String(), "reason", reason)

		default:
			return protocol.ErrBadRecord
		}
	}
	return nil
}

// Close shuts the hoses and the db. Stores become orphans: still readable,
// no longer persisted.
func (r *Replica) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.db == nil {
		return ErrClosed
	}
	r.hoses.Range(func(name string, q *utils.FDQueue[protocol.Records]) bool {
		_ = q.Close()
		r.hoses.Delete(name)
		return true
	})
	r.stores.Range(func(name string, s *Store) bool {
		s.commit = nil
		return true
	})
	err := r.db.Close()
	r.db = nil
	return errors.Wrap(err, "closing the replica db")
}
