package recast

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/recast-db/recast/protocol"
	"github.com/recast-db/recast/utils"
)

type SyncMode byte

const (
	// SyncOnce ships one diff batch against the peer's baseline and says bye.
	SyncOnce SyncMode = 1
	// SyncLive follows the snapshot with the live mutation stream until the
	// session is closed.
	SyncLive SyncMode = 2
)

func (m SyncMode) String() string {
	switch m {
	case SyncOnce:
		return "once"
	case SyncLive:
		return "live"
	}
	return "?"
}

type SyncState int

const (
	SendHandshake SyncState = iota
	SendDiff
	SendLive
	SendEOF
	SendNone
)

func (s SyncState) String() string {
	return []string{"SendHandshake", "SendDiff", "SendLive", "SendEOF", "SendNone"}[s]
}

// Syncer is the feeding end of one replication session: one store, one
// peer. Feed walks handshake, diff, live, bye; the receiving end is any
// Drainer that understands the records, normally another Replica. The
// transport between the two is not this package's business, anything that
// moves records in order can carry a session.
//
// Delivery is assumed ordered and reliable: once Feed hands a diff out,
// the peer is taken to hold it. An unsure caller can Rebase and resend
// everything from a fresh snapshot.
type Syncer struct {
	store *Store
	repl  *Replica
	peer  string
	mode  SyncMode
	log   utils.Logger

	trace    uuid.UUID
	state    SyncState
	pending  []DiffOp
	hose     protocol.FeedCloser
	hoseName string
	reason   error
}

// NewSyncer opens a feeding session for the named store. The snapshot diff
// is captured right here and, for a live session, atomically with the hose
// subscription under the store's write lock: every mutation lands in
// exactly one of the two, never both.
func (r *Replica) NewSyncer(store, peer string, mode SyncMode) (*Syncer, error) {
	s, err := r.Store(store)
	if err != nil {
		return nil, err
	}
	syn := &Syncer{
		store: s,
		repl:  r,
		peer:  peer,
		mode:  mode,
		log:   r.log,
		trace: uuid.New(),
	}
	syn.hoseName = "sync-" + syn.trace.String()
	syn.capture()
	return syn, nil
}

func (syn *Syncer) capture() {
	syn.store.lock()
	defer syn.store.unlock()
	if syn.mode&SyncLive != 0 && syn.hose == nil {
		syn.hose = syn.repl.AddHose(syn.hoseName)
	}
	syn.pending = syn.store.dmap.DiffSince(Baseline{})
}

// GetTraceId implements protocol.Traced.
func (syn *Syncer) GetTraceId() string { return syn.trace.String() }

func (syn *Syncer) Feed(ctx context.Context) (recs protocol.Records, err error) {
	switch syn.state {
	case SendHandshake:
		recs = protocol.Records{handshakeRecord(handshake{
			Src:   syn.repl.Source(),
			Store: syn.store.Name(),
			Trace: syn.trace,
			Mode:  syn.mode,
		})}
		syn.state = SendDiff
		syn.log.DebugCtx(ctx, "sync: handshake sent",
			"store", syn.store.Name(), "peer", syn.peer, "trace", syn.trace.String())

	case SendDiff:
		ops := syn.pending
		syn.pending = nil
		recs = protocol.Records{DiffRecord(syn.store.Name(), ops)}
		diffBatches.WithLabelValues("out").Inc()
		if syn.mode&SyncLive != 0 {
			syn.state = SendLive
		} else {
			syn.state = SendEOF
		}
		syn.log.DebugCtx(ctx, "sync: diff sent",
			"store", syn.store.Name(), "peer", syn.peer, "ops", len(ops))

	case SendLive:
		recs, err = syn.hose.Feed(ctx)
		recs = syn.ownBatches(recs)
		if err == utils.ErrClosed {
			syn.state = SendEOF
			err = nil
		} else if err != nil {
			syn.reason = err
			syn.state = SendEOF
			err = nil
		}

	case SendEOF:
		reason := "closing"
		if syn.reason != nil {
			reason = syn.reason.Error()
		}
		recs = protocol.Records{byeRecord(syn.trace, reason)}
		syn.state = SendNone

	case SendNone:
		err = io.EOF
	}
	return
}

// ownBatches filters a hose batch down to this session's store; the hose
// carries every store's broadcasts.
func (syn *Syncer) ownBatches(recs protocol.Records) protocol.Records {
	kept := recs[:0]
	for _, rec := range recs {
		if protocol.Lit(rec) != 'D' {
			continue
		}
		name, _, err := ParseDiffRecord(syn.store.reg, rec)
		if err != nil || name != syn.store.Name() {
			continue
		}
		kept = append(kept, rec)
		diffBatches.WithLabelValues("out").Inc()
	}
	return kept
}

// Rebase forgets what the peer holds; the next Feed restarts the session
// from the handshake and a full snapshot. A live session resubscribes its
// hose so the stream picks up exactly where the new snapshot ends.
func (syn *Syncer) Rebase() {
	if syn.hose != nil {
		_ = syn.repl.RemoveHose(syn.hoseName)
		syn.hose = nil
	}
	syn.capture()
	syn.state = SendHandshake
}

func (syn *Syncer) Close() error {
	if syn.hose != nil {
		_ = syn.repl.RemoveHose(syn.hoseName)
		syn.hose = nil
	}
	syn.state = SendNone
	return nil
}

// SyncTo replays the named store of one replica onto another, in-process.
// SyncOnce returns after the snapshot has been applied; SyncLive keeps
// pumping mutations until the context is canceled.
func SyncTo(ctx context.Context, from *Replica, store string, to *Replica, mode SyncMode) error {
	syn, err := from.NewSyncer(store, to.name, mode)
	if err != nil {
		return err
	}
	defer syn.Close()
	err = protocol.Pump(ctx, syn, to)
	if err == io.EOF {
		err = nil
	}
	return err
}
