package utils

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrClosed = errors.New("[recast] feed/drain queue is closed")
var ErrOverflow = errors.New("[recast] feed/drain queue is overflowed")

// FDQueue is a bounded blocking queue of records implementing both the
// protocol Feeder and Drainer contracts, used to decouple producers from
// consumers (e.g. a store broadcasting diffs to live observers).
//
// The queue is bounded by total payload bytes. A Drain that stays blocked
// on a full queue past the time limit marks the queue overflowed; an
// overflowed queue fails all further calls, the consumer is expected to
// drop it and resync. Feed gathers records up to the batch size, waiting
// at most the time limit for more; short and even empty batches are
// returned with a nil error.
type FDQueue[T ~[][]byte] struct {
	ctx        context.Context
	close      context.CancelFunc
	timelimit  time.Duration
	batchSize  int
	maxSize    int
	overflowed atomic.Bool

	lock    sync.Mutex
	data    T
	size    int
	hasData chan struct{}
	hasRoom chan struct{}
}

func NewFDQueue[T ~[][]byte](limit int, timelimit time.Duration, batchSize int) *FDQueue[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &FDQueue[T]{
		timelimit: timelimit,
		ctx:       ctx,
		close:     cancel,
		maxSize:   limit,
		batchSize: batchSize,
		hasData:   make(chan struct{}, 1),
		hasRoom:   make(chan struct{}, 1),
	}
}

// Close releases both ends; queued records are dropped.
func (q *FDQueue[T]) Close() error {
	q.close()
	q.lock.Lock()
	q.data = nil
	q.size = 0
	q.lock.Unlock()
	return nil
}

// Size reports the queued payload in bytes.
func (q *FDQueue[T]) Size() int {
	if q.ctx.Err() != nil {
		return 0
	}
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.size
}

func wake(signal chan struct{}) {
	select {
	case signal <- struct{}{}:
	default:
	}
}

// Drain queues the records, blocking while the queue is full. Returns
// ErrOverflow once the queue stayed full past the time limit; returns nil
// if the queue or the context got canceled mid-wait.
func (q *FDQueue[T]) Drain(ctx context.Context, recs T) error {
	if q.ctx.Err() != nil {
		return ErrClosed
	}
	if q.overflowed.Load() {
		return ErrOverflow
	}

	timer := time.NewTimer(q.timelimit)
	defer timer.Stop()

	for len(recs) > 0 {
		q.lock.Lock()
		free := q.maxSize - q.size
		fit := 0
		for _, rec := range recs {
			if len(rec) > free {
				break
			}
			free -= len(rec)
			fit++
		}
		if fit > 0 {
			q.data = append(q.data, recs[:fit]...)
			q.size = q.maxSize - free
			recs = recs[fit:]
			wake(q.hasData)
		}
		q.lock.Unlock()
		if len(recs) == 0 {
			return nil
		}
		select {
		case <-q.hasRoom:
		case <-q.ctx.Done():
			return nil
		case <-ctx.Done():
			return nil
		case <-timer.C:
			q.overflowed.Store(true)
			return ErrOverflow
		}
	}
	return nil
}

// Feed returns the next batch of records. It keeps gathering until the
// batch size is reached or the time limit expires, whichever comes first.
func (q *FDQueue[T]) Feed(ctx context.Context) (recs T, err error) {
	if q.ctx.Err() != nil {
		return nil, ErrClosed
	}
	if q.overflowed.Load() {
		return nil, ErrOverflow
	}

	timer := time.NewTimer(q.timelimit)
	defer timer.Stop()

	gathered := 0
	for {
		q.lock.Lock()
		taken := 0
		for _, rec := range q.data {
			if gathered >= q.batchSize {
				break
			}
			recs = append(recs, rec)
			gathered += len(rec)
			q.size -= len(rec)
			taken++
		}
		if taken > 0 {
			q.data = q.data[taken:]
			if len(q.data) == 0 { // release the backing array
				q.data = nil
			}
			wake(q.hasRoom)
		}
		q.lock.Unlock()
		if gathered >= q.batchSize {
			return recs, nil
		}
		select {
		case <-q.hasData:
		case <-q.ctx.Done():
			return recs, nil
		case <-ctx.Done():
			return recs, nil
		case <-timer.C:
			return recs, nil
		}
	}
}
