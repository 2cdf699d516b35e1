package protocol

import (
	"context"
	"io"
)

// Feeder and Drainer are the two interfaces every record pipe in recast
// implements. A Feeder hands out batches of records, a Drainer swallows
// them; syncers, queues and stores all speak these so they can be wired
// to each other freely.

// Feeder reads the next batch of records from a source.
type Feeder interface {
	// Feed returns the next batch. The EoF convention follows io.Reader:
	// either `recs, EoF` or `recs, nil` followed by `nil, EoF`.
	Feed(ctx context.Context) (recs Records, err error)
}

type FeedCloser interface {
	Feeder
	io.Closer
}

// Drainer writes a batch of records to a destination.
type Drainer interface {
	Drain(ctx context.Context, recs Records) error
}

type DrainCloser interface {
	Drainer
	io.Closer
}

type FeedDrainCloser interface {
	Feeder
	Drainer
	io.Closer
}

// Traced objects carry a trace id for logging and debugging.
type Traced interface {
	GetTraceId() string
}

type FeedDrainCloserTraced interface {
	FeedDrainCloser
	Traced
}

// Relay performs a single feed-drain step between a feeder and a drainer.
// Records returned alongside a feed error are still drained.
func Relay(ctx context.Context, feeder Feeder, drainer Drainer) error {
	recs, err := feeder.Feed(ctx)
	if err != nil {
		if len(recs) > 0 {
			_ = drainer.Drain(ctx, recs)
		}
		return err
	}
	return drainer.Drain(ctx, recs)
}

// Pump relays records from feeder to drainer until an error occurs,
// typically EoF.
func Pump(ctx context.Context, feeder Feeder, drainer Drainer) (err error) {
	for err == nil && ctx.Err() == nil {
		err = Relay(ctx, feeder, drainer)
	}
	if err == nil {
		err = ctx.Err()
	}
	return
}

// PumpThenClose pumps until an error, then closes both ends. The feed
// error takes precedence over the drain error.
func PumpThenClose(ctx context.Context, feed FeedCloser, drain DrainCloser) error {
	var ferr, derr error
	for ferr == nil && derr == nil && ctx.Err() == nil {
		var recs Records
		recs, ferr = feed.Feed(ctx)
		if len(recs) > 0 { // Feed() may return data AND EoF
			derr = drain.Drain(ctx, recs)
		}
	}
	_ = feed.Close()
	_ = drain.Close()
	if ferr != nil {
		return ferr
	}
	return derr
}
