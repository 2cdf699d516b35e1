package recast

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/recast-db/recast/rtv"
	"github.com/recast-db/recast/utils"
)

// Options configures a Replica. The embedded pebble.Options go straight to
// the storage engine; everything else is recast's own.
type Options struct {
	pebble.Options

	// Src tags this replica in handshakes and the identity record. The
	// authority framework decides who writes; Src only names peers.
	Src  uint64
	Name string

	Logger   utils.Logger
	Registry *rtv.Registry

	// Live hose tuning: byte cap per hose, how long a full hose may block
	// a producer before it counts as overflowed, and the feed batch size.
	HoseLimit     int
	HoseTimeLimit time.Duration
	HoseBatchSize int
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
	if o.Registry == nil {
		o.Registry = rtv.Std
	}
	if o.HoseLimit == 0 {
		o.HoseLimit = 1 << 20
	}
	if o.HoseTimeLimit == 0 {
		o.HoseTimeLimit = time.Second
	}
	if o.HoseBatchSize == 0 {
		o.HoseBatchSize = 1 << 16
	}
}

// WriteOptions recast uses for every pebble write; the WAL still covers
// crashes, fsync-per-mutation would be waste.
var WriteOptions = pebble.WriteOptions{Sync: false}
