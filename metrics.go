package recast

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recast",
		Subsystem: "store",
		Name:      "mutations_total",
		Help:      "Local mutations by store and op kind",
	}, []string{"store", "op"})

	appliedOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recast",
		Subsystem: "store",
		Name:      "applied_ops_total",
		Help:      "Replicated diff ops applied by store and op kind",
	}, []string{"store", "op"})

	schemaViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recast",
		Subsystem: "store",
		Name:      "schema_violations_total",
		Help:      "Writes dropped for violating the store's kind restrictions",
	}, []string{"store", "side"})

	notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recast",
		Subsystem: "store",
		Name:      "notifications_total",
		Help:      "Events fanned out to observers by store and event",
	}, []string{"store", "event"})

	diffBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recast",
		Subsystem: "sync",
		Name:      "diff_batches_total",
		Help:      "Diff batches moved by direction",
	}, []string{"dir"})
)

// RegisterMetrics registers the package counters with the registerer,
// plus a Collector over the replica when one is given.
func RegisterMetrics(reg prometheus.Registerer, r *Replica) error {
	for _, c := range []prometheus.Collector{
		mutations, appliedOps, schemaViolations, notifications, diffBatches,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	if r != nil {
		return reg.Register(NewCollector(r))
	}
	return nil
}

// Collector exports point-in-time gauges over a Replica: per-store
// container stats and a small slice of the storage engine's own metrics.
type Collector struct {
	r *Replica

	stores  *prometheus.Desc
	entries *prometheus.Desc
	tick    *prometheus.Desc
	shape   *prometheus.Desc

	diskUsage       *prometheus.Desc
	compactionCount *prometheus.Desc
	memtableSize    *prometheus.Desc
	walSize         *prometheus.Desc
}

func NewCollector(r *Replica) *Collector {
	return &Collector{
		r: r,

		stores: prometheus.NewDesc(
			"recast_stores",
			"Number of stores the replica holds",
			nil, nil,
		),
		entries: prometheus.NewDesc(
			"recast_store_entries",
			"Entries per store",
			[]string{"store"}, nil,
		),
		tick: prometheus.NewDesc(
			"recast_store_tick",
			"Container clock per store",
			[]string{"store"}, nil,
		),
		shape: prometheus.NewDesc(
			"recast_store_shape",
			"Structural revision per store",
			[]string{"store"}, nil,
		),

		diskUsage: prometheus.NewDesc(
			"recast_db_disk_usage_bytes",
			"Bytes the storage engine occupies on disk",
			nil, nil,
		),
		compactionCount: prometheus.NewDesc(
			"recast_db_compaction_count_total",
			"Total number of storage compactions performed",
			nil, nil,
		),
		memtableSize: prometheus.NewDesc(
			"recast_db_memtable_size_bytes",
			"Current size of the storage memtable in bytes",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"recast_db_wal_size_bytes",
			"Size of live WAL data in bytes",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stores
	ch <- c.entries
	ch <- c.tick
	ch <- c.shape
	ch <- c.diskUsage
	ch <- c.compactionCount
	ch <- c.memtableSize
	ch <- c.walSize
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	count := 0
	c.r.stores.Range(func(name string, s *Store) bool {
		count++
		ch <- prometheus.MustNewConstMetric(
			c.entries, prometheus.GaugeValue, float64(s.Len()), name)
		ch <- prometheus.MustNewConstMetric(
			c.tick, prometheus.GaugeValue, float64(s.dmap.Tick()), name)
		ch <- prometheus.MustNewConstMetric(
			c.shape, prometheus.GaugeValue, float64(s.dmap.Shape()), name)
		return true
	})
	ch <- prometheus.MustNewConstMetric(
		c.stores, prometheus.GaugeValue, float64(count))

	db := c.r.DB()
	if db == nil { // the replica is closed
		return
	}
	m := db.Metrics()
	ch <- prometheus.MustNewConstMetric(
		c.diskUsage, prometheus.GaugeValue, float64(m.DiskSpaceUsage()))
	ch <- prometheus.MustNewConstMetric(
		c.compactionCount, prometheus.CounterValue, float64(m.Compact.Count))
	ch <- prometheus.MustNewConstMetric(
		c.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(
		c.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
}
