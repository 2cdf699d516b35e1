package recast

import (
	"fmt"
	"sort"

	"github.com/gholt/brimtext"

	"github.com/recast-db/recast/protocol"
	"github.com/recast-db/recast/utils"
)

type StoreStats struct {
	Name    string
	Entries int
	// Tick is the container clock, Shape the structural revision.
	Tick  uint64
	Shape uint64
}

// Stats is a point-in-time report over a replica; String renders it as an
// aligned table.
type Stats struct {
	Name      string
	Src       uint64
	Stores    []StoreStats
	Entries   int
	Hoses     int
	DiskUsage uint64
}

func (r *Replica) Stats() Stats {
	st := Stats{Name: r.name, Src: r.src}
	r.stores.Range(func(name string, s *Store) bool {
		st.Stores = append(st.Stores, StoreStats{
			Name:    name,
			Entries: s.Len(),
			Tick:    s.dmap.Tick(),
			Shape:   s.dmap.Shape(),
		})
		st.Entries += s.Len()
		return true
	})
	sort.Slice(st.Stores, func(i, j int) bool { return st.Stores[i].Name < st.Stores[j].Name })
	r.hoses.Range(func(string, *utils.FDQueue[protocol.Records]) bool {
		st.Hoses++
		return true
	})
	if r.db != nil {
		st.DiskUsage = r.db.Metrics().DiskSpaceUsage()
	}
	return st
}

func (s Stats) String() string {
	report := [][]string{
		{"name", s.Name},
		{"src", fmt.Sprintf("%x", s.Src)},
		{"stores", fmt.Sprintf("%d", len(s.Stores))},
		{"entries", fmt.Sprintf("%d", s.Entries)},
		{"hoses", fmt.Sprintf("%d", s.Hoses)},
		{"diskUsage", fmt.Sprintf("%d", s.DiskUsage)},
	}
	for _, ss := range s.Stores {
		report = append(report, []string{
			"store " + ss.Name,
			fmt.Sprintf("%d entries, tick %d, shape %d", ss.Entries, ss.Tick, ss.Shape),
		})
	}
	return brimtext.Align(report, nil)
}
