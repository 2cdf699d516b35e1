package recast

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cockroachdb/pebble"

	"github.com/recast-db/recast/rtv"
)

// dumpKVString renders one pebble key/value pair readably; unknown keys
// come out empty.
func dumpKVString(reg *rtv.Registry, key, value []byte) string {
	if len(key) == 0 {
		return ""
	}
	switch key[0] {
	case 'Y':
		src, name, err := parseIdentityValue(value)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("Y:\t%x %q", src, name)
	case 'C':
		if len(key) != 5 {
			return ""
		}
		name, ktag, vtag, err := parseConfigValue(value)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("C.%08x:\t%q key=%d value=%d",
			binary.BigEndian.Uint32(key[1:]), name, ktag, vtag)
	case 'S':
		if len(key) != 5 {
			return ""
		}
		entries, tick, shape, _, err := loadStateValue(reg, value)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("S.%08x:\t%d entries, tick %d, shape %d",
			binary.BigEndian.Uint32(key[1:]), len(entries), tick, shape)
	}
	return ""
}

// DumpAll writes the replica's pebble content and then the live entries of
// every store, for eyeballing state in tests and the REPL.
func (r *Replica) DumpAll(w io.Writer) {
	r.DumpDB(w)
	fmt.Fprintln(w, "")
	r.DumpStores(w)
}

func (r *Replica) DumpDB(w io.Writer) {
	it, err := r.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		fmt.Fprintln(w, "iter:", err)
		return
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		if line := dumpKVString(r.reg, it.Key(), it.Value()); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

func (r *Replica) DumpStores(w io.Writer) {
	for _, name := range r.Stores() {
		s, err := r.Store(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s:\n", name)
		s.Range(func(key, val rtv.Value) bool {
			fmt.Fprintf(w, "\t%s\t%s\n", key.String(), val.String())
			return true
		})
	}
}
