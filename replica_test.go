package recast

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recast-db/recast/rtv"
)

func testdirs(origs ...uint64) ([]string, func()) {
	dirs := make([]string, len(origs))

	for i, orig := range origs {
		dirs[i] = fmt.Sprintf("recast%x", orig)
		os.RemoveAll(dirs[i])
	}

	return dirs, func() {
		for _, dir := range dirs {
			os.RemoveAll(dir)
		}
	}
}

func TestReplica_Create(t *testing.T) {
	dirs, cancel := testdirs(0x1a)
	defer cancel()

	a, err := Open(dirs[0], Options{
		Src:     0x1a,
		Name:    "test replica",
		Options: pebble.Options{ErrorIfExists: true},
	})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, uint64(0x1a), a.Source())

	_ = a.Close()
}

func TestReplica_Persistence(t *testing.T) {
	dirs, cancel := testdirs(0x2b)
	defer cancel()

	a, err := Open(dirs[0], Options{Src: 0x2b, Name: "test replica"})
	require.NoError(t, err)

	s, err := a.CreateStore("gameplay", WithKeyType(rtv.TagText32))
	require.NoError(t, err)
	s.SetData(text(t, "hp"), rtv.U64(100))
	s.SetData(text(t, "mp"), rtv.U64(50))
	s.SetData(text(t, "hp"), rtv.U64(90))
	s.RemoveData(text(t, "mp"))
	tick, shape := s.dmap.Tick(), s.dmap.Shape()
	require.NoError(t, a.Close())

	b, err := Open(dirs[0], Options{})
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, uint64(0x2b), b.Source(), "identity survives reopen")

	s2, err := b.Store("gameplay")
	require.NoError(t, err)
	assert.Equal(t, rtv.TagText32, s2.KeyType(), "restrictions survive reopen")
	assert.Equal(t, tick, s2.dmap.Tick(), "the container clock survives reopen")
	assert.Equal(t, shape, s2.dmap.Shape())

	got, found := s2.GetData(text(t, "hp"))
	require.True(t, found)
	assert.Equal(t, uint64(90), got.Uint64())
	_, found = s2.GetData(text(t, "mp"))
	assert.False(t, found)
}

func TestReplica_CreateStoreErrors(t *testing.T) {
	dirs, cancel := testdirs(0x3c)
	defer cancel()

	a, err := Open(dirs[0], Options{Src: 0x3c, Name: "test replica"})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.CreateStore("gameplay")
	require.NoError(t, err)
	_, err = a.CreateStore("gameplay")
	assert.ErrorIs(t, err, ErrStoreExists)

	_, err = a.Store("nosuch")
	assert.ErrorIs(t, err, ErrStoreUnknown)
}

func TestReplica_SyncOnce(t *testing.T) {
	dirs, cancel := testdirs(0xa, 0xb)
	defer cancel()

	a, err := Open(dirs[0], Options{Src: 0xa, Name: "test replica A"})
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(dirs[1], Options{Src: 0xb, Name: "test replica B"})
	require.NoError(t, err)
	defer b.Close()

	sa, err := a.CreateStore("metrics")
	require.NoError(t, err)
	sa.SetData(text(t, "hp"), rtv.U64(100))
	sa.SetData(text(t, "mp"), rtv.U64(50))

	sb, err := b.CreateStore("metrics")
	require.NoError(t, err)
	ev := &events{}
	sb.OnAdded(ev.Added)
	sb.OnUpdated(ev.Updated)
	sb.OnRemoved(ev.Removed)

	require.NoError(t, SyncTo(context.Background(), a, "metrics", b, SyncOnce))
	sameContent(t, sa, sb)
	assert.Equal(t, []string{
		"added t:hp u:100",
		"added t:mp u:50",
	}, ev.log, "a mirror's observers see the authority's events, in order")
}

func TestReplica_SyncCreatesUnknownStore(t *testing.T) {
	dirs, cancel := testdirs(0xc, 0xd)
	defer cancel()

	a, err := Open(dirs[0], Options{Src: 0xc, Name: "test replica A"})
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(dirs[1], Options{Src: 0xd, Name: "test replica B"})
	require.NoError(t, err)
	defer b.Close()

	sa, err := a.CreateStore("fresh")
	require.NoError(t, err)
	sa.SetData(text(t, "k"), rtv.U64(7))

	require.NoError(t, SyncTo(context.Background(), a, "fresh", b, SyncOnce))
	sb, err := b.Store("fresh")
	require.NoError(t, err)
	sameContent(t, sa, sb)
}

func TestReplica_SyncLive(t *testing.T) {
	dirs, cancel := testdirs(0xe, 0xf)
	defer cancel()

	a, err := Open(dirs[0], Options{Src: 0xe, Name: "test replica A",
		HoseTimeLimit: 10 * time.Millisecond})
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(dirs[1], Options{Src: 0xf, Name: "test replica B",
		HoseTimeLimit: 10 * time.Millisecond})
	require.NoError(t, err)
	defer b.Close()

	sa, err := a.CreateStore("live")
	require.NoError(t, err)
	sa.SetData(text(t, "before"), rtv.U64(1))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	done := make(chan error, 1)
	go func() { done <- SyncTo(ctx, a, "live", b, SyncLive) }()

	require.Eventually(t, func() bool {
		sb, err := b.Store("live")
		if err != nil {
			return false
		}
		_, found := sb.GetData(text(t, "before"))
		return found
	}, 2*time.Second, 10*time.Millisecond, "the snapshot must arrive")

	sa.SetData(text(t, "after"), rtv.U64(2))
	sa.SetData(text(t, "before"), rtv.U64(10))
	sa.RemoveData(text(t, "after"))

	sb, err := b.Store("live")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		v, found := sb.GetData(text(t, "before"))
		if !found || v.Uint64() != 10 {
			return false
		}
		_, found = sb.GetData(text(t, "after"))
		return !found
	}, 2*time.Second, 10*time.Millisecond, "live mutations must stream through")

	sameContent(t, sa, sb)
	stop()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestReplica_Debug(t *testing.T) {
	dirs, cancel := testdirs(0x4d)
	defer cancel()

	a, err := Open(dirs[0], Options{Src: 0x4d, Name: "test replica"})
	require.NoError(t, err)
	defer a.Close()

	s, err := a.CreateStore("dbg")
	require.NoError(t, err)
	s.SetData(text(t, "hp"), rtv.U64(100))

	line := dumpKVString(rtv.Std, identityKey, identityValue(0x4d, "test replica"))
	assert.Equal(t, "Y:\t4d \"test replica\"", line)

	var buf bytes.Buffer
	a.DumpAll(&buf)
	assert.Contains(t, buf.String(), "dbg:")
	assert.Contains(t, buf.String(), "t:hp\tu:100")

	st := a.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.Contains(t, st.String(), "store dbg")
}
