package recast

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recast-db/recast/protocol"
	"github.com/recast-db/recast/rtv"
)

func TestSyncer_FeedSequence(t *testing.T) {
	dirs, cancel := testdirs(0x5e)
	defer cancel()

	a, err := Open(dirs[0], Options{Src: 0x5e, Name: "test replica"})
	require.NoError(t, err)
	defer a.Close()

	s, err := a.CreateStore("seq")
	require.NoError(t, err)
	s.SetData(text(t, "k"), rtv.U64(1))

	syn, err := a.NewSyncer("seq", "peer", SyncOnce)
	require.NoError(t, err)
	defer syn.Close()
	ctx := context.Background()

	recs, err := syn.Feed(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, byte('H'), protocol.Lit(recs[0]))
	h, err := parseHandshake(recs[0])
	require.NoError(t, err)
	assert.Equal(t, "seq", h.Store)
	assert.Equal(t, uint64(0x5e), h.Src)
	assert.Equal(t, SyncOnce, h.Mode)

	recs, err = syn.Feed(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	name, ops, err := ParseDiffRecord(rtv.Std, recs[0])
	require.NoError(t, err)
	assert.Equal(t, "seq", name)
	require.Len(t, ops, 1)
	assert.Equal(t, OpAdd, ops[0].Kind)

	recs, err = syn.Feed(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, byte('B'), protocol.Lit(recs[0]))

	_, err = syn.Feed(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestSyncer_UnknownStore(t *testing.T) {
	dirs, cancel := testdirs(0x6f)
	defer cancel()

	a, err := Open(dirs[0], Options{Src: 0x6f, Name: "test replica"})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.NewSyncer("nosuch", "peer", SyncOnce)
	assert.ErrorIs(t, err, ErrStoreUnknown)
}

func TestSyncer_Rebase(t *testing.T) {
	dirs, cancel := testdirs(0x70)
	defer cancel()

	a, err := Open(dirs[0], Options{Src: 0x70, Name: "test replica"})
	require.NoError(t, err)
	defer a.Close()

	s, err := a.CreateStore("rb")
	require.NoError(t, err)
	s.SetData(text(t, "k"), rtv.U64(1))

	syn, err := a.NewSyncer("rb", "peer", SyncOnce)
	require.NoError(t, err)
	defer syn.Close()
	ctx := context.Background()

	_, err = syn.Feed(ctx) // handshake
	require.NoError(t, err)
	_, err = syn.Feed(ctx) // snapshot out, peer assumed up to date
	require.NoError(t, err)

	s.SetData(text(t, "k2"), rtv.U64(2))
	syn.Rebase()

	recs, err := syn.Feed(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte('H'), protocol.Lit(recs[0]), "a rebase restarts from the handshake")

	recs, err = syn.Feed(ctx)
	require.NoError(t, err)
	_, ops, err := ParseDiffRecord(rtv.Std, recs[0])
	require.NoError(t, err)
	assert.Len(t, ops, 2, "a rebase resends the full snapshot")
}
