package recast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recast-db/recast/rtv"
)

func TestStore_SetGetScenario(t *testing.T) {
	s := NewStore("gameplay")
	hp := text(t, "hp")

	var updated []uint64
	s.OnUpdated(func(_, val rtv.Value) { updated = append(updated, val.Uint64()) })

	s.SetData(hp, rtv.U64(100))
	got, found := s.GetData(hp)
	require.True(t, found)
	assert.Equal(t, uint64(100), got.Uint64())

	s.SetData(hp, rtv.U64(90))
	assert.Equal(t, []uint64{90}, updated)

	keys := s.GetKeys()
	require.Len(t, keys, 1, "an update must not grow the key set")
	assert.True(t, keys[0].Equals(hp))
}

func TestStore_KeyRestriction(t *testing.T) {
	s := NewStore("scores", WithKeyType(rtv.TagText32))

	var fired int
	s.OnAdded(func(_, _ rtv.Value) { fired++ })
	s.OnUpdated(func(_, _ rtv.Value) { fired++ })
	s.OnRemoved(func(_ rtv.Value) { fired++ })

	s.SetData(rtv.U64(7), rtv.U64(1)) // key kind not allowed
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, fired)

	s.SetData(text(t, "ok"), rtv.U64(1))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, fired)
}

func TestStore_ValueRestriction(t *testing.T) {
	s := NewStore("stats", WithValueType(rtv.TagF64))
	a := text(t, "a")

	var fired int
	s.OnAdded(func(_, _ rtv.Value) { fired++ })

	s.SetData(a, rtv.U64(5)) // value kind not allowed
	_, found := s.GetData(a)
	assert.False(t, found)
	assert.Equal(t, 0, fired)

	s.SetData(a, rtv.F64(5))
	_, found = s.GetData(a)
	assert.True(t, found)
	assert.Equal(t, 1, fired)
}

func TestStore_NotificationsExactlyOnce(t *testing.T) {
	s := NewStore("n")
	k := text(t, "k")

	added, updated, removed := 0, 0, 0
	s.OnAdded(func(_, _ rtv.Value) { added++ })
	s.OnUpdated(func(_, _ rtv.Value) { updated++ })
	s.OnRemoved(func(_ rtv.Value) { removed++ })

	s.SetData(k, rtv.U64(1))
	assert.Equal(t, [3]int{1, 0, 0}, [3]int{added, updated, removed})

	s.SetData(k, rtv.U64(2))
	assert.Equal(t, [3]int{1, 1, 0}, [3]int{added, updated, removed})

	s.RemoveData(k)
	assert.Equal(t, [3]int{1, 1, 1}, [3]int{added, updated, removed})

	s.RemoveData(k) // absent, no event
	assert.Equal(t, [3]int{1, 1, 1}, [3]int{added, updated, removed})
}

func TestStore_MultipleObservers(t *testing.T) {
	s := NewStore("fanout")
	one, two := 0, 0
	s.OnAdded(func(_, _ rtv.Value) { one++ })
	tok := s.OnAdded(func(_, _ rtv.Value) { two++ })

	s.SetData(text(t, "a"), rtv.U64(1))
	assert.Equal(t, 1, one)
	assert.Equal(t, 1, two)

	s.Off(tok)
	s.SetData(text(t, "b"), rtv.U64(2))
	assert.Equal(t, 2, one)
	assert.Equal(t, 1, two, "a canceled observer sees nothing")
}
