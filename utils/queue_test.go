package utils

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFDQueueDrainFeed(t *testing.T) {
	const N = 1 << 10
	const K = 1 << 4 // writers

	ctx := context.Background()
	queue := NewFDQueue[[][]byte](1024, time.Minute, 512)

	for k := 0; k < K; k++ {
		go func(k int) {
			i := uint64(k) << 32
			for n := uint64(0); n < N; n++ {
				var b [8]byte
				binary.LittleEndian.PutUint64(b[:], i|n)
				err := queue.Drain(ctx, [][]byte{b[:]})
				assert.Nil(t, err)
			}
		}(k)
	}

	// records of one writer arrive in order, whatever the interleaving
	check := [K]int{}
	for i := uint64(0); i < N*K; {
		nums, err := queue.Feed(ctx)
		assert.Nil(t, err)
		for _, num := range nums {
			assert.Equal(t, 8, len(num))
			j := binary.LittleEndian.Uint64(num)
			k := int(j >> 32)
			n := int(j & 0xffffffff)
			assert.Equal(t, check[k], n)
			check[k] = n + 1
			i++
		}
	}

	assert.Nil(t, queue.Close())
	err := queue.Drain(ctx, [][]byte{{'a'}})
	assert.Equal(t, ErrClosed, err)
	_, err = queue.Feed(ctx)
	assert.Equal(t, ErrClosed, err)
}

func TestFDQueueOverflow(t *testing.T) {
	ctx := context.Background()
	queue := NewFDQueue[[][]byte](16, 10*time.Millisecond, 8)

	payload := make([]byte, 12)
	assert.Nil(t, queue.Drain(ctx, [][]byte{payload}))

	// does not fit, stays blocked past the time limit
	err := queue.Drain(ctx, [][]byte{payload})
	assert.Equal(t, ErrOverflow, err)

	// the overflow is sticky
	_, err = queue.Feed(ctx)
	assert.Equal(t, ErrOverflow, err)
	assert.Equal(t, ErrOverflow, queue.Drain(ctx, [][]byte{{'x'}}))
}

func TestFDQueueBatching(t *testing.T) {
	ctx := context.Background()
	queue := NewFDQueue[[][]byte](1024, 10*time.Millisecond, 8)

	assert.Nil(t, queue.Drain(ctx, [][]byte{{'a'}, {'b', 'c'}}))

	// a short batch comes back once the time limit expires
	recs, err := queue.Feed(ctx)
	assert.Nil(t, err)
	assert.Equal(t, [][]byte{{'a'}, {'b', 'c'}}, recs)
	assert.Equal(t, 0, queue.Size())
}
