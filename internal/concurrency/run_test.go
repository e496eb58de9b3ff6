package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunNeverExceedsLimit(t *testing.T) {
	items := make([]int, 37)
	for i := range items {
		items[i] = i
	}
	var inFlight, highWater atomic.Int64
	worker := func(ctx context.Context, n int) (int, error) {
		cur := inFlight.Add(1)
		for {
			hw := highWater.Load()
			if cur <= hw || highWater.CompareAndSwap(hw, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return n * 2, nil
	}

	out, err := Run(context.Background(), items, worker, Options{Limit: 4})
	require.NoError(t, err)
	require.Len(t, out, len(items))
	assert.LessOrEqual(t, highWater.Load(), int64(4))
	assert.Greater(t, highWater.Load(), int64(1), "chunk items should run concurrently")
	for i, o := range out {
		assert.Equal(t, i, o.Index)
		assert.Equal(t, i*2, o.Value)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	var mu sync.Mutex
	seen := map[int]bool{}
	worker := func(ctx context.Context, n int) (string, error) {
		mu.Lock()
		seen[n] = true
		mu.Unlock()
		switch n {
		case 1:
			return "", boom
		case 2:
			panic("bad row")
		}
		return "ok", nil
	}

	out, err := Run(context.Background(), []int{0, 1, 2, 3}, worker, Options{Limit: 4})
	require.NoError(t, err)
	assert.Len(t, seen, 4, "siblings keep running")
	assert.NoError(t, out[0].Err)
	assert.ErrorIs(t, out[1].Err, boom)
	var pe *PanicError
	require.ErrorAs(t, out[2].Err, &pe)
	assert.Equal(t, "bad row", pe.Value)
	assert.Equal(t, "ok", out[3].Value)
}

func TestRunAfterChunkStops(t *testing.T) {
	stop := errors.New("storage down")
	var calls atomic.Int64
	worker := func(ctx context.Context, n int) (int, error) {
		calls.Add(1)
		return n, nil
	}
	var done []int
	out, err := Run(context.Background(), []int{1, 2, 3, 4, 5}, worker, Options{
		Limit: 2,
		AfterChunk: func(n int) error {
			done = append(done, n)
			if n >= 4 {
				return stop
			}
			return nil
		},
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []int{2, 4}, done)
	assert.Len(t, out, 4)
	assert.Equal(t, int64(4), calls.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	worker := func(ctx context.Context, n int) (int, error) {
		if n == 0 {
			cancel()
		}
		return n, nil
	}
	out, err := Run(ctx, []int{0, 1, 2}, worker, Options{Limit: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, out, 1)
}
