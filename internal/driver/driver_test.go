package driver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func framePaths(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("%04d.png", i+1)
	}
	return paths
}

func TestShard(t *testing.T) {
	tests := []struct {
		name    string
		frames  int
		threads int
		sizes   []int
	}{
		{name: "even split", frames: 8, threads: 4, sizes: []int{2, 2, 2, 2}},
		{name: "remainder gets its own shard", frames: 10, threads: 4, sizes: []int{2, 2, 2, 2, 2}},
		{name: "more threads than frames", frames: 3, threads: 8, sizes: []int{1, 1, 1}},
		{name: "single thread", frames: 5, threads: 1, sizes: []int{5}},
		{name: "zero threads", frames: 2, threads: 0, sizes: []int{2}},
		{name: "no frames", frames: 0, threads: 2, sizes: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths := framePaths(tt.frames)
			shards := Shard(paths, tt.threads)

			sizes := make([]int, 0, len(shards))
			for _, s := range shards {
				sizes = append(sizes, len(s))
			}
			assert.Equal(t, tt.sizes, sizes)
			if tt.frames > 0 {
				assert.Equal(t, paths, slices.Concat(shards...), "shards must keep frame order")
			}
		})
	}
}

func TestRunProcessesEveryFrame(t *testing.T) {
	paths := framePaths(23)

	var (
		mu    sync.Mutex
		seen  []string
		faces atomic.Int64
	)
	process := func(source string, shard []string, onFaceSwapped func()) error {
		assert.Equal(t, "face.jpg", source)
		mu.Lock()
		seen = append(seen, shard...)
		mu.Unlock()
		for range shard {
			// two faces per frame
			onFaceSwapped()
			onFaceSwapped()
			faces.Add(2)
		}
		return nil
	}

	d := New(zap.NewNop(), 4, nil)
	require.NoError(t, d.Run(context.Background(), "face.jpg", paths, process))

	slices.Sort(seen)
	assert.Equal(t, paths, seen)
	assert.Equal(t, int64(46), faces.Load())
}

func TestRunReturnsShardError(t *testing.T) {
	paths := framePaths(40)
	boom := errors.New("encode failed")

	var calls atomic.Int32
	process := func(_ string, shard []string, _ func()) error {
		calls.Add(1)
		if shard[0] == paths[0] {
			return boom
		}
		return nil
	}

	err := New(zap.NewNop(), 20, nil).Run(context.Background(), "face.jpg", paths, process)

	assert.ErrorIs(t, err, boom)
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	process := func(string, []string, func()) error {
		return nil
	}

	err := New(zap.NewNop(), 2, nil).Run(ctx, "face.jpg", framePaths(10), process)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunWithoutFrames(t *testing.T) {
	called := false
	err := New(zap.NewNop(), 2, nil).Run(context.Background(), "face.jpg", nil, func(string, []string, func()) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.False(t, called)
}
