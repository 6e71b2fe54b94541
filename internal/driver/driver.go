package driver

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Driver runs a frame processing function over shards of a frame sequence on a fixed number of workers
type Driver struct {
	log     *zap.Logger
	threads int
	out     io.Writer
}

// New creates a driver with the given worker count, drawing progress to out
func New(log *zap.Logger, threads int, out io.Writer) *Driver {
	if out == nil {
		out = io.Discard
	}
	return &Driver{
		log:     log.Named("DRIVER"),
		threads: max(threads, 1),
		out:     out,
	}
}

// Run processes framePaths and returns the first shard error.
// After an error or cancellation no further shards are dispatched; shards already running finish.
func (d *Driver) Run(ctx context.Context, sourcePath string, framePaths []string, process func(string, []string, func()) error) error {
	if len(framePaths) == 0 {
		return nil
	}

	shards := Shard(framePaths, d.threads)
	workers := min(d.threads, len(shards))

	// frames can hold any number of faces, so the total is unknown
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription("Processing"),
		progressbar.OptionSetWriter(d.out),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("faces"),
	)
	var swapped atomic.Int64
	onFaceSwapped := func() {
		swapped.Add(1)
		_ = bar.Add(1)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	shardChan := make(chan []string)
	errChan := make(chan error, workers)

	d.log.Debug("dispatching frames",
		zap.Int("frames", len(framePaths)),
		zap.Int("shards", len(shards)),
		zap.Int("workers", workers))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for shard := range shardChan {
				if err := process(sourcePath, shard, onFaceSwapped); err != nil {
					select {
					case errChan <- err:
					default:
					}
					cancel()
					return
				}
			}
		}()
	}

dispatch:
	for _, shard := range shards {
		select {
		case shardChan <- shard:
		case <-runCtx.Done():
			break dispatch
		}
	}
	close(shardChan)
	wg.Wait()
	_ = bar.Finish()

	select {
	case err := <-errChan:
		return err
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.log.Info("frames processed",
		zap.Int("frames", len(framePaths)),
		zap.Int64("faces", swapped.Load()))
	return nil
}

// Shard splits paths into contiguous chunks of max(len/threads, 1) paths
func Shard(paths []string, threads int) [][]string {
	size := max(len(paths)/max(threads, 1), 1)

	shards := make([][]string, 0, (len(paths)+size-1)/size)
	for start := 0; start < len(paths); start += size {
		end := min(start+size, len(paths))
		shards = append(shards, paths[start:end])
	}
	return shards
}
