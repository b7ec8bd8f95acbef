package blocksum

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ygrebnov/errorc"

	"github.com/ygrebnov/blocksum/pool"
)

// Instrument names recorded into the configured metrics.Provider.
const (
	MetricBlocksRead     = "blocks_read"
	MetricBytesRead      = "bytes_read"
	MetricBlocksHashed   = "blocks_hashed"
	MetricResultsEmitted = "results_emitted"
	MetricWindowPending  = "window_pending"
	MetricHashDuration   = "hash_duration_seconds"
	MetricAdmissionWait  = "admission_wait_seconds"
)

// Summary describes a finished run. On failure Emitted tells how long the
// contiguous prefix written to the Emitter is.
type Summary struct {
	Size      int64
	BlockSize int
	Blocks    uint64
	Emitted   uint64
	Workers   int
	Window    int
	Elapsed   time.Duration
}

// Run hashes size bytes read from src block by block and emits one result per
// block, in block order, to emit.
//
// Semantics:
//   - Blocks are read sequentially by one goroutine, hashed by a pool of workers
//     and reordered by an OrderedSink before emission.
//   - The first fault (read, size mismatch, hashing, emission) or the cancellation
//     of ctx stops the run. The returned error wraps the first cause.
//   - Only a contiguous prefix of results starting at 0 is ever emitted.
//   - After cancellation Run waits for its goroutines at most the shutdown timeout;
//     if they do not stop in time, ErrShutdownTimeout is joined to the cause.
func Run(ctx context.Context, src io.Reader, size int64, emit Emitter, opts ...Option) (Summary, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return Summary{}, err
	}
	if src == nil || emit == nil {
		return Summary{}, errorc.With(ErrInvalidConfig, errorc.String("", "Run requires a source and an emitter"))
	}
	if size < 0 {
		return Summary{}, errorc.With(ErrInvalidConfig, errorc.String("size", fmt.Sprint(size)))
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return newPipeline(cfg, src, size, emit).run(ctx)
}

// RunFile opens path and runs the pipeline over its whole content.
// Failing to open or stat the file is reported before anything is started.
func RunFile(ctx context.Context, path string, emit Emitter, opts ...Option) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Summary{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return Summary{}, fmt.Errorf("%s is not a regular file", path)
	}
	return Run(ctx, f, info.Size(), emit, opts...)
}

type pipeline struct {
	cfg  *config
	src  io.Reader
	size int64
	emit Emitter
}

func newPipeline(cfg *config, src io.Reader, size int64, emit Emitter) *pipeline {
	return &pipeline{cfg: cfg, src: src, size: size, emit: emit}
}

func (p *pipeline) run(ctx context.Context) (Summary, error) {
	start := time.Now()
	cfg := p.cfg
	total := BlockCount(p.size, cfg.BlockSize)

	bus := NewBus()
	stopWatch := bus.Watch(ctx)
	defer stopWatch()

	sink, err := NewOrderedSink(int(cfg.Window), total, p.emit, bus)
	if err != nil {
		return Summary{}, err
	}
	sink.instrument(cfg.Metrics)

	buffers := p.newBufferPool()
	blocks := make(chan Block, cfg.QueueSize)

	cfg.Logger.Debug("pipeline starting",
		"size", p.size, "block_size", cfg.BlockSize, "blocks", total,
		"workers", cfg.Workers, "queue", cfg.QueueSize, "window", cfg.Window)

	lc := newLifecycleCoordinator(bus, cfg.ShutdownTimeout, cfg.Logger)
	lc.spawn("reader", newBlockReader(p.src, p.size, cfg.BlockSize, blocks, buffers, bus, cfg).run)
	for i := 0; i < int(cfg.Workers); i++ {
		lc.spawn("hasher", newHasher(i, blocks, sink, buffers, bus, cfg).run)
	}
	shutdownErr := lc.await()

	summary := Summary{
		Size:      p.size,
		BlockSize: cfg.BlockSize,
		Blocks:    total,
		Emitted:   sink.Base(),
		Workers:   int(cfg.Workers),
		Window:    sink.Window(),
		Elapsed:   time.Since(start),
	}

	cause := bus.Cause()
	complete := sink.Complete()
	switch {
	case cause != nil && !(complete && errors.Is(cause, ErrCancelled)):
		if shutdownErr != nil {
			return summary, errors.Join(cause, shutdownErr)
		}
		return summary, cause
	case !complete:
		return summary, fmt.Errorf("%w: emitted %d of %d blocks", ErrIncomplete, summary.Emitted, total)
	}

	cfg.Logger.Debug("pipeline finished", "blocks", total, "elapsed", summary.Elapsed)
	return summary, nil
}

// newBufferPool sizes the fixed pool to the most buffers the pipeline can hold
// at once: a full queue, one per worker and one in the reader's hands.
// Buffers never exceed the input size, so a huge block size over a small file
// does not allocate more than the file.
func (p *pipeline) newBufferPool() pool.Pool {
	length := p.cfg.BlockSize
	if p.size < int64(length) {
		length = int(p.size)
	}
	if !p.cfg.FixedBufferPool {
		return pool.NewDynamic(length)
	}
	return pool.NewFixed(p.cfg.QueueSize+p.cfg.Workers+1, length)
}
