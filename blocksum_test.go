package blocksum_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ygrebnov/blocksum"
	"github.com/ygrebnov/blocksum/metrics"
)

// collector gathers emitted results; the sink serializes Emit calls but the
// test reads them from its own goroutine.
type collector struct {
	mu      sync.Mutex
	seqs    []uint64
	digests []blocksum.Digest
}

func (c *collector) Emit(seq uint64, d blocksum.Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seqs = append(c.seqs, seq)
	c.digests = append(c.digests, d)
	return nil
}

func randomData(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.New(rand.NewSource(int64(n))).Read(data)
	require.NoError(t, err)
	return data
}

// expectedDigests hashes data the slow, obvious way.
func expectedDigests(data []byte, blockSize int) []blocksum.Digest {
	var out []blocksum.Digest
	for off := 0; off < len(data); off += blockSize {
		end := off + blockSize
		if end > len(data) {
			end = len(data)
		}
		out = append(out, blocksum.Digest(sha256.Sum256(data[off:end])))
	}
	return out
}

func requireContiguousPrefix(t *testing.T, seqs []uint64) {
	t.Helper()
	for i, s := range seqs {
		if s != uint64(i) {
			t.Fatalf("emitted sequence %d at position %d; output must be a contiguous prefix: %v", s, i, seqs)
		}
	}
}

func TestRun_EmitsEveryBlockInOrder(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		blockSize int
		opts      []blocksum.Option
	}{
		{name: "single worker", size: 1000, blockSize: 7, opts: []blocksum.Option{blocksum.WithWorkers(1)}},
		{name: "many workers narrow window", size: 10_000, blockSize: 13, opts: []blocksum.Option{
			blocksum.WithWorkers(8), blocksum.WithWindow(1),
		}},
		{name: "exact multiple", size: 4096, blockSize: 512, opts: []blocksum.Option{
			blocksum.WithWorkers(3), blocksum.WithWindow(3),
		}},
		{name: "block larger than input", size: 100, blockSize: 1 << 20},
		{name: "single byte blocks", size: 300, blockSize: 1, opts: []blocksum.Option{
			blocksum.WithWorkers(4), blocksum.WithQueueSize(16), blocksum.WithWindow(2),
		}},
		{name: "dynamic buffers", size: 5000, blockSize: 64, opts: []blocksum.Option{
			blocksum.WithDynamicBufferPool(), blocksum.WithWorkers(4),
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := randomData(t, tc.size)
			var c collector
			opts := append([]blocksum.Option{blocksum.WithBlockSize(tc.blockSize)}, tc.opts...)

			summary, err := blocksum.Run(context.Background(), bytes.NewReader(data), int64(len(data)), &c, opts...)
			require.NoError(t, err)

			want := expectedDigests(data, tc.blockSize)
			require.Len(t, c.seqs, len(want))
			requireContiguousPrefix(t, c.seqs)
			require.Equal(t, want, c.digests)

			require.Equal(t, uint64(len(want)), summary.Blocks)
			require.Equal(t, summary.Blocks, summary.Emitted)
			require.Equal(t, int64(len(data)), summary.Size)
			require.Equal(t, tc.blockSize, summary.BlockSize)
		})
	}
}

func TestRun_DeterministicAcrossConfigurations(t *testing.T) {
	data := randomData(t, 20_000)
	var first []blocksum.Digest
	for _, opts := range [][]blocksum.Option{
		{blocksum.WithWorkers(1), blocksum.WithWindow(1)},
		{blocksum.WithWorkers(2), blocksum.WithWindow(8)},
		{blocksum.WithWorkers(16), blocksum.WithWindow(3), blocksum.WithQueueSize(1)},
	} {
		var c collector
		opts = append(opts, blocksum.WithBlockSize(333))
		_, err := blocksum.Run(context.Background(), bytes.NewReader(data), int64(len(data)), &c, opts...)
		require.NoError(t, err)
		if first == nil {
			first = c.digests
			continue
		}
		require.Equal(t, first, c.digests)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	var c collector
	summary, err := blocksum.Run(context.Background(), bytes.NewReader(nil), 0, &c, blocksum.WithBlockSize(4))
	require.NoError(t, err)
	require.Empty(t, c.seqs)
	require.Zero(t, summary.Blocks)
}

func TestRun_ReadFailureLeavesContiguousPrefix(t *testing.T) {
	const (
		blockSize = 16
		blocks    = 100
	)
	data := randomData(t, blockSize*blocks)
	src := io.MultiReader(bytes.NewReader(data[:5*blockSize]), iotest.ErrReader(errors.New("device gone")))

	var c collector
	summary, err := blocksum.Run(context.Background(), src, int64(len(data)), &c,
		blocksum.WithBlockSize(blockSize), blocksum.WithWorkers(4), blocksum.WithWindow(2))

	require.ErrorIs(t, err, blocksum.ErrReadFailed)
	seq, ok := blocksum.ExtractSequence(err)
	require.True(t, ok)
	require.Equal(t, uint64(5), seq)

	require.LessOrEqual(t, len(c.seqs), 5)
	requireContiguousPrefix(t, c.seqs)
	require.Equal(t, uint64(len(c.seqs)), summary.Emitted)
	require.Equal(t, expectedDigests(data, blockSize)[:len(c.digests)], c.digests)
}

func TestRun_SizeMismatch(t *testing.T) {
	data := randomData(t, 100)
	tests := []struct {
		name string
		size int64
	}{
		{name: "input shrank", size: 120},
		{name: "input grew", size: 80},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var c collector
			_, err := blocksum.Run(context.Background(), bytes.NewReader(data), tc.size, &c, blocksum.WithBlockSize(10))
			require.ErrorIs(t, err, blocksum.ErrSizeMismatch)
			requireContiguousPrefix(t, c.seqs)
		})
	}
}

func TestRun_EmitFailureStopsOutput(t *testing.T) {
	data := randomData(t, 1000)
	var got []uint64
	emit := blocksum.EmitterFunc(func(seq uint64, _ blocksum.Digest) error {
		if seq == 3 {
			return errors.New("stdout closed")
		}
		got = append(got, seq)
		return nil
	})

	summary, err := blocksum.Run(context.Background(), bytes.NewReader(data), int64(len(data)), emit,
		blocksum.WithBlockSize(10), blocksum.WithWorkers(4))
	require.ErrorIs(t, err, blocksum.ErrEmitFailed)
	require.ErrorContains(t, err, "stdout closed")
	require.Equal(t, []uint64{0, 1, 2}, got)
	require.Equal(t, uint64(3), summary.Emitted)
}

func TestRun_ContextCancellationMidRun(t *testing.T) {
	data := randomData(t, 10_000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []uint64
	emit := blocksum.EmitterFunc(func(seq uint64, _ blocksum.Digest) error {
		got = append(got, seq)
		if seq == 3 {
			cancel()
			// give the watcher time to signal before the next emission
			time.Sleep(50 * time.Millisecond)
		}
		return nil
	})

	summary, err := blocksum.Run(ctx, bytes.NewReader(data), int64(len(data)), emit,
		blocksum.WithBlockSize(10), blocksum.WithWorkers(4), blocksum.WithWindow(2))
	require.ErrorIs(t, err, blocksum.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []uint64{0, 1, 2, 3}, got)
	require.Equal(t, uint64(4), summary.Emitted)
	require.Equal(t, uint64(1000), summary.Blocks)
}

func TestRun_AlreadyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var c collector
	_, err := blocksum.Run(ctx, bytes.NewReader([]byte("data")), 4, &c)
	require.ErrorIs(t, err, blocksum.ErrCancelled)
	require.Empty(t, c.seqs)
}

func TestRun_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	var c collector
	src := bytes.NewReader([]byte("data"))

	_, err := blocksum.Run(ctx, nil, 4, &c)
	require.ErrorIs(t, err, blocksum.ErrInvalidConfig)

	_, err = blocksum.Run(ctx, src, 4, nil)
	require.ErrorIs(t, err, blocksum.ErrInvalidConfig)

	_, err = blocksum.Run(ctx, src, -1, &c)
	require.ErrorIs(t, err, blocksum.ErrInvalidConfig)

	_, err = blocksum.Run(ctx, src, 4, &c, blocksum.WithBlockSize(0))
	require.ErrorIs(t, err, blocksum.ErrInvalidConfig)

	require.Empty(t, c.seqs)
}

func TestRun_RecordsMetrics(t *testing.T) {
	const (
		blockSize = 100
		window    = 2
	)
	data := randomData(t, 2550)
	p := metrics.NewBasicProvider()

	var c collector
	_, err := blocksum.Run(context.Background(), bytes.NewReader(data), int64(len(data)), &c,
		blocksum.WithBlockSize(blockSize), blocksum.WithWorkers(4), blocksum.WithWindow(window), blocksum.WithMetrics(p))
	require.NoError(t, err)

	const blocks = 26
	require.Equal(t, int64(blocks), p.CounterValue(blocksum.MetricBlocksRead))
	require.Equal(t, int64(len(data)), p.CounterValue(blocksum.MetricBytesRead))
	require.Equal(t, int64(blocks), p.CounterValue(blocksum.MetricBlocksHashed))
	require.Equal(t, int64(blocks), p.CounterValue(blocksum.MetricResultsEmitted))
	require.Equal(t, int64(0), p.UpDownValue(blocksum.MetricWindowPending))
	require.Equal(t, int64(blocks), p.HistogramSnapshot(blocksum.MetricHashDuration).Count)

	pending := p.UpDownCounter(blocksum.MetricWindowPending).(*metrics.BasicUpDownCounter)
	require.LessOrEqual(t, pending.Peak(), int64(window))
	require.NotEmpty(t, p.Description(blocksum.MetricResultsEmitted))
}

func TestRun_LogsThroughConfiguredLogger(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var c collector
	_, err := blocksum.Run(context.Background(), bytes.NewReader([]byte("0123456789")), 10, &c,
		blocksum.WithBlockSize(4), blocksum.WithWorkers(2), blocksum.WithLogger(logger))
	require.NoError(t, err)
	require.Contains(t, logs.String(), "pipeline starting")
	require.Contains(t, logs.String(), "component=reader")
}

func TestRunFile(t *testing.T) {
	data := randomData(t, 777)
	path := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	var c collector
	summary, err := blocksum.RunFile(context.Background(), path, &c, blocksum.WithBlockSize(100))
	require.NoError(t, err)
	require.Equal(t, expectedDigests(data, 100), c.digests)
	require.Equal(t, uint64(8), summary.Blocks)

	_, err = blocksum.RunFile(context.Background(), filepath.Join(t.TempDir(), "missing"), &c)
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = blocksum.RunFile(context.Background(), t.TempDir(), &c)
	require.ErrorContains(t, err, "not a regular file")
}
