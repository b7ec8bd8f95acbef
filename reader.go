package blocksum

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ygrebnov/blocksum/metrics"
	"github.com/ygrebnov/blocksum/pool"
)

// blockReader splits src into blocks and sends them, in sequence order, on out.
// It owns out and closes it when it returns, whatever the reason.
type blockReader struct {
	src       io.Reader
	size      int64
	blockSize int
	total     uint64

	out     chan<- Block
	buffers pool.Pool
	bus     *Bus
	logger  *slog.Logger

	blocksRead metrics.Counter
	bytesRead  metrics.Counter
}

func newBlockReader(
	src io.Reader, size int64, blockSize int, out chan<- Block, buffers pool.Pool, bus *Bus, cfg *config,
) *blockReader {
	return &blockReader{
		src:        src,
		size:       size,
		blockSize:  blockSize,
		total:      BlockCount(size, blockSize),
		out:        out,
		buffers:    buffers,
		bus:        bus,
		logger:     cfg.Logger.With("component", "reader"),
		blocksRead: cfg.Metrics.Counter(MetricBlocksRead, metrics.WithDescription("blocks produced by the reader")),
		bytesRead:  cfg.Metrics.Counter(MetricBytesRead, metrics.WithUnit("By")),
	}
}

// run reads every block, then checks that the input ended where expected.
func (r *blockReader) run() {
	defer close(r.out)

	for seq := uint64(0); seq < r.total; seq++ {
		if r.bus.Cancelled() {
			r.logger.Debug("cancellation observed before read", "seq", seq)
			return
		}

		buf, ok := r.buffers.Get(r.bus.Done())
		if !ok {
			r.logger.Debug("cancellation observed while waiting for a buffer", "seq", seq)
			return
		}

		want := r.blockLen(seq)
		n, err := io.ReadFull(r.src, buf[:want])
		if err != nil {
			r.buffers.Put(buf)
			r.fail(seq, r.classify(err, int64(seq)*int64(r.blockSize)+int64(n)))
			return
		}
		r.blocksRead.Add(1)
		r.bytesRead.Add(int64(n))

		select {
		case r.out <- Block{Seq: seq, Payload: buf[:want]}:
		case <-r.bus.Done():
			r.buffers.Put(buf)
			r.logger.Debug("cancellation observed while queue was full", "seq", seq)
			return
		}
	}

	r.checkTrailing()
}

// blockLen returns the number of bytes block seq must contain.
func (r *blockReader) blockLen(seq uint64) int {
	rest := r.size - int64(seq)*int64(r.blockSize)
	if rest < int64(r.blockSize) {
		return int(rest)
	}
	return r.blockSize
}

// classify maps a short read to ErrSizeMismatch and everything else to ErrReadFailed.
func (r *blockReader) classify(err error, offset int64) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: input ended at byte %d, expected %d", ErrSizeMismatch, offset, r.size)
	}
	return fmt.Errorf("%w: %w", ErrReadFailed, err)
}

// checkTrailing fails the run if the input grew past the expected size.
func (r *blockReader) checkTrailing() {
	var probe [1]byte
	n, err := r.src.Read(probe[:])
	switch {
	case n > 0:
		r.fail(r.total, fmt.Errorf("%w: input is longer than %d bytes", ErrSizeMismatch, r.size))
	case err != nil && !errors.Is(err, io.EOF):
		r.fail(r.total, fmt.Errorf("%w: %w", ErrReadFailed, err))
	default:
		r.logger.Debug("input exhausted", "blocks", r.total)
	}
}

func (r *blockReader) fail(seq uint64, err error) {
	err = newBlockError(err, seq)
	if r.bus.Signal(err) {
		r.logger.Warn("read failed, cancelling pipeline", "seq", seq, "error", err)
	}
}
