package blocksum

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ygrebnov/blocksum/metrics"
	"github.com/ygrebnov/blocksum/pool"
)

// hasher is one member of the worker pool. Workers are interchangeable and
// never coordinate with each other; ordering is the sink's job alone.
type hasher struct {
	in      <-chan Block
	sink    *OrderedSink
	buffers pool.Pool
	bus     *Bus
	digest  func([]byte) Digest
	logger  *slog.Logger

	hashed      metrics.Counter
	hashSeconds metrics.Histogram
}

func newHasher(id int, in <-chan Block, sink *OrderedSink, buffers pool.Pool, bus *Bus, cfg *config) *hasher {
	return &hasher{
		in:          in,
		sink:        sink,
		buffers:     buffers,
		bus:         bus,
		digest:      cfg.digest,
		logger:      cfg.Logger.With("component", "hasher", "worker", id),
		hashed:      cfg.Metrics.Counter(MetricBlocksHashed),
		hashSeconds: cfg.Metrics.Histogram(MetricHashDuration, metrics.WithUnit("s")),
	}
}

// run consumes blocks until the input is closed and drained or the bus is signaled.
func (h *hasher) run() {
	for {
		select {
		case <-h.bus.Done():
			h.logger.Debug("cancellation observed while waiting for a block")
			return
		case b, ok := <-h.in:
			if !ok {
				h.logger.Debug("input drained")
				return
			}
			if h.bus.Cancelled() {
				h.buffers.Put(b.Payload)
				h.logger.Debug("cancellation observed, dropping block", "seq", b.Seq)
				return
			}
			if !h.process(b) {
				return
			}
		}
	}
}

// process hashes one block and hands the result to the sink. It reports whether
// the worker should keep going.
func (h *hasher) process(b Block) bool {
	d, err := h.hash(b.Payload)
	// b.Payload must not be touched past this point
	h.buffers.Put(b.Payload)
	if err != nil {
		h.fail(b.Seq, err)
		return false
	}
	h.hashed.Add(1)

	if err := h.sink.Insert(b.Seq, d); err != nil {
		if errors.Is(err, ErrCancelled) {
			h.logger.Debug("cancellation observed while inserting", "seq", b.Seq)
			return false
		}
		h.fail(b.Seq, err)
		return false
	}
	return true
}

// hash computes the digest, converting a panic into ErrHashFailed.
func (h *hasher) hash(payload []byte) (d Digest, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHashFailed, p)
		}
		h.hashSeconds.Record(time.Since(start).Seconds())
	}()
	return h.digest(payload), nil
}

func (h *hasher) fail(seq uint64, err error) {
	if _, tagged := ExtractSequence(err); !tagged {
		err = newBlockError(err, seq)
	}
	if h.bus.Signal(err) {
		h.logger.Warn("hashing failed, cancelling pipeline", "seq", seq, "error", err)
	}
}
