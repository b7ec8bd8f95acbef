package blocksum

// OrderedSink (ordering window)
//
// Responsibility:
// - Accept (sequence, digest) pairs from any number of hashing goroutines in
//   completion order and emit them strictly in sequence order, exactly once,
//   holding at most W results at any time.
//
// State:
// - base: the next sequence to emit. Everything below base was emitted and evicted.
// - slots/filled: a ring of W digests. The result for sequence s lives at s % W,
//   which is the same as "slot i holds base+i" without shifting on every flush.
// - pending: number of filled slots.
//
// Insert(seq, digest):
//  1. seq must be in [base, total) and not inserted before; otherwise ErrInvalidSequence.
//  2. While seq >= base+W, wait on the condition variable. The bus is checked
//     before and after every wait; a signaled bus returns ErrCancelled.
//  3. Store the digest in its slot.
//  4. Flush from base forward while the slot is filled: emit, clear, base++.
//     The scan stops at the first empty slot or after W slots. Emission happens
//     as soon as the front is contiguous, not when the window fills up.
//  5. If base advanced, broadcast so blocked inserters recheck admission.
//
// Edge cases:
// - Final short window (total-base < W): same rule; the sink is complete once base == total.
// - total an exact multiple of W: the last flush empties the ring and base lands on total.
// - Emitter failure: the sink is poisoned, every waiter is woken and later inserts
//   return the same ErrEmitFailed. No later sequence is ever emitted.
// - Cancellation: emission stops at the next slot; only the contiguous prefix
//   emitted so far is visible downstream.
//
// Concurrency contracts:
// - One mutex guards base, ring and pending; the condition variable shares it.
// - flushed mirrors base and is read without the mutex, so Base and Complete
//   answer even while an Emit call is stuck holding it.
// - Emit is called with the mutex held, so emissions never interleave.
// - The bus wakes waiters through an OnSignal hook that broadcasts under the mutex,
//   so a signal cannot slip between a waiter's check and its Wait.

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ygrebnov/errorc"

	"github.com/ygrebnov/blocksum/metrics"
)

// Emitter receives results in strictly increasing sequence order.
type Emitter interface {
	Emit(seq uint64, d Digest) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(seq uint64, d Digest) error

// Emit calls f(seq, d).
func (f EmitterFunc) Emit(seq uint64, d Digest) error { return f(seq, d) }

// OrderedSink restores sequence order of concurrently produced results under a
// bounded window. It is a monitor: hashing goroutines call Insert directly.
type OrderedSink struct {
	mu   sync.Mutex
	cond *sync.Cond

	base    uint64
	flushed atomic.Uint64
	total   uint64
	slots   []Digest
	filled  []bool
	pending int
	failed  error

	emit Emitter
	bus  *Bus

	emitted     metrics.Counter
	level       metrics.UpDownCounter
	waitSeconds metrics.Histogram
}

// NewOrderedSink creates a sink for total sequences with a window of the given size.
// A nil bus gets a private one.
func NewOrderedSink(window int, total uint64, emit Emitter, bus *Bus) (*OrderedSink, error) {
	if window <= 0 {
		return nil, errorc.With(ErrInvalidConfig, errorc.String("", "ordered sink requires window > 0"))
	}
	if emit == nil {
		return nil, errorc.With(ErrInvalidConfig, errorc.String("", "ordered sink requires an emitter"))
	}
	if bus == nil {
		bus = NewBus()
	}

	s := &OrderedSink{
		total:  total,
		slots:  make([]Digest, window),
		filled: make([]bool, window),
		emit:   emit,
		bus:    bus,
	}
	s.cond = sync.NewCond(&s.mu)
	s.instrument(metrics.NewNoopProvider())
	bus.OnSignal(s.interrupt)
	return s, nil
}

func (s *OrderedSink) instrument(p metrics.Provider) {
	s.emitted = p.Counter(MetricResultsEmitted, metrics.WithDescription("results written in sequence order"))
	s.level = p.UpDownCounter(MetricWindowPending, metrics.WithDescription("results waiting in the ordering window"))
	s.waitSeconds = p.Histogram(MetricAdmissionWait, metrics.WithUnit("s"),
		metrics.WithDescription("time inserters spent waiting for the window to advance"))
}

// Insert stores the digest of seq and emits every result that became contiguous.
// It blocks while seq is beyond the window and returns ErrCancelled once the bus
// is signaled. Insert is safe for concurrent use.
func (s *OrderedSink) Insert(seq uint64, d Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admissible(seq); err != nil {
		return err
	}

	window := uint64(len(s.slots))
	if seq >= s.base+window {
		start := time.Now()
		for seq >= s.base+window {
			if err := s.halted(); err != nil {
				return err
			}
			s.cond.Wait()
		}
		s.waitSeconds.Record(time.Since(start).Seconds())
		// a duplicate may have been flushed while we waited
		if err := s.admissible(seq); err != nil {
			return err
		}
	}
	if err := s.halted(); err != nil {
		return err
	}

	i := seq % window
	if s.filled[i] {
		return newBlockError(ErrInvalidSequence, seq)
	}
	s.slots[i] = d
	s.filled[i] = true
	s.pending++
	s.level.Add(1)

	return s.flush()
}

func (s *OrderedSink) admissible(seq uint64) error {
	if seq < s.base || seq >= s.total {
		return newBlockError(ErrInvalidSequence, seq)
	}
	return nil
}

// halted reports why the sink stopped accepting results, if it did.
func (s *OrderedSink) halted() error {
	if s.failed != nil {
		return s.failed
	}
	if s.bus.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// flush emits the contiguous run starting at base. Called with mu held.
func (s *OrderedSink) flush() error {
	window := uint64(len(s.slots))
	advanced := false
	defer func() {
		if advanced {
			s.cond.Broadcast()
		}
	}()

	for n := uint64(0); n < window && s.pending > 0; n++ {
		i := s.base % window
		if !s.filled[i] || s.bus.Cancelled() {
			break
		}
		if err := s.emit.Emit(s.base, s.slots[i]); err != nil {
			s.failed = newBlockError(fmt.Errorf("%w: %w", ErrEmitFailed, err), s.base)
			s.cond.Broadcast()
			return s.failed
		}
		s.slots[i] = Digest{}
		s.filled[i] = false
		s.pending--
		s.base++
		s.flushed.Store(s.base)
		advanced = true
		s.level.Add(-1)
		s.emitted.Add(1)
	}
	return nil
}

// interrupt wakes every waiter so it can observe the signaled bus.
func (s *OrderedSink) interrupt() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Base returns the next sequence to be emitted, i.e. the number emitted so far.
func (s *OrderedSink) Base() uint64 {
	return s.flushed.Load()
}

// Pending returns the number of results held in the window.
func (s *OrderedSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Window returns the window size W.
func (s *OrderedSink) Window() int { return len(s.slots) }

// Complete reports whether every sequence in [0, total) was emitted.
func (s *OrderedSink) Complete() bool {
	return s.flushed.Load() == s.total
}
