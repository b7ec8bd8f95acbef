package metrics

import (
	"sync"
	"sync/atomic"
)

// BasicProvider keeps every instrument in memory and exposes snapshots.
// It is meant for tests and small tools.
type BasicProvider struct {
	mu         sync.Mutex
	counters   map[string]*BasicCounter
	updowns    map[string]*BasicUpDownCounter
	histograms map[string]*BasicHistogram
	meta       map[string]InstrumentConfig
}

// NewBasicProvider constructs an empty BasicProvider.
func NewBasicProvider() *BasicProvider {
	return &BasicProvider{
		counters:   make(map[string]*BasicCounter),
		updowns:    make(map[string]*BasicUpDownCounter),
		histograms: make(map[string]*BasicHistogram),
		meta:       make(map[string]InstrumentConfig),
	}
}

// lookup returns the instrument registered under name, creating it on first use.
func lookup[T any](p *BasicProvider, m map[string]*T, name string, opts []InstrumentOption) *T {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := m[name]; ok {
		return v
	}
	v := new(T)
	m[name] = v
	p.meta[name] = applyOptions(opts)
	return v
}

func (p *BasicProvider) Counter(name string, opts ...InstrumentOption) Counter {
	return lookup(p, p.counters, name, opts)
}

func (p *BasicProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	return lookup(p, p.updowns, name, opts)
}

func (p *BasicProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	return lookup(p, p.histograms, name, opts)
}

// CounterValue returns the current value of the named counter, or 0 if it was never created.
func (p *BasicProvider) CounterValue(name string) int64 {
	p.mu.Lock()
	c := p.counters[name]
	p.mu.Unlock()
	if c == nil {
		return 0
	}
	return c.Snapshot()
}

// UpDownValue returns the current value of the named up/down counter.
func (p *BasicProvider) UpDownValue(name string) int64 {
	p.mu.Lock()
	u := p.updowns[name]
	p.mu.Unlock()
	if u == nil {
		return 0
	}
	return u.Snapshot()
}

// HistogramSnapshot returns the named histogram state.
func (p *BasicProvider) HistogramSnapshot(name string) HistSnapshot {
	p.mu.Lock()
	h := p.histograms[name]
	p.mu.Unlock()
	if h == nil {
		return HistSnapshot{}
	}
	return h.Snapshot()
}

// Description returns the advisory description the instrument was created with.
func (p *BasicProvider) Description(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meta[name].Description
}

// BasicCounter is a concurrency-safe monotonic counter.
type BasicCounter struct{ val atomic.Int64 }

func (c *BasicCounter) Add(n int64)     { c.val.Add(n) }
func (c *BasicCounter) Snapshot() int64 { return c.val.Load() }

// BasicUpDownCounter is a concurrency-safe level. It also tracks the highest level seen.
type BasicUpDownCounter struct {
	val  atomic.Int64
	peak atomic.Int64
}

func (u *BasicUpDownCounter) Add(n int64) {
	v := u.val.Add(n)
	for {
		p := u.peak.Load()
		if v <= p || u.peak.CompareAndSwap(p, v) {
			return
		}
	}
}

func (u *BasicUpDownCounter) Snapshot() int64 { return u.val.Load() }

// Peak returns the highest value the counter ever reached.
func (u *BasicUpDownCounter) Peak() int64 { return u.peak.Load() }

// BasicHistogram aggregates count, sum, min and max. It keeps no buckets.
type BasicHistogram struct {
	mu   sync.Mutex
	snap HistSnapshot
}

// HistSnapshot is a copy of a BasicHistogram state.
type HistSnapshot struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
}

// Mean returns Sum/Count, or 0 for an empty histogram.
func (s HistSnapshot) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

func (h *BasicHistogram) Record(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snap.Count == 0 || v < h.snap.Min {
		h.snap.Min = v
	}
	if h.snap.Count == 0 || v > h.snap.Max {
		h.snap.Max = v
	}
	h.snap.Count++
	h.snap.Sum += v
}

func (h *BasicHistogram) Snapshot() HistSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap
}
