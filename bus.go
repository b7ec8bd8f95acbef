package blocksum

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Bus is the shared cancellation signal of one pipeline run.
//
// It is set-once and monotonic: the first Signal records the cause, flips the
// atomic flag, closes the Done channel and runs the registered hooks. Later
// Signals are no-ops. Channel waits select on Done; condition-variable waits
// register a hook through OnSignal so they can be woken up.
//
// Bus must be created with NewBus. Methods are safe for concurrent use.
type Bus struct {
	flag atomic.Bool
	done chan struct{}

	mu    sync.Mutex
	cause error
	hooks []func()
}

// NewBus returns an unsignaled bus.
func NewBus() *Bus {
	return &Bus{done: make(chan struct{})}
}

// Signal cancels the run with the given cause. It reports whether this call was
// the one that flipped the bus; only the first cause is kept.
func (b *Bus) Signal(cause error) bool {
	if cause == nil {
		cause = ErrCancelled
	}

	b.mu.Lock()
	if b.flag.Load() {
		b.mu.Unlock()
		return false
	}
	b.cause = cause
	b.flag.Store(true)
	close(b.done)
	hooks := b.hooks
	b.hooks = nil
	b.mu.Unlock()

	// hooks take their own locks; run them outside of ours
	for _, fn := range hooks {
		fn()
	}
	return true
}

// Cancelled reports whether the bus has been signaled.
func (b *Bus) Cancelled() bool { return b.flag.Load() }

// Done returns a channel closed when the bus is signaled.
func (b *Bus) Done() <-chan struct{} { return b.done }

// Cause returns the error passed to the first Signal, or nil.
func (b *Bus) Cause() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cause
}

// OnSignal registers fn to run once when the bus is signaled.
// If the bus is already signaled, fn runs immediately on the caller's goroutine.
func (b *Bus) OnSignal(fn func()) {
	b.mu.Lock()
	if b.flag.Load() {
		b.mu.Unlock()
		fn()
		return
	}
	b.hooks = append(b.hooks, fn)
	b.mu.Unlock()
}

// Watch signals the bus when ctx is done. The returned stop function releases
// the watcher goroutine; it must be called once the run is over.
func (b *Bus) Watch(ctx context.Context) (stop func()) {
	stopCh := make(chan struct{})
	var once sync.Once

	go func() {
		select {
		case <-ctx.Done():
			b.Signal(fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx)))
		case <-b.done:
		case <-stopCh:
		}
	}()

	return func() { once.Do(func() { close(stopCh) }) }
}
