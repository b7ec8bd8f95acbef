package blocksum

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// lifecycleCoordinator starts the pipeline roles and waits for them to finish.
// Once the bus is signaled it gives the roles at most timeout to unwind, then
// gives up on the stragglers; goroutines are never killed, only abandoned.
//
// Usage: spawn every role, then seal, then await. spawn after seal is a bug.
type lifecycleCoordinator struct {
	bus     *Bus
	timeout time.Duration
	logger  *slog.Logger

	roles    sync.WaitGroup
	running  atomic.Int64
	finished chan struct{}
	once     sync.Once
}

func newLifecycleCoordinator(bus *Bus, timeout time.Duration, logger *slog.Logger) *lifecycleCoordinator {
	return &lifecycleCoordinator{
		bus:      bus,
		timeout:  timeout,
		logger:   logger,
		finished: make(chan struct{}),
	}
}

// spawn runs fn on its own goroutine as a named role.
func (lc *lifecycleCoordinator) spawn(role string, fn func()) {
	lc.roles.Add(1)
	lc.running.Add(1)
	go func() {
		defer lc.roles.Done()
		defer lc.running.Add(-1)
		lc.logger.Debug("role started", "role", role)
		fn()
		lc.logger.Debug("role stopped", "role", role)
	}()
}

// seal closes the role set; finished is closed once every role returned.
func (lc *lifecycleCoordinator) seal() {
	lc.once.Do(func() {
		go func() {
			lc.roles.Wait()
			close(lc.finished)
		}()
	})
}

// await blocks until all roles finished, or until the bus is signaled and the
// shutdown timeout elapses, whichever happens first.
func (lc *lifecycleCoordinator) await() error {
	lc.seal()

	select {
	case <-lc.finished:
		return nil
	case <-lc.bus.Done():
	}

	timer := time.NewTimer(lc.timeout)
	defer timer.Stop()

	select {
	case <-lc.finished:
		return nil
	case <-timer.C:
		lc.logger.Error("roles did not stop after cancellation",
			"stragglers", lc.running.Load(), "timeout", lc.timeout)
		return ErrShutdownTimeout
	}
}

// stragglers returns the number of roles still running.
func (lc *lifecycleCoordinator) stragglers() int64 { return lc.running.Load() }
