package blocksum

import (
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"time"

	"github.com/ygrebnov/errorc"

	"github.com/ygrebnov/blocksum/metrics"
)

// reservedThreads is the number of CPUs left to the reader goroutine when the
// worker count is derived from hardware parallelism. The sink is a monitor and
// runs on the workers' goroutines.
const reservedThreads = 1

// config holds pipeline configuration.
type config struct {
	// BlockSize is the length of every block but the last one.
	// Default: 1 MiB.
	BlockSize int

	// Workers is the number of hashing goroutines.
	// Zero (default) means max(1, NumCPU - reservedThreads).
	Workers uint

	// QueueSize bounds the channel between the reader and the workers.
	// Zero (default) means the resolved worker count.
	QueueSize uint

	// Window is the number of out-of-order results the sink may hold.
	// Zero (default) means NumCPU.
	Window uint

	// FixedBufferPool bounds payload allocations to QueueSize+Workers+1 buffers.
	// When false, a sync.Pool backed dynamic pool is used.
	// Default: true.
	FixedBufferPool bool

	// ShutdownTimeout bounds how long the run waits for its goroutines after cancellation.
	// Default: 1s.
	ShutdownTimeout time.Duration

	Logger  *slog.Logger
	Metrics metrics.Provider

	// digest replaces Sum in package tests to inject faults.
	digest func([]byte) Digest

	poolSelected poolType
}

type poolType int

const (
	poolUnspecified poolType = iota
	poolFixed
	poolDynamic
)

// defaultConfig centralizes default values for config.
func defaultConfig() config {
	return config{
		BlockSize:       1 << 20,
		Workers:         0, // derived from NumCPU
		QueueSize:       0, // same as workers
		Window:          0, // NumCPU
		FixedBufferPool: true,
		ShutdownTimeout: time.Second,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:         metrics.NewNoopProvider(),
		digest:          Sum,
	}
}

// resolve fills the zero-valued sizes from the host's parallelism.
func (c *config) resolve() {
	if c.Workers == 0 {
		n := runtime.NumCPU() - reservedThreads
		if n < 1 {
			n = 1
		}
		c.Workers = uint(n)
	}
	if c.QueueSize == 0 {
		c.QueueSize = c.Workers
	}
	if c.Window == 0 {
		c.Window = uint(runtime.NumCPU())
	}
}

// validateConfig checks invariants not enforced by individual options.
func validateConfig(c *config) error {
	if c.BlockSize <= 0 {
		return errorc.With(ErrInvalidConfig, errorc.String("block size", strconv.Itoa(c.BlockSize)))
	}
	if c.ShutdownTimeout <= 0 {
		return errorc.With(ErrInvalidConfig, errorc.String("shutdown timeout", c.ShutdownTimeout.String()))
	}
	if c.Logger == nil || c.Metrics == nil {
		return errorc.With(ErrInvalidConfig, errorc.String("", "logger and metrics provider must be non-nil"))
	}
	return nil
}

// Option configures a pipeline run.
type Option func(*config) error

// WithBlockSize sets the block length in bytes (must be > 0).
func WithBlockSize(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("", "WithBlockSize requires n > 0"))
		}
		cfg.BlockSize = n
		return nil
	}
}

// WithWorkers sets the number of hashing goroutines (must be > 0).
func WithWorkers(n uint) Option {
	return func(cfg *config) error {
		if n == 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("", "WithWorkers requires n > 0"))
		}
		cfg.Workers = n
		return nil
	}
}

// WithQueueSize sets the capacity of the block channel (must be > 0).
func WithQueueSize(n uint) Option {
	return func(cfg *config) error {
		if n == 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("", "WithQueueSize requires n > 0"))
		}
		cfg.QueueSize = n
		return nil
	}
}

// WithWindow sets the ordering window of the sink (must be > 0).
func WithWindow(n uint) Option {
	return func(cfg *config) error {
		if n == 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("", "WithWindow requires n > 0"))
		}
		cfg.Window = n
		return nil
	}
}

// WithFixedBufferPool bounds payload buffers to what the pipeline can hold at once (default).
func WithFixedBufferPool() Option {
	return func(cfg *config) error {
		if cfg.poolSelected == poolDynamic {
			return errorc.With(ErrInvalidConfig, errorc.String("", "conflicting buffer pool options"))
		}
		cfg.poolSelected = poolFixed
		cfg.FixedBufferPool = true
		return nil
	}
}

// WithDynamicBufferPool recycles payload buffers through a sync.Pool.
func WithDynamicBufferPool() Option {
	return func(cfg *config) error {
		if cfg.poolSelected == poolFixed {
			return errorc.With(ErrInvalidConfig, errorc.String("", "conflicting buffer pool options"))
		}
		cfg.poolSelected = poolDynamic
		cfg.FixedBufferPool = false
		return nil
	}
}

// WithShutdownTimeout bounds the wait for goroutines after cancellation (must be > 0).
func WithShutdownTimeout(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errorc.With(ErrInvalidConfig, errorc.String("", "WithShutdownTimeout requires d > 0"))
		}
		cfg.ShutdownTimeout = d
		return nil
	}
}

// WithLogger sets the logger used for stage lifecycle and fault reporting.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) error {
		if l == nil {
			return errorc.With(ErrInvalidConfig, errorc.String("", "WithLogger requires a non-nil logger"))
		}
		cfg.Logger = l
		return nil
	}
}

// WithMetrics sets the metrics provider.
func WithMetrics(p metrics.Provider) Option {
	return func(cfg *config) error {
		if p == nil {
			return errorc.With(ErrInvalidConfig, errorc.String("", "WithMetrics requires a non-nil provider"))
		}
		cfg.Metrics = p
		return nil
	}
}

// newConfig assembles, validates and resolves a config from options.
func newConfig(opts []Option) (*config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	cfg.resolve()
	return &cfg, nil
}
