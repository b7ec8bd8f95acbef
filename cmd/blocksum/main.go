// blocksum prints a per-block SHA-256 signature of a file.
//
// Usage:
//
//	blocksum [flags] <file> <block-size>
//
// Every block of <block-size> bytes (the last one may be shorter) produces one
// line "<seq> <digest>" on stdout, in block order. <block-size> accepts plain
// byte counts and humanized sizes such as 4KiB or 1MB.
//
// Exit status is 0 on success, 1 when the run failed after it started (the
// lines already printed form a contiguous prefix), and 2 for usage errors, in
// which case nothing is printed on stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/ygrebnov/blocksum"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// usageError marks failures detected before the pipeline starts.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	inv, err := parseInvocation(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		var ue usageError
		if errors.As(err, &ue) {
			return exitUsage
		}
		return exitFailure
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: inv.settings.logLevel}))

	opts, err := inv.settings.options(logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	opts = append(opts, blocksum.WithBlockSize(inv.blockSize))

	out := blocksum.NewLineWriter(stdout, inv.settings.encoding)
	summary, runErr := blocksum.RunFile(ctx, inv.path, out, opts...)
	// the emitted prefix is valid output even when the run failed
	flushErr := out.Flush()

	if runErr != nil {
		logger.Error("signature failed",
			"file", inv.path,
			"emitted", summary.Emitted,
			"blocks", summary.Blocks,
			"error", runErr)
		fmt.Fprintf(stderr, "Error: %v\n", runErr)
		return exitFailure
	}
	if flushErr != nil {
		fmt.Fprintf(stderr, "Error: writing output: %v\n", flushErr)
		return exitFailure
	}

	logger.Info("signature complete",
		"file", inv.path,
		"size", humanize.IBytes(uint64(summary.Size)),
		"block_size", humanize.IBytes(uint64(summary.BlockSize)),
		"blocks", humanize.Comma(int64(summary.Blocks)),
		"workers", summary.Workers,
		"elapsed", summary.Elapsed.Round(time.Millisecond))
	return exitOK
}

// invocation is a fully validated command line.
type invocation struct {
	path      string
	blockSize int
	settings  settings
}

func parseInvocation(args []string, stderr io.Writer) (invocation, error) {
	var inv invocation
	var (
		configPath      string
		workers         uint
		queueSize       uint
		window          uint
		bufferPool      string
		shutdownTimeout time.Duration
		encoding        string
		logLevel        string
	)

	flagSet := pflag.NewFlagSet("blocksum", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "YAML config file (default: $"+configEnv+")")
	flagSet.UintVarP(&workers, "workers", "w", 0, "hashing goroutines (default: CPUs - 1)")
	flagSet.UintVar(&queueSize, "queue", 0, "blocks buffered between reader and workers (default: workers)")
	flagSet.UintVar(&window, "window", 0, "out-of-order results held before workers block (default: CPUs)")
	flagSet.StringVar(&bufferPool, "buffer-pool", "", "payload buffer pool: fixed or dynamic")
	flagSet.DurationVar(&shutdownTimeout, "shutdown-timeout", 0, "how long to wait for workers after a failure (default 1s)")
	flagSet.StringVarP(&encoding, "encoding", "e", "", "digest text encoding: hex or base64")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default info)")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: blocksum [flags] <file> <block-size>\n\nFlags:\n%s", flagSet.FlagUsages())
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return inv, err
		}
		return inv, usageError{err: err}
	}

	positional := flagSet.Args()
	if len(positional) != 2 {
		flagSet.Usage()
		return inv, usagef("expected <file> and <block-size>, got %d argument(s)", len(positional))
	}

	s := settings{logLevel: slog.LevelInfo}
	if os.Getenv("BLOCKSUM_DEBUG") != "" {
		s.logLevel = slog.LevelDebug
	}
	if configPath == "" {
		configPath = os.Getenv(configEnv)
	}
	if configPath != "" {
		fc, err := loadFileConfig(configPath)
		if err != nil {
			return inv, usageError{err: err}
		}
		if err := fc.apply(&s); err != nil {
			return inv, usagef("config %s: %w", configPath, err)
		}
	}

	// flags given explicitly win over the file; omit a size flag to get its default
	for name, value := range map[string]uint{"workers": workers, "queue": queueSize, "window": window} {
		if flagSet.Changed(name) && value == 0 {
			return inv, usagef("--%s must be positive", name)
		}
	}
	if flagSet.Changed("workers") {
		s.workers = workers
	}
	if flagSet.Changed("queue") {
		s.queueSize = queueSize
	}
	if flagSet.Changed("window") {
		s.window = window
	}
	if flagSet.Changed("buffer-pool") {
		s.bufferPool = bufferPool
	}
	if flagSet.Changed("shutdown-timeout") {
		if shutdownTimeout <= 0 {
			return inv, usagef("--shutdown-timeout must be positive")
		}
		s.shutdownTimeout = shutdownTimeout
	}
	if flagSet.Changed("encoding") {
		enc, err := blocksum.ParseEncoding(encoding)
		if err != nil {
			return inv, usageError{err: err}
		}
		s.encoding = enc
	}
	if flagSet.Changed("log-level") {
		if err := s.logLevel.UnmarshalText([]byte(logLevel)); err != nil {
			return inv, usagef("--log-level: %w", err)
		}
	}

	blockSize, err := parseBlockSize(positional[1])
	if err != nil {
		return inv, usageError{err: err}
	}

	path := positional[0]
	info, err := os.Stat(path)
	if err != nil {
		return inv, usageError{err: err}
	}
	if !info.Mode().IsRegular() {
		return inv, usagef("%s is not a regular file", path)
	}

	inv.path = path
	inv.blockSize = blockSize
	inv.settings = s
	return inv, nil
}

// parseBlockSize accepts "4096", "4KiB", "1MB" and the like. Zero is rejected.
func parseBlockSize(text string) (int, error) {
	n, err := humanize.ParseBytes(text)
	if err != nil {
		return 0, fmt.Errorf("invalid block size %q: %w", text, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("block size must be positive, got %q", text)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("block size %s exceeds %s", humanize.IBytes(n), humanize.IBytes(math.MaxInt32))
	}
	return int(n), nil
}
