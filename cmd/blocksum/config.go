package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ygrebnov/blocksum"
)

// configEnv names the environment variable that points at a config file when
// --config is not given. There is no other discovery.
const configEnv = "BLOCKSUM_CONFIG"

// fileConfig is the YAML configuration file. Every key is optional; flags
// given on the command line override it.
type fileConfig struct {
	Workers   uint `yaml:"workers"`
	QueueSize uint `yaml:"queue_size"`
	Window    uint `yaml:"window"`

	// BufferPool is "fixed" (default) or "dynamic".
	BufferPool string `yaml:"buffer_pool"`

	// ShutdownTimeout is a Go duration such as "1s" or "500ms".
	ShutdownTimeout string `yaml:"shutdown_timeout"`

	// Encoding is "hex" (default) or "base64".
	Encoding string `yaml:"encoding"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// loadFileConfig reads path. Unknown keys are rejected so typos do not go unnoticed.
func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// settings is the merged result of the config file and the flags.
type settings struct {
	workers         uint
	queueSize       uint
	window          uint
	bufferPool      string
	shutdownTimeout time.Duration
	encoding        blocksum.Encoding
	logLevel        slog.Level
}

// apply copies the values set in the file into s.
func (fc fileConfig) apply(s *settings) error {
	if fc.Workers > 0 {
		s.workers = fc.Workers
	}
	if fc.QueueSize > 0 {
		s.queueSize = fc.QueueSize
	}
	if fc.Window > 0 {
		s.window = fc.Window
	}
	if fc.BufferPool != "" {
		s.bufferPool = fc.BufferPool
	}
	if fc.ShutdownTimeout != "" {
		d, err := time.ParseDuration(fc.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("shutdown_timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("shutdown_timeout must be positive, got %s", d)
		}
		s.shutdownTimeout = d
	}
	if fc.Encoding != "" {
		enc, err := blocksum.ParseEncoding(fc.Encoding)
		if err != nil {
			return err
		}
		s.encoding = enc
	}
	if fc.LogLevel != "" {
		if err := s.logLevel.UnmarshalText([]byte(fc.LogLevel)); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	return nil
}

// options translates settings into pipeline options. Zero sizes keep the
// library defaults derived from the CPU count.
func (s settings) options(logger *slog.Logger) ([]blocksum.Option, error) {
	opts := []blocksum.Option{blocksum.WithLogger(logger)}
	if s.workers > 0 {
		opts = append(opts, blocksum.WithWorkers(s.workers))
	}
	if s.queueSize > 0 {
		opts = append(opts, blocksum.WithQueueSize(s.queueSize))
	}
	if s.window > 0 {
		opts = append(opts, blocksum.WithWindow(s.window))
	}
	switch s.bufferPool {
	case "", "fixed":
		opts = append(opts, blocksum.WithFixedBufferPool())
	case "dynamic":
		opts = append(opts, blocksum.WithDynamicBufferPool())
	default:
		return nil, fmt.Errorf("unknown buffer pool %q (want fixed or dynamic)", s.bufferPool)
	}
	if s.shutdownTimeout > 0 {
		opts = append(opts, blocksum.WithShutdownTimeout(s.shutdownTimeout))
	}
	return opts, nil
}
