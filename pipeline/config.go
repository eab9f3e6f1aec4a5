package pipeline

import (
	"fmt"
	"time"

	"github.com/hugolhafner/go-bulkload/batcher"
	"github.com/hugolhafner/go-bulkload/errorhandler"
	"github.com/hugolhafner/go-bulkload/inflight"
	"github.com/hugolhafner/go-bulkload/logger"
	"github.com/hugolhafner/go-bulkload/otel"
	"github.com/hugolhafner/go-bulkload/writer"
)

type Config struct {
	MaxBatchCount int
	MaxBatchBytes int
	MaxInFlight   int

	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Jitter         float64
	AttemptTimeout time.Duration

	// FailFast stops reading the source after the first failed batch. What
	// was already read is still written.
	FailFast bool

	// BytesPerSecond throttles submission, 0 means unlimited.
	BytesPerSecond int

	ErrorHandler errorhandler.Handler
	Logger       logger.Logger
	Telemetry    *otel.Telemetry
}

type ConfigOption func(*Config)

func defaultConfig() Config {
	return Config{
		MaxBatchCount: batcher.DefaultMaxBatchCount,
		MaxBatchBytes: batcher.DefaultMaxBatchBytes,
		MaxInFlight:   inflight.DefaultMaxInFlight,
		MaxRetries:    writer.DefaultMaxRetries,
		BaseDelay:     writer.DefaultBaseDelay,
		MaxDelay:      writer.DefaultMaxDelay,
		Jitter:        writer.DefaultJitter,
		Logger:        logger.NewNoopLogger(),
		Telemetry:     otel.Noop(),
	}
}

func WithMaxBatchCount(n int) ConfigOption {
	return func(c *Config) {
		c.MaxBatchCount = n
	}
}

func WithMaxBatchBytes(n int) ConfigOption {
	return func(c *Config) {
		c.MaxBatchBytes = n
	}
}

// WithBatchLimits lowers the batch bounds to at most maxCount records and
// maxBytes bytes. A zero limit leaves that bound alone. It must come after
// WithMaxBatchCount and WithMaxBatchBytes to take effect.
func WithBatchLimits(maxCount, maxBytes int) ConfigOption {
	return func(c *Config) {
		if maxCount > 0 && c.MaxBatchCount > maxCount {
			c.MaxBatchCount = maxCount
		}
		if maxBytes > 0 && c.MaxBatchBytes > maxBytes {
			c.MaxBatchBytes = maxBytes
		}
	}
}

func WithMaxInFlight(n int) ConfigOption {
	return func(c *Config) {
		c.MaxInFlight = n
	}
}

// WithMaxRetries sets the total number of write attempts per batch
func WithMaxRetries(n int) ConfigOption {
	return func(c *Config) {
		c.MaxRetries = n
	}
}

func WithBackoff(base, max time.Duration) ConfigOption {
	return func(c *Config) {
		c.BaseDelay = base
		c.MaxDelay = max
	}
}

func WithJitter(j float64) ConfigOption {
	return func(c *Config) {
		c.Jitter = j
	}
}

func WithAttemptTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.AttemptTimeout = d
	}
}

func WithFailFast(failFast bool) ConfigOption {
	return func(c *Config) {
		c.FailFast = failFast
	}
}

func WithBytesPerSecond(n int) ConfigOption {
	return func(c *Config) {
		c.BytesPerSecond = n
	}
}

func WithErrorHandler(h errorhandler.Handler) ConfigOption {
	return func(c *Config) {
		c.ErrorHandler = h
	}
}

func WithLogger(l logger.Logger) ConfigOption {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

func WithTelemetry(t *otel.Telemetry) ConfigOption {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}

// ValidateOptions reports whether opts, applied over the defaults, give a
// valid configuration.
func ValidateOptions(opts ...ConfigOption) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg.Validate()
}

func (c Config) Validate() error {
	if c.MaxInFlight < 1 {
		return fmt.Errorf("pipeline: max in flight must be at least 1, got %d", c.MaxInFlight)
	}
	if c.BytesPerSecond < 0 {
		return fmt.Errorf("pipeline: bytes per second must not be negative, got %d", c.BytesPerSecond)
	}
	if err := c.batcherConfig().Validate(); err != nil {
		return err
	}
	return c.writerConfig().Validate()
}

func (c Config) batcherConfig() batcher.Config {
	return batcher.Config{
		MaxBatchCount: c.MaxBatchCount,
		MaxBatchBytes: c.MaxBatchBytes,
	}
}

func (c Config) writerConfig() writer.Config {
	return writer.Config{
		MaxRetries:     c.MaxRetries,
		BaseDelay:      c.BaseDelay,
		MaxDelay:       c.MaxDelay,
		Jitter:         c.Jitter,
		AttemptTimeout: c.AttemptTimeout,
		ErrorHandler:   c.ErrorHandler,
		Logger:         c.Logger,
		Telemetry:      c.Telemetry,
	}
}

func (c Config) writerOptions() []writer.Option {
	opts := []writer.Option{
		writer.WithMaxRetries(c.MaxRetries),
		writer.WithBackoff(c.BaseDelay, c.MaxDelay),
		writer.WithJitter(c.Jitter),
		writer.WithAttemptTimeout(c.AttemptTimeout),
		writer.WithLogger(c.Logger),
		writer.WithTelemetry(c.Telemetry),
	}
	if c.ErrorHandler != nil {
		opts = append(opts, writer.WithErrorHandler(c.ErrorHandler))
	}
	return opts
}
