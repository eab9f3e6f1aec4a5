package writer

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-bulkload/errorhandler"
	"github.com/hugolhafner/go-bulkload/logger"
	"github.com/hugolhafner/go-bulkload/otel"
)

const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 100 * time.Millisecond
	DefaultMaxDelay   = 5 * time.Second
	DefaultJitter     = 0.2
)

type Config struct {
	// MaxRetries is the total number of store calls made for one batch,
	// the first attempt included.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64

	// AttemptTimeout bounds a single store call, 0 means no bound.
	AttemptTimeout time.Duration

	// ErrorHandler overrides the retry policy built from the fields above.
	ErrorHandler errorhandler.Handler

	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

func defaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Jitter:     DefaultJitter,
		Logger:     logger.NewNoopLogger(),
		Telemetry:  otel.Noop(),
	}
}

func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("writer: max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("writer: base delay must not be negative, got %s", c.BaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("writer: max delay %s is below base delay %s", c.MaxDelay, c.BaseDelay)
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return fmt.Errorf("writer: jitter must be in [0, 1), got %v", c.Jitter)
	}
	if c.AttemptTimeout < 0 {
		return fmt.Errorf("writer: attempt timeout must not be negative, got %s", c.AttemptTimeout)
	}
	return nil
}

// Backoff is the exponential schedule derived from the config: BaseDelay
// doubling per attempt with Jitter applied. The unjittered delay is capped at
// MaxDelay/(1+Jitter), so retries at the cap still spread out and no delay
// exceeds MaxDelay.
func (c Config) Backoff() backoff.Backoff {
	if c.Jitter <= 0 {
		return backoff.NewExponential(
			backoff.WithInitialInterval(c.BaseDelay),
			backoff.WithMaxInterval(c.MaxDelay),
			backoff.WithMultiplier(2),
		)
	}

	return jittered{
		schedule: backoff.NewExponential(
			backoff.WithInitialInterval(c.BaseDelay),
			backoff.WithMaxInterval(time.Duration(float64(c.MaxDelay)/(1+c.Jitter))),
			backoff.WithMultiplier(2),
		),
		jitter: c.Jitter,
		limit:  c.MaxDelay,
	}
}

type jittered struct {
	schedule backoff.Backoff
	jitter   float64
	limit    time.Duration
}

func (j jittered) Next(attempt uint) time.Duration {
	d := float64(j.schedule.Next(attempt))
	d += d * j.jitter * (2*rand.Float64() - 1)
	return min(time.Duration(max(0, d)), j.limit)
}

// Handler returns the configured error handler, or the default policy of
// retrying transient errors within MaxRetries and logging the final failure.
func (c Config) Handler() errorhandler.Handler {
	if c.ErrorHandler != nil {
		return c.ErrorHandler
	}
	return errorhandler.RetryTransient(c.MaxRetries, c.Backoff(), errorhandler.LogAndFail(c.Logger))
}
