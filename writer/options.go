package writer

import (
	"time"

	"github.com/hugolhafner/go-bulkload/errorhandler"
	"github.com/hugolhafner/go-bulkload/logger"
	"github.com/hugolhafner/go-bulkload/otel"
)

type Option interface {
	applyWriter(*Config)
}

type maxRetriesOption int

func (o maxRetriesOption) applyWriter(c *Config) {
	c.MaxRetries = int(o)
}

// WithMaxRetries sets the total number of attempts made per batch
func WithMaxRetries(n int) Option {
	return maxRetriesOption(n)
}

type backoffOption struct {
	base, max time.Duration
}

func (o backoffOption) applyWriter(c *Config) {
	c.BaseDelay = o.base
	c.MaxDelay = o.max
}

// WithBackoff sets the first retry delay and the cap it doubles towards
func WithBackoff(base, max time.Duration) Option {
	return backoffOption{base: base, max: max}
}

type jitterOption float64

func (o jitterOption) applyWriter(c *Config) {
	c.Jitter = float64(o)
}

func WithJitter(j float64) Option {
	return jitterOption(j)
}

type attemptTimeoutOption time.Duration

func (o attemptTimeoutOption) applyWriter(c *Config) {
	c.AttemptTimeout = time.Duration(o)
}

func WithAttemptTimeout(d time.Duration) Option {
	return attemptTimeoutOption(d)
}

type errorHandlerOption struct {
	handler errorhandler.Handler
}

func (o errorHandlerOption) applyWriter(c *Config) {
	c.ErrorHandler = o.handler
}

// WithErrorHandler replaces the default retry policy
func WithErrorHandler(h errorhandler.Handler) Option {
	return errorHandlerOption{handler: h}
}

type loggerOption struct {
	logger logger.Logger
}

func (o loggerOption) applyWriter(c *Config) {
	if o.logger != nil {
		c.Logger = o.logger
	}
}

func WithLogger(l logger.Logger) Option {
	return loggerOption{logger: l}
}

type telemetryOption struct {
	tel *otel.Telemetry
}

func (o telemetryOption) applyWriter(c *Config) {
	if o.tel != nil {
		c.Telemetry = o.tel
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return telemetryOption{tel: t}
}
