// Package bulkload loads large streams of key/value records into a store in
// bounded, retried, concurrent batches.
//
// Most callers use a Loader, which owns the preflight checks and guards
// against overlapping loads. The pipeline package can be used directly for
// finer control.
package bulkload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hugolhafner/go-bulkload/logger"
	"github.com/hugolhafner/go-bulkload/pipeline"
	"github.com/hugolhafner/go-bulkload/source"
	"github.com/hugolhafner/go-bulkload/store"
)

const Version = "v0.1.0" // x-release-please-version

var (
	ErrAlreadyRunning = errors.New("loader is already running")
	ErrClosed         = errors.New("loader is closed")
)

type Config struct {
	Logger logger.Logger
	// Preflight pings stores that support it before reading the source.
	Preflight bool
	Pipeline  []pipeline.ConfigOption
}

type ConfigOption func(*Config)

func WithLogger(l logger.Logger) ConfigOption {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

func WithPreflight(enabled bool) ConfigOption {
	return func(c *Config) {
		c.Preflight = enabled
	}
}

// WithPipelineOptions appends options for every pipeline the loader builds.
func WithPipelineOptions(opts ...pipeline.ConfigOption) ConfigOption {
	return func(c *Config) {
		c.Pipeline = append(c.Pipeline, opts...)
	}
}

func defaultConfig() Config {
	return Config{
		Logger:    logger.NewNoopLogger(),
		Preflight: true,
	}
}

// Loader runs loads into a single store, one at a time.
type Loader struct {
	store  store.Store
	config Config
	logger logger.Logger

	mu        sync.Mutex
	running   bool
	closeOnce sync.Once
	closedCh  chan struct{}
}

func NewLoader(s store.Store, opts ...ConfigOption) (*Loader, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return NewLoaderWithConfig(s, config)
}

func NewLoaderWithConfig(s store.Store, config Config) (*Loader, error) {
	if s == nil {
		return nil, errors.New("bulkload: store is required")
	}
	if config.Logger == nil {
		config.Logger = logger.NewNoopLogger()
	}

	return &Loader{
		store:    s,
		config:   config,
		logger:   config.Logger,
		closedCh: make(chan struct{}),
	}, nil
}

// Load reads src to the end and writes it into the store. It returns
// ErrAlreadyRunning while another load is in progress and ErrClosed after
// Close. Closing the loader cancels a running load, which still returns its
// result.
func (l *Loader) Load(ctx context.Context, src source.Source) (*pipeline.Result, error) {
	if err := l.startRunning(); err != nil {
		return nil, err
	}
	defer l.stopRunning()

	if l.config.Preflight {
		if p, ok := l.store.(store.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return nil, fmt.Errorf("bulkload: store preflight: %w", err)
			}
		}
	}

	opts := append([]pipeline.ConfigOption{pipeline.WithLogger(l.logger)}, l.config.Pipeline...)
	if bl, ok := l.store.(store.BatchLimiter); ok {
		maxCount, maxBytes := bl.BatchLimits()
		l.logger.Debug("Store limits batch size", "max_count", maxCount, "max_bytes", maxBytes)
		opts = append(opts, pipeline.WithBatchLimits(maxCount, maxBytes))
	}

	coord, err := pipeline.New(l.store, opts...)
	if err != nil {
		return nil, fmt.Errorf("bulkload: create pipeline: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.closedCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	return coord.Run(runCtx, src)
}

// Close stops any running load and rejects new ones. It does not close the
// store.
func (l *Loader) Close() {
	l.closeOnce.Do(
		func() {
			l.mu.Lock()
			defer l.mu.Unlock()

			close(l.closedCh)
		},
	)
}

func (l *Loader) startRunning() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-l.closedCh:
		return ErrClosed
	default:
	}

	if l.running {
		return ErrAlreadyRunning
	}

	l.running = true
	return nil
}

func (l *Loader) stopRunning() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
}
