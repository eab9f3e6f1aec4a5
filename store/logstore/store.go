// Package logstore is a store that writes every batch to a logger instead of
// a database. It is meant for dry runs.
package logstore

import (
	"context"
	"sync"

	"github.com/hugolhafner/go-bulkload/codec"
	"github.com/hugolhafner/go-bulkload/logger"
	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/store"
)

var _ store.Store = (*Store)(nil)

type Config struct {
	Label  string
	Codec  codec.Codec
	Level  logger.LogLevel
	Logger logger.Logger
	// Records logs every record of a batch rather than just its size.
	Records bool
}

type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Label:  "batch",
		Codec:  codec.Raw(),
		Level:  logger.InfoLevel,
		Logger: logger.NewNoopLogger(),
	}
}

func WithLabel(label string) Option {
	return func(c *Config) {
		c.Label = label
	}
}

func WithCodec(cd codec.Codec) Option {
	return func(c *Config) {
		if cd != nil {
			c.Codec = cd
		}
	}
}

func WithLevel(level logger.LogLevel) Option {
	return func(c *Config) {
		c.Level = level
	}
}

func WithRecords(enabled bool) Option {
	return func(c *Config) {
		c.Records = enabled
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

type Store struct {
	c      Config
	logger logger.Logger

	mu      sync.Mutex
	batches int
	records int
	closed  bool
}

func New(opts ...Option) *Store {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Store{
		c:      cfg,
		logger: cfg.Logger.With("component", "logstore", "label", cfg.Label),
	}
}

func (s *Store) PutBatch(ctx context.Context, records []record.Record) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.Permanent(store.ErrClosed)
	}
	s.batches++
	s.records += len(records)
	n := s.batches
	s.mu.Unlock()

	size := 0
	for _, r := range records {
		size += r.Size()
	}

	s.logger.Log(s.c.Level, "Put batch", "batch", n, "records", len(records), "bytes", size)

	if s.c.Records && logger.Enabled(s.logger, s.c.Level) {
		for i, r := range records {
			s.logger.Log(
				s.c.Level, "Put record",
				"batch", n,
				"index", i,
				"key", s.c.Codec.Decode(r.Key),
				"value", s.c.Codec.Decode(r.Value),
			)
		}
	}

	return nil
}

// Totals returns the number of batches and records written so far.
func (s *Store) Totals() (batches, records int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches, s.records
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
