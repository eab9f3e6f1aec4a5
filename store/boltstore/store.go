// Package boltstore keeps loaded records in a local bbolt file. Keys are
// held in a single bucket in byte order, so a finished load can be scanned
// back sorted.
package boltstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugolhafner/go-bulkload/logger"
	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/store"
	bolt "go.etcd.io/bbolt"
)

const DefaultBucket = "bulkload"

var (
	_ store.Store  = (*Store)(nil)
	_ store.Pinger = (*Store)(nil)
)

type Config struct {
	Bucket string
	// Timeout bounds waiting for the file lock when opening.
	Timeout time.Duration
	// NoSync skips fsync after each batch. Faster, but a crash can lose
	// acknowledged writes.
	NoSync   bool
	ReadOnly bool
	Logger   logger.Logger
}

type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Bucket:  DefaultBucket,
		Timeout: time.Second,
		Logger:  logger.NewNoopLogger(),
	}
}

func WithBucket(name string) Option {
	return func(c *Config) {
		c.Bucket = name
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

func WithNoSync(noSync bool) Option {
	return func(c *Config) {
		c.NoSync = noSync
	}
}

// WithReadOnly opens the file with a shared lock; writes fail permanently.
func WithReadOnly(readOnly bool) Option {
	return func(c *Config) {
		c.ReadOnly = readOnly
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
	db     *bolt.DB
	bucket []byte
	logger logger.Logger
}

func Open(path string, opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Bucket == "" {
		return nil, errors.New("boltstore: bucket name is required")
	}

	db, err := bolt.Open(
		path, 0o600, &bolt.Options{
			Timeout:  cfg.Timeout,
			NoSync:   cfg.NoSync,
			ReadOnly: cfg.ReadOnly,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	s := &Store{
		db:     db,
		bucket: []byte(cfg.Bucket),
		logger: cfg.Logger.With("component", "boltstore", "path", path),
	}

	if !cfg.ReadOnly {
		err = db.Update(
			func(tx *bolt.Tx) error {
				_, err := tx.CreateBucketIfNotExists(s.bucket)
				return err
			},
		)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("boltstore: create bucket %q: %w", cfg.Bucket, err)
		}
	}

	s.logger.Debug("Opened bolt store", "bucket", cfg.Bucket, "no_sync", cfg.NoSync, "read_only", cfg.ReadOnly)

	return s, nil
}

// PutBatch writes records in one read-write transaction, so either all of
// them land or none do.
func (s *Store) PutBatch(ctx context.Context, records []record.Record) error {
	if err := ctx.Err(); err != nil {
		return store.Transient(err)
	}

	err := s.db.Update(
		func(tx *bolt.Tx) error {
			b := tx.Bucket(s.bucket)
			if b == nil {
				return bolt.ErrBucketNotFound
			}
			for i, r := range records {
				if err := b.Put(r.Key, r.Value); err != nil {
					return fmt.Errorf("put record %d: %w", i, err)
				}
			}
			return nil
		},
	)
	return classify(err)
}

func (s *Store) Ping(ctx context.Context) error {
	return classify(
		s.db.View(
			func(tx *bolt.Tx) error {
				if tx.Bucket(s.bucket) == nil {
					return bolt.ErrBucketNotFound
				}
				return nil
			},
		),
	)
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := s.db.View(
		func(tx *bolt.Tx) error {
			b := tx.Bucket(s.bucket)
			if b == nil {
				return bolt.ErrBucketNotFound
			}
			if v := b.Get(key); v != nil {
				value = append([]byte{}, v...)
				found = true
			}
			return nil
		},
	)
	return value, found, err
}

// Scan calls fn for every stored record in key order. The record's slices
// are only valid during the call.
func (s *Store) Scan(ctx context.Context, fn func(record.Record) error) error {
	return s.db.View(
		func(tx *bolt.Tx) error {
			b := tx.Bucket(s.bucket)
			if b == nil {
				return bolt.ErrBucketNotFound
			}
			c := b.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(record.New(k, v)); err != nil {
					return err
				}
			}
			return nil
		},
	)
}

func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(
		func(tx *bolt.Tx) error {
			b := tx.Bucket(s.bucket)
			if b == nil {
				return bolt.ErrBucketNotFound
			}
			n = b.Stats().KeyN
			return nil
		},
	)
	return n, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bolt.ErrTimeout):
		return store.Transient(err)
	case errors.Is(err, bolt.ErrDatabaseNotOpen),
		errors.Is(err, bolt.ErrKeyRequired),
		errors.Is(err, bolt.ErrKeyTooLarge),
		errors.Is(err, bolt.ErrValueTooLarge),
		errors.Is(err, bolt.ErrDatabaseReadOnly),
		errors.Is(err, bolt.ErrTxNotWritable),
		errors.Is(err, bolt.ErrBucketNotFound):
		return store.Permanent(err)
	default:
		return err
	}
}
