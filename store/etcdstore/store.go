// Package etcdstore loads records into etcd, writing each batch as a single
// transaction of puts.
package etcdstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugolhafner/go-bulkload/logger"
	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/store"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// DefaultMaxTxnOps matches the etcd server's --max-txn-ops default.
	DefaultMaxTxnOps = 128
	// DefaultMaxRequestBytes stays under the server's 1.5MiB request limit.
	DefaultMaxRequestBytes = 1 << 20
)

var (
	_ store.Store        = (*Store)(nil)
	_ store.Pinger       = (*Store)(nil)
	_ store.BatchLimiter = (*Store)(nil)
)

type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string

	// Prefix is prepended to every key.
	Prefix          string
	MaxTxnOps       int
	MaxRequestBytes int

	Logger logger.Logger
	// ZapLogger is handed to the etcd client for its own logs.
	ZapLogger *zap.Logger
}

type Option func(*Config)

func defaultConfig() Config {
	return Config{
		DialTimeout:     5 * time.Second,
		MaxTxnOps:       DefaultMaxTxnOps,
		MaxRequestBytes: DefaultMaxRequestBytes,
		Logger:          logger.NewNoopLogger(),
		ZapLogger:       zap.NewNop(),
	}
}

func WithEndpoints(endpoints ...string) Option {
	return func(c *Config) {
		c.Endpoints = endpoints
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DialTimeout = d
	}
}

func WithAuth(username, password string) Option {
	return func(c *Config) {
		c.Username = username
		c.Password = password
	}
}

func WithPrefix(prefix string) Option {
	return func(c *Config) {
		c.Prefix = prefix
	}
}

func WithMaxTxnOps(n int) Option {
	return func(c *Config) {
		c.MaxTxnOps = n
	}
}

func WithMaxRequestBytes(n int) Option {
	return func(c *Config) {
		c.MaxRequestBytes = n
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

func WithZapLogger(l *zap.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.ZapLogger = l
		}
	}
}

func (c Config) Validate() error {
	if c.MaxTxnOps < 1 {
		return fmt.Errorf("etcdstore: max txn ops must be at least 1, got %d", c.MaxTxnOps)
	}
	if c.MaxRequestBytes < 0 {
		return fmt.Errorf("etcdstore: max request bytes must not be negative, got %d", c.MaxRequestBytes)
	}
	return nil
}

type Store struct {
	kv     clientv3.KV
	client *clientv3.Client
	c      Config
	logger logger.Logger
}

// Dial connects to the configured endpoints. Close closes the client.
func Dial(opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("etcdstore: at least one endpoint is required")
	}

	client, err := clientv3.New(
		clientv3.Config{
			Endpoints:   cfg.Endpoints,
			DialTimeout: cfg.DialTimeout,
			Username:    cfg.Username,
			Password:    cfg.Password,
			Logger:      cfg.ZapLogger,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("etcdstore: dial %v: %w", cfg.Endpoints, err)
	}

	s := newStore(client, cfg)
	s.client = client
	return s, nil
}

// New wraps an existing KV, typically a *clientv3.Client owned by the
// caller. Close does not close it.
func New(kv clientv3.KV, opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if kv == nil {
		return nil, errors.New("etcdstore: kv is required")
	}

	return newStore(kv, cfg), nil
}

func newStore(kv clientv3.KV, cfg Config) *Store {
	return &Store{
		kv:     kv,
		c:      cfg,
		logger: cfg.Logger.With("component", "etcdstore", "prefix", cfg.Prefix),
	}
}

func (s *Store) BatchLimits() (int, int) {
	return s.c.MaxTxnOps, s.c.MaxRequestBytes
}

// PutBatch writes all records in one transaction. Batches above MaxTxnOps
// are rejected before reaching the server.
func (s *Store) PutBatch(ctx context.Context, records []record.Record) error {
	if len(records) > s.c.MaxTxnOps {
		return store.Permanent(
			fmt.Errorf("%d records exceed max txn ops %d: %w", len(records), s.c.MaxTxnOps, rpctypes.ErrTooManyOps),
		)
	}

	ops := make([]clientv3.Op, len(records))
	for i, r := range records {
		ops[i] = clientv3.OpPut(s.c.Prefix+string(r.Key), string(r.Value))
	}

	resp, err := s.kv.Txn(ctx).Then(ops...).Commit()
	if err != nil {
		s.logger.Debug("Transaction failed", "records", len(records), "error", err)
		return classify(err)
	}

	s.logger.Debug("Transaction committed", "records", len(records), "revision", resp.Header.GetRevision())
	return nil
}

// Get returns the value stored under key, prefix applied.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	resp, err := s.kv.Get(ctx, s.c.Prefix+string(key))
	if err != nil {
		return nil, false, classify(err)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	return resp.Kvs[0].Value, true, nil
}

// Count is the number of keys under the prefix.
func (s *Store) Count(ctx context.Context) (int64, error) {
	resp, err := s.kv.Get(ctx, s.c.Prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return 0, classify(err)
	}
	return resp.Count, nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.kv.Get(ctx, s.c.Prefix, clientv3.WithCountOnly(), clientv3.WithLimit(1))
	return classify(err)
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func classify(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, rpctypes.ErrNoLeader),
		errors.Is(err, rpctypes.ErrNotLeader),
		errors.Is(err, rpctypes.ErrLeaderChanged),
		errors.Is(err, rpctypes.ErrTimeout),
		errors.Is(err, rpctypes.ErrTimeoutDueToLeaderFail),
		errors.Is(err, rpctypes.ErrTimeoutDueToConnectionLost),
		errors.Is(err, rpctypes.ErrTimeoutWaitAppliedIndex),
		errors.Is(err, rpctypes.ErrUnhealthy),
		errors.Is(err, rpctypes.ErrStopped),
		errors.Is(err, rpctypes.ErrTooManyRequests):
		return store.Transient(err)

	case errors.Is(err, rpctypes.ErrTooManyOps),
		errors.Is(err, rpctypes.ErrRequestTooLarge),
		errors.Is(err, rpctypes.ErrEmptyKey),
		errors.Is(err, rpctypes.ErrDuplicateKey),
		errors.Is(err, rpctypes.ErrNoSpace),
		errors.Is(err, rpctypes.ErrPermissionDenied),
		errors.Is(err, rpctypes.ErrAuthFailed),
		errors.Is(err, rpctypes.ErrInvalidAuthToken),
		errors.Is(err, rpctypes.ErrUserEmpty):
		return store.Permanent(err)
	}

	var code codes.Code
	var ee rpctypes.EtcdError
	if errors.As(err, &ee) {
		code = ee.Code()
	} else if st, ok := status.FromError(err); ok {
		code = st.Code()
	} else {
		return err
	}

	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return store.Transient(err)
	case codes.OK, codes.Unknown:
		return err
	default:
		return store.Permanent(err)
	}
}
