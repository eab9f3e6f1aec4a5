// Package kafkastore loads records into a compacted Kafka topic, treating
// the topic as a key-value log where the latest record per key wins.
package kafkastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugolhafner/go-bulkload/logger"
	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/store"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.38.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	_ store.Store        = (*Store)(nil)
	_ store.Pinger       = (*Store)(nil)
	_ store.BatchLimiter = (*Store)(nil)
)

// client is the part of *kgo.Client the store uses.
type client interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error)
	Ping(ctx context.Context) error
	Close()
}

type Config struct {
	BootstrapServers []string
	Topic            string
	ClientID         string

	// ProduceTimeout bounds each produce request. RecordRetries caps the
	// client's internal retries so the writer's own retry policy stays in
	// charge.
	ProduceTimeout time.Duration
	RecordRetries  int
	MaxBatchBytes  int32

	Propagator propagation.TextMapPropagator
	Logger     logger.Logger
}

type Option func(*Config)

func defaultConfig() Config {
	return Config{
		BootstrapServers: []string{"localhost:9092"},
		ClientID:         "go-bulkload",
		ProduceTimeout:   10 * time.Second,
		RecordRetries:    1,
		MaxBatchBytes:    1 << 20,
		Propagator:       propagation.TraceContext{},
		Logger:           logger.NewNoopLogger(),
	}
}

func WithBootstrapServers(servers ...string) Option {
	return func(c *Config) {
		c.BootstrapServers = servers
	}
}

func WithTopic(topic string) Option {
	return func(c *Config) {
		c.Topic = topic
	}
}

func WithClientID(id string) Option {
	return func(c *Config) {
		c.ClientID = id
	}
}

func WithProduceTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ProduceTimeout = d
	}
}

func WithRecordRetries(n int) Option {
	return func(c *Config) {
		c.RecordRetries = n
	}
}

func WithMaxBatchBytes(n int32) Option {
	return func(c *Config) {
		c.MaxBatchBytes = n
	}
}

func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *Config) {
		c.Propagator = p
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

func (c Config) Validate() error {
	if c.Topic == "" {
		return errors.New("kafkastore: topic is required")
	}
	if len(c.BootstrapServers) == 0 {
		return errors.New("kafkastore: at least one bootstrap server is required")
	}
	return nil
}

type Store struct {
	client client
	c      Config
	logger logger.Logger
}

func New(opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := cfg.Logger.With("component", "kafkastore", "topic", cfg.Topic)

	kgoOpts := []kgo.Opt{
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordRetries(cfg.RecordRetries),
		kgo.ProduceRequestTimeout(cfg.ProduceTimeout),
		kgo.WithLogger(newKgoLogger(l.With("client", "kgo"))),
	}
	if cfg.MaxBatchBytes > 0 {
		kgoOpts = append(kgoOpts, kgo.ProducerBatchMaxBytes(cfg.MaxBatchBytes))
	}

	cl, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, fmt.Errorf("kafkastore: create kgo client: %w", err)
	}

	return newStore(cl, cfg, l), nil
}

func newStore(cl client, cfg Config, l logger.Logger) *Store {
	return &Store{
		client: cl,
		c:      cfg,
		logger: l,
	}
}

// BatchLimits reports no count limit; bytes are bounded by the broker's
// batch size since a batch is produced as a whole.
func (s *Store) BatchLimits() (int, int) {
	return 0, int(s.c.MaxBatchBytes)
}

// PutBatch produces every record and waits for all acknowledgements. When
// only some records fail a *store.PartialError names them so the rest are
// not produced twice.
func (s *Store) PutBatch(ctx context.Context, records []record.Record) error {
	krs := make([]*kgo.Record, len(records))
	index := make(map[*kgo.Record]int, len(records))
	for i, r := range records {
		kr := &kgo.Record{
			Topic: s.c.Topic,
			Key:   r.Key,
			Value: r.Value,
		}
		if s.c.Propagator != nil {
			s.c.Propagator.Inject(ctx, headersCarrier{headers: &kr.Headers})
		}
		krs[i] = kr
		index[kr] = i
	}

	trace.SpanFromContext(ctx).SetAttributes(
		semconv.MessagingSystemKafka,
		semconv.MessagingOperationTypeSend,
		semconv.MessagingDestinationName(s.c.Topic),
		semconv.MessagingBatchMessageCount(len(records)),
	)

	results := s.client.ProduceSync(ctx, krs...)

	var (
		unacked  []int
		firstErr error
	)
	for _, res := range results {
		if res.Err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = res.Err
		}
		if i, ok := index[res.Record]; ok {
			unacked = append(unacked, i)
		}
	}

	if firstErr == nil {
		return nil
	}

	s.logger.Debug("Produce failed", "records", len(records), "failed", len(unacked), "error", firstErr)

	cause := classify(firstErr)
	if len(unacked) == len(records) {
		return cause
	}
	return store.NewPartialError(unacked, cause)
}

func (s *Store) Ping(ctx context.Context) error {
	return classify(s.client.Ping(ctx))
}

func (s *Store) Close() error {
	s.client.Close()
	return nil
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kgo.ErrRecordTimeout),
		errors.Is(err, kgo.ErrRecordRetries),
		errors.Is(err, kgo.ErrMaxBuffered):
		return store.Transient(err)
	case errors.Is(err, kgo.ErrClientClosed):
		return store.Permanent(err)
	case kerr.IsRetriable(err):
		return store.Transient(err)
	}

	var ke *kerr.Error
	if errors.As(err, &ke) {
		return store.Permanent(err)
	}
	return err
}
