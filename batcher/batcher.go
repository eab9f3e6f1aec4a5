// Package batcher groups records into bounded batches by count and size.
package batcher

import (
	"fmt"

	"github.com/hugolhafner/go-bulkload/record"
)

const (
	DefaultMaxBatchCount = 500
	DefaultMaxBatchBytes = 4 << 20
)

type Config struct {
	MaxBatchCount int
	MaxBatchBytes int
}

type Option func(*Config)

func WithMaxBatchCount(n int) Option {
	return func(c *Config) {
		c.MaxBatchCount = n
	}
}

func WithMaxBatchBytes(n int) Option {
	return func(c *Config) {
		c.MaxBatchBytes = n
	}
}

func defaultConfig() Config {
	return Config{
		MaxBatchCount: DefaultMaxBatchCount,
		MaxBatchBytes: DefaultMaxBatchBytes,
	}
}

func (c Config) Validate() error {
	if c.MaxBatchCount < 1 {
		return fmt.Errorf("batcher: max batch count must be at least 1, got %d", c.MaxBatchCount)
	}
	if c.MaxBatchBytes < 1 {
		return fmt.Errorf("batcher: max batch bytes must be at least 1, got %d", c.MaxBatchBytes)
	}
	return nil
}

// Batcher accumulates records and emits a batch whenever the next record
// would break the byte bound or the count bound is reached. It is not safe
// for concurrent use; a single producer drives it.
type Batcher struct {
	c Config

	pending []record.Record
	size    int
	seq     uint64
}

func New(opts ...Option) (*Batcher, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Batcher{
		c:       cfg,
		pending: make([]record.Record, 0, cfg.MaxBatchCount),
	}, nil
}

// Accept appends rec and returns the batches that became ready, in sequence
// order. At most two batches are returned: the pending buffer when rec does
// not fit in it, followed by rec on its own when rec alone exceeds
// MaxBatchBytes.
func (b *Batcher) Accept(rec record.Record) []*record.Batch {
	var out []*record.Batch
	size := rec.Size()

	if len(b.pending) > 0 && b.size+size > b.c.MaxBatchBytes {
		out = append(out, b.emit())
	}

	if size > b.c.MaxBatchBytes {
		b.seq++
		return append(out, record.NewBatch(b.seq, []record.Record{rec}))
	}

	b.pending = append(b.pending, rec)
	b.size += size

	if len(b.pending) >= b.c.MaxBatchCount {
		out = append(out, b.emit())
	}

	return out
}

// Flush emits whatever is pending as a final, possibly undersized batch.
func (b *Batcher) Flush() (*record.Batch, bool) {
	if len(b.pending) == 0 {
		return nil, false
	}
	return b.emit(), true
}

// Pending is the number of records waiting for the next batch.
func (b *Batcher) Pending() int {
	return len(b.pending)
}

// Sequence is the sequence number of the last emitted batch.
func (b *Batcher) Sequence() uint64 {
	return b.seq
}

func (b *Batcher) emit() *record.Batch {
	b.seq++
	batch := &record.Batch{
		Sequence:  b.seq,
		Records:   b.pending,
		SizeBytes: b.size,
	}

	b.pending = make([]record.Record, 0, b.c.MaxBatchCount)
	b.size = 0

	return batch
}
