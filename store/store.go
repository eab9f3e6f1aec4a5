// Package store defines the contract between the pipeline and the key-value
// store it loads into.
package store

import (
	"context"

	"github.com/hugolhafner/go-bulkload/record"
)

// Store writes ordered batches of records. PutBatch is atomic per call
// unless it returns a *PartialError naming the records that were not
// acknowledged. Failures should be wrapped with Transient or Permanent so the
// writer knows whether a retry can help; unwrapped errors are classified by
// Classify.
type Store interface {
	PutBatch(ctx context.Context, records []record.Record) error
	Close() error
}

// Pinger is implemented by stores that can check connectivity up front.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BatchLimiter is implemented by stores that reject requests above a fixed
// record count or payload size. Zero means no limit.
type BatchLimiter interface {
	BatchLimits() (maxCount, maxBytes int)
}
