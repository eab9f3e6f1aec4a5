package pipeline

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/writer"
)

// FailedRecord is a record that was never committed, with the batch it
// travelled in (0 when it never reached one) and the reason.
type FailedRecord struct {
	Record   record.Record
	Sequence uint64
	Attempts int
	Err      error
}

// Result summarises a run. Every record read from the source is either
// committed or listed in Failed.
type Result struct {
	RunID string

	TotalRecords   int
	Committed      int
	CommittedBytes int
	Batches        int
	FailedBatches  int
	Failed         []FailedRecord

	// Skipped counts malformed input the source dropped; such input never
	// became a record and is not part of TotalRecords.
	Skipped int

	// Cancelled is set when the run's context was cancelled before the
	// source was exhausted.
	Cancelled bool

	State    State
	Duration time.Duration
}

func (r *Result) Success() bool {
	return len(r.Failed) == 0
}

// aggregator accumulates outcomes from concurrent workers.
type aggregator struct {
	mu sync.Mutex

	total          int
	committed      int
	committedBytes int
	batches        int
	failedBatches  int
	failed         []FailedRecord
}

func (a *aggregator) read() {
	a.mu.Lock()
	a.total++
	a.mu.Unlock()
}

func (a *aggregator) batch() {
	a.mu.Lock()
	a.batches++
	a.mu.Unlock()
}

func (a *aggregator) outcome(o writer.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.committed += o.Acked
	a.committedBytes += o.AckedBytes
	if o.Committed() {
		return
	}

	a.failedBatches++
	for _, r := range o.Unacked {
		a.failed = append(
			a.failed, FailedRecord{
				Record:   r,
				Sequence: o.Batch.Sequence,
				Attempts: o.Attempts,
				Err:      o.Err,
			},
		)
	}
}

func (a *aggregator) failRecord(r record.Record, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed = append(a.failed, FailedRecord{Record: r, Err: err})
}

func (a *aggregator) result() *Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	failed := slices.Clone(a.failed)
	slices.SortStableFunc(
		failed, func(x, y FailedRecord) int {
			return cmp.Compare(x.Sequence, y.Sequence)
		},
	)

	return &Result{
		TotalRecords:   a.total,
		Committed:      a.committed,
		CommittedBytes: a.committedBytes,
		Batches:        a.batches,
		FailedBatches:  a.failedBatches,
		Failed:         failed,
	}
}
