// Package pipeline drives a bulk load: it pulls records from a source,
// groups them into batches and writes the batches concurrently under a
// bounded number of in-flight permits.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hugolhafner/go-bulkload/batcher"
	"github.com/hugolhafner/go-bulkload/inflight"
	"github.com/hugolhafner/go-bulkload/logger"
	bulkotel "github.com/hugolhafner/go-bulkload/otel"
	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/source"
	"github.com/hugolhafner/go-bulkload/store"
	"github.com/hugolhafner/go-bulkload/writer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Coordinator runs a single load. It is not reusable; build a new one per
// run.
type Coordinator struct {
	c      Config
	writer *writer.Writer
	logger logger.Logger
	tel    *bulkotel.Telemetry
	runID  string

	state   atomic.Int32
	started atomic.Bool
}

type job struct {
	batch  *record.Batch
	permit *inflight.Permit
}

func New(s store.Store, opts ...ConfigOption) (*Coordinator, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w, err := writer.New(s, cfg.writerOptions()...)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()

	return &Coordinator{
		c:      cfg,
		writer: w,
		logger: cfg.Logger.With("component", "pipeline", "run_id", runID),
		tel:    cfg.Telemetry,
		runID:  runID,
	}, nil
}

func (c *Coordinator) RunID() string {
	return c.runID
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	c.logger.Debug("Pipeline state changed", "from", old.String(), "to", s.String())
}

// Run loads every record from src into the store. The returned result is
// complete and immutable. A non-nil error is always a *SourceError; store
// failures and cancellation are reported through the result instead. Run
// does not close src.
func (c *Coordinator) Run(ctx context.Context, src source.Source) (*Result, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}

	start := time.Now()
	ctx, span := c.tel.Tracer.Start(
		ctx, "bulkload run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(bulkotel.AttrRunID.String(c.runID)),
	)
	defer span.End()

	b, err := batcher.New(
		batcher.WithMaxBatchCount(c.c.MaxBatchCount),
		batcher.WithMaxBatchBytes(c.c.MaxBatchBytes),
	)
	if err != nil {
		return nil, err
	}

	ctrl, err := inflight.NewController(c.c.MaxInFlight)
	if err != nil {
		return nil, err
	}

	r := &run{
		Coordinator: c,
		agg:         &aggregator{},
		ctrl:        ctrl,
		throttle:    inflight.NewThrottle(c.c.BytesPerSecond, c.c.MaxBatchBytes),
		jobs:        make(chan job),
		halt:        make(chan struct{}),
	}

	c.setState(StateRunning)
	c.logger.Info(
		"Starting load",
		"max_batch_count", c.c.MaxBatchCount,
		"max_batch_bytes", c.c.MaxBatchBytes,
		"max_in_flight", c.c.MaxInFlight,
		"max_retries", c.c.MaxRetries,
		"fail_fast", c.c.FailFast,
	)

	for i := 0; i < c.c.MaxInFlight; i++ {
		r.wg.Add(1)
		go r.work(ctx)
	}

	srcErr := r.pull(ctx, src, b)
	cancelled := ctx.Err() != nil

	c.setState(StateDraining)

	if last, ok := b.Flush(); ok {
		switch {
		case srcErr != nil:
			r.abandon(ctx, last, srcErr)
		case cancelled:
			r.abandon(ctx, last, ErrCancelled)
		default:
			r.submit(ctx, last)
		}
	}

	close(r.jobs)
	r.wg.Wait()

	res := r.agg.result()
	res.RunID = c.runID
	res.Cancelled = cancelled
	res.Duration = time.Since(start)
	if sk, ok := src.(source.Skipper); ok {
		res.Skipped = sk.Skipped()
		c.tel.RecordsSkipped.Add(ctx, int64(res.Skipped))
	}

	res.State = StateCompleted
	if !res.Success() {
		res.State = StateCompletedWithFailures
	}
	c.setState(res.State)

	span.SetAttributes(
		attribute.Int("bulkload.run.records", res.TotalRecords),
		attribute.Int("bulkload.run.committed", res.Committed),
		attribute.Int("bulkload.run.failed", len(res.Failed)),
		bulkotel.AttrPipelineState.String(res.State.String()),
	)

	c.logger.Info(
		"Load finished",
		"state", res.State.String(),
		"records", res.TotalRecords,
		"committed", res.Committed,
		"failed", len(res.Failed),
		"skipped", res.Skipped,
		"batches", res.Batches,
		"cancelled", res.Cancelled,
		"duration", res.Duration,
	)

	if srcErr != nil {
		span.RecordError(srcErr)
		span.SetStatus(codes.Error, srcErr.Error())
		return res, srcErr
	}

	return res, nil
}

// run holds the per-run state shared by the control loop and the workers.
type run struct {
	*Coordinator

	agg      *aggregator
	ctrl     *inflight.Controller
	throttle *inflight.Throttle
	jobs     chan job
	wg       sync.WaitGroup

	halt     chan struct{}
	haltOnce sync.Once
}

func (r *run) stop() {
	r.haltOnce.Do(
		func() {
			close(r.halt)
		},
	)
}

func (r *run) halted() bool {
	select {
	case <-r.halt:
		return true
	default:
		return false
	}
}

// pull feeds the batcher until the source is exhausted, fails, the context
// is cancelled or a fail fast halt is requested.
func (r *run) pull(ctx context.Context, src source.Source, b *batcher.Batcher) error {
	for {
		if ctx.Err() != nil {
			r.logger.Warn("Context cancelled, no longer reading source", "error", ctx.Err())
			return nil
		}
		if r.halted() {
			r.logger.Warn("Fail fast triggered, no longer reading source")
			return nil
		}

		rec, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				continue
			}
			r.logger.Error("Source failed", "error", err)
			return &SourceError{Err: err}
		}

		r.agg.read()
		r.tel.RecordsRead.Add(ctx, 1)

		if err := rec.Validate(); err != nil {
			r.logger.Debug("Rejecting record", "error", err)
			r.agg.failRecord(rec, err)
			r.tel.RecordsFailed.Add(ctx, 1)
			continue
		}

		for _, batch := range b.Accept(rec) {
			r.submit(ctx, batch)
		}
	}
}

// submit hands batch to a worker once the throttle and a permit allow it.
// A batch that cannot be handed over because ctx is done fails with
// ErrCancelled without being attempted.
func (r *run) submit(ctx context.Context, batch *record.Batch) {
	if err := r.throttle.Wait(ctx, batch.SizeBytes); err != nil {
		r.abandon(ctx, batch, cancelled(err))
		return
	}

	permit, err := r.ctrl.Acquire(ctx)
	if err != nil {
		r.abandon(ctx, batch, cancelled(err))
		return
	}

	r.agg.batch()
	r.tel.BatchesInFlight.Add(ctx, 1)
	r.jobs <- job{batch: batch, permit: permit}
}

func (r *run) abandon(ctx context.Context, batch *record.Batch, err error) {
	r.agg.batch()
	r.record(
		ctx, writer.Outcome{
			Batch:   batch,
			Status:  writer.StatusFailed,
			Err:     err,
			Unacked: batch.Records,
		},
	)
}

func (r *run) work(ctx context.Context) {
	defer r.wg.Done()

	for j := range r.jobs {
		out := r.writer.Write(ctx, j.batch)
		r.record(ctx, out)

		if !out.Committed() && r.c.FailFast {
			r.stop()
		}

		r.tel.BatchesInFlight.Add(ctx, -1)
		r.ctrl.Release(j.permit)
	}
}

func (r *run) record(ctx context.Context, out writer.Outcome) {
	r.agg.outcome(out)

	status := bulkotel.StatusSuccess
	if !out.Committed() {
		status = bulkotel.StatusFailed
		if errors.Is(out.Err, ErrCancelled) {
			status = bulkotel.StatusCancelled
		}
		r.logger.Warn(
			"Batch failed",
			"sequence", out.Batch.Sequence,
			"records", len(out.Unacked),
			"attempts", out.Attempts,
			"error", out.Err,
		)
	}

	attrs := metric.WithAttributes(bulkotel.AttrWriteStatus.String(status))
	if out.Acked > 0 {
		r.tel.RecordsCommitted.Add(ctx, int64(out.Acked), attrs)
		r.tel.BytesWritten.Add(ctx, int64(out.AckedBytes), attrs)
	}
	if n := len(out.Unacked); n > 0 {
		r.tel.RecordsFailed.Add(ctx, int64(n), attrs)
	}
}

func cancelled(err error) error {
	if errors.Is(err, ErrCancelled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}
