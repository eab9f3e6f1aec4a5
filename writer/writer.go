// Package writer submits batches to a store, retrying transient failures
// with exponential backoff and resubmitting only the unacknowledged part of
// a partially applied batch.
package writer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugolhafner/go-bulkload/errorhandler"
	"github.com/hugolhafner/go-bulkload/logger"
	bulkotel "github.com/hugolhafner/go-bulkload/otel"
	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.38.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrCancelled is the failure recorded for batches left unresolved when the
// run's context is cancelled.
var ErrCancelled = errors.New("write cancelled")

// ErrInvalidAction is returned when an error handler yields an action the
// writer does not understand.
var ErrInvalidAction = errors.New("invalid error handler action")

type Writer struct {
	store   store.Store
	handler errorhandler.Handler
	c       Config
	logger  logger.Logger
	tel     *bulkotel.Telemetry
}

func New(s store.Store, opts ...Option) (*Writer, error) {
	if s == nil {
		return nil, errors.New("writer: store is required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt.applyWriter(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Writer{
		store:   s,
		handler: cfg.Handler(),
		c:       cfg,
		logger:  cfg.Logger.With("component", "writer"),
		tel:     cfg.Telemetry,
	}, nil
}

// Write drives batch to a terminal outcome. Store calls are shielded from
// ctx cancellation so an attempt in progress completes, but once ctx is done
// no further attempt is started and the unresolved records fail with
// ErrCancelled.
func (w *Writer) Write(ctx context.Context, batch *record.Batch) Outcome {
	ctx, span := w.tel.Tracer.Start(
		ctx, "bulkload write",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			bulkotel.AttrBatchSequence.Int64(int64(batch.Sequence)),
			bulkotel.AttrBatchRecords.Int(batch.Len()),
			bulkotel.AttrBatchBytes.Int(batch.SizeBytes),
			semconv.DBOperationName("put_batch"),
			semconv.DBOperationBatchSize(batch.Len()),
		),
	)
	defer span.End()

	out := Outcome{Batch: batch}
	pending := batch
	ec := errorhandler.NewErrorContext(batch, nil).WithAttempt(0)

	fail := func(err error) Outcome {
		out.Status = StatusFailed
		out.Err = err
		out.Unacked = pending.Records
		span.SetAttributes(attribute.Int("bulkload.write.acked", out.Acked))
		span.SetStatus(codes.Error, err.Error())
		return out
	}

	for {
		if err := ctx.Err(); err != nil {
			w.logger.Warn("Context cancelled before write attempt", "sequence", batch.Sequence, "attempts", out.Attempts)
			return fail(w.cancelled(ec.Error))
		}

		out.Attempts++
		ec = ec.WithBatch(pending).IncrementAttempt()

		err := w.put(ctx, pending, out.Attempts)
		if err == nil {
			out.Acked += pending.Len()
			out.AckedBytes += pending.SizeBytes
			out.Status = StatusCommitted
			span.SetAttributes(attribute.Int("bulkload.write.attempts", out.Attempts))
			w.logger.Debug("Batch committed", "sequence", batch.Sequence, "attempts", out.Attempts)
			return out
		}

		if partial, ok := store.AsPartialError(err); ok {
			remainder := pending.Subset(partial.Unacked)
			acked := pending.Len() - remainder.Len()
			out.Acked += acked
			out.AckedBytes += pending.SizeBytes - remainder.SizeBytes
			pending = remainder

			w.logger.Debug(
				"Partial write",
				"sequence", batch.Sequence, "acked", acked, "remaining", remainder.Len(), "attempt", out.Attempts,
			)

			if pending.Len() == 0 {
				out.Status = StatusCommitted
				return out
			}
		}

		ec = ec.WithBatch(pending).WithError(err)
		span.RecordError(err)
		w.tel.Errors.Add(
			ctx, 1, metric.WithAttributes(
				bulkotel.AttrErrorClass.String(ec.Class.String()),
			),
		)

		if ec.Class == store.ClassTransient && ctx.Err() != nil {
			return fail(w.cancelled(err))
		}

		action := w.handler.Handle(ctx, ec)

		w.tel.ErrorHandlerActions.Add(
			ctx, 1, metric.WithAttributes(
				bulkotel.AttrErrorAction.String(action.Type().String()),
				bulkotel.AttrErrorClass.String(ec.Class.String()),
			),
		)

		switch action.Type() {
		case errorhandler.ActionTypeRetry:
			w.logger.Debug("Retrying batch", "sequence", batch.Sequence, "attempt", out.Attempts, "error", err)
			if out.Attempts%10 == 0 {
				w.logger.Warn(
					"Batch seen high number of write attempts, consider a lower retry bound",
					"sequence", batch.Sequence, "attempt", out.Attempts,
				)
			}
			continue

		case errorhandler.ActionTypeFail:
			if ec.Class == store.ClassTransient && ctx.Err() != nil {
				return fail(w.cancelled(err))
			}
			return fail(err)

		default:
			w.logger.Error("Invalid action type", "action", action.Type().String())
			return fail(fmt.Errorf("%w: %s", ErrInvalidAction, action.Type()))
		}
	}
}

func (w *Writer) put(ctx context.Context, batch *record.Batch, attempt int) error {
	callCtx := context.WithoutCancel(ctx)
	if w.c.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, w.c.AttemptTimeout)
		defer cancel()
	}

	start := time.Now()
	err := w.store.PutBatch(callCtx, batch.Records)

	status := bulkotel.StatusSuccess
	if err != nil {
		status = bulkotel.StatusError
		if _, ok := store.AsPartialError(err); ok {
			status = bulkotel.StatusPartial
		}
	}

	attrs := metric.WithAttributes(bulkotel.AttrWriteStatus.String(status))
	w.tel.WriteAttempts.Add(ctx, 1, attrs)
	w.tel.WriteDuration.Record(ctx, time.Since(start).Seconds(), attrs)

	return err
}

func (w *Writer) cancelled(last error) error {
	if last == nil {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, last)
}
