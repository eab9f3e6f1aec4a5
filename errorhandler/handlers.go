package errorhandler

import (
	"context"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-bulkload/logger"
	"github.com/hugolhafner/go-bulkload/store"
)

// SilentFail fails the batch without logging
func SilentFail() Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			return ActionFail{}
		},
	)
}

// LogAndFail logs error and gives up on the batch
func LogAndFail(logger logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			logger.Error(
				"error writing batch, failing",
				"error", ec.Error,
				"class", ec.Class.String(),
				"sequence", ec.sequence(),
				"records", ec.size(),
				"attempt", ec.Attempt,
			)
			return ActionFail{}
		},
	)
}

// RetryTransient retries transient failures until maxAttempts attempts have
// been made, waiting b.Next(attempt) before each retry. Permanent failures,
// exhausted budgets and a cancelled context are handed to fallback.
func RetryTransient(maxAttempts int, b backoff.Backoff, fallback Handler) Handler {
	if fallback == nil {
		fallback = SilentFail()
	}

	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			if ec.Class != store.ClassTransient || ec.Attempt >= maxAttempts {
				return fallback.Handle(ctx, ec)
			}

			if ctx.Err() != nil {
				return fallback.Handle(ctx, ec)
			}

			timer := time.NewTimer(b.Next(uint(ec.Attempt)))
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return fallback.Handle(ctx, ec)
			case <-timer.C:
			}

			return ActionRetry{}
		},
	)
}

// ActionLogger logs the action decided by the next handler
func ActionLogger(l logger.Logger, level logger.LogLevel, next Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			action := next.Handle(ctx, ec)
			l.Log(
				level,
				"Error handler decision",
				"action", action.Type().String(),
				"error", ec.Error,
				"class", ec.Class.String(),
				"sequence", ec.sequence(),
				"records", ec.size(),
				"attempt", ec.Attempt,
			)
			return action
		},
	)
}
