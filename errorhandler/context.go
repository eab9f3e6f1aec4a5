package errorhandler

import (
	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/store"
)

// ErrorContext provides context about a failed batch write.
// It contains all the information a handler needs to make a decision about
// whether the write is attempted again.
type ErrorContext struct {
	// Batch is the batch, or the unacknowledged remainder of it, that failed.
	Batch *record.Batch
	// Error is the error returned by the store.
	Error error
	// Class is the retry class of Error.
	Class store.Class
	// Attempt is the attempt that just failed, 1 indexed.
	Attempt int
}

func NewErrorContext(batch *record.Batch, err error) ErrorContext {
	return ErrorContext{
		Batch:   batch,
		Error:   err,
		Class:   store.Classify(err),
		Attempt: 1,
	}
}

func (ec ErrorContext) WithError(err error) ErrorContext {
	ec.Error = err
	ec.Class = store.Classify(err)
	return ec
}

func (ec ErrorContext) WithBatch(batch *record.Batch) ErrorContext {
	ec.Batch = batch
	return ec
}

func (ec ErrorContext) WithAttempt(attempt int) ErrorContext {
	ec.Attempt = attempt
	return ec
}

func (ec ErrorContext) IncrementAttempt() ErrorContext {
	ec.Attempt++
	return ec
}

func (ec ErrorContext) sequence() uint64 {
	if ec.Batch == nil {
		return 0
	}
	return ec.Batch.Sequence
}

func (ec ErrorContext) size() int {
	if ec.Batch == nil {
		return 0
	}
	return ec.Batch.Len()
}
