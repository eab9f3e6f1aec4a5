package errorhandler

import (
	"context"
)

// Handler decides what happens to a batch after a PutBatch attempt failed.
// The writer calls it once per failed attempt with the attempt number and
// the classified error, and sleeps, retries or gives up based on the answer.
type Handler interface {
	Handle(ctx context.Context, ec ErrorContext) Action
}

type HandlerFunc func(ctx context.Context, ec ErrorContext) Action

func (f HandlerFunc) Handle(ctx context.Context, ec ErrorContext) Action {
	return f(ctx, ec)
}

// Action is a handler's verdict on a failed batch write.
type Action interface {
	Type() ActionType
}

// ActionType tells the writer whether a failed batch is resubmitted whole
// or settled as failed. A batch is never split between the two.
type ActionType int

const (
	// ActionTypeRetry resubmits every record of the batch in its original
	// order on the next attempt.
	ActionTypeRetry ActionType = iota
	// ActionTypeFail settles the batch: each of its records is reported as
	// failed with the last attempt's error.
	ActionTypeFail
)

var actionNames = [...]string{
	ActionTypeRetry: "Retry",
	ActionTypeFail:  "Fail",
}

func (a ActionType) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "Unknown"
	}
	return actionNames[a]
}

var (
	_ Action = ActionRetry{}
	_ Action = ActionFail{}
)

// ActionRetry asks for the whole batch to be written again.
type ActionRetry struct{}

func (ActionRetry) Type() ActionType { return ActionTypeRetry }

// ActionFail gives up on the batch.
type ActionFail struct{}

func (ActionFail) Type() ActionType { return ActionTypeFail }
