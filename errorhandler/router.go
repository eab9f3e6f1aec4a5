package errorhandler

import (
	"context"

	"github.com/hugolhafner/go-bulkload/store"
)

var _ Handler = (*ClassRouter)(nil)

// ClassRouter dispatches to a handler chosen by the error's retry class.
type ClassRouter struct {
	handler          Handler
	transientHandler Handler
	permanentHandler Handler
}

// NewClassRouter creates a new ClassRouter with the provided handlers for each class.
// If a handler for a specific class is nil, the router will fall back to the default handler.
// If the default handler is unset, defaults to SilentFail.
func NewClassRouter(handler, transientHandler, permanentHandler Handler) *ClassRouter {
	if handler == nil {
		handler = SilentFail()
	}

	return &ClassRouter{
		handler:          handler,
		transientHandler: transientHandler,
		permanentHandler: permanentHandler,
	}
}

func (r *ClassRouter) Handle(ctx context.Context, ec ErrorContext) Action {
	switch ec.Class {
	case store.ClassTransient:
		if r.transientHandler != nil {
			return r.transientHandler.Handle(ctx, ec)
		}
	case store.ClassPermanent:
		if r.permanentHandler != nil {
			return r.permanentHandler.Handle(ctx, ec)
		}
	case store.ClassUnknown:
	default:
	}

	return r.handler.Handle(ctx, ec)
}
