package pipeline

import (
	"errors"
	"fmt"

	"github.com/hugolhafner/go-bulkload/writer"
)

// ErrCancelled is recorded against every record left unresolved when the
// run's context is cancelled.
var ErrCancelled = writer.ErrCancelled

var ErrAlreadyStarted = errors.New("pipeline: coordinator already started")

// SourceError wraps a failure of the source itself. It is fatal to a run:
// nothing more is read, outstanding writes are drained and the partial
// result is returned alongside it.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source error: %v", e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func AsSourceError(err error) (*SourceError, bool) {
	var se *SourceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
