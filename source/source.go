// Package source provides the record streams a load consumes.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hugolhafner/go-bulkload/record"
)

// Source yields records one at a time. Next returns io.EOF once the stream
// is exhausted; any other error is fatal to the load.
type Source interface {
	Next(ctx context.Context) (record.Record, error)
	Close() error
}

// Skipper is implemented by sources that can drop malformed input instead
// of failing.
type Skipper interface {
	Skipped() int
}

// MalformedError reports input that could not be turned into a record.
type MalformedError struct {
	Line   int
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed record at line %d: %s: %v", e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed record at line %d: %s", e.Line, e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

func AsMalformedError(err error) (*MalformedError, bool) {
	var me *MalformedError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// SliceSource serves records from memory.
type SliceSource struct {
	records []record.Record
	pos     int
}

var _ Source = (*SliceSource)(nil)

func NewSliceSource(records ...record.Record) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Next(ctx context.Context) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}
	if s.pos >= len(s.records) {
		return record.Record{}, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

func (s *SliceSource) Close() error {
	return nil
}
