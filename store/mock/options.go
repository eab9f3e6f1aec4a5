package mockstore

import (
	"time"

	"github.com/hugolhafner/go-bulkload/record"
)

// Option is a functional option for configuring a mock Store.
type Option func(*Store)

// WithErrors scripts the results of the first calls in order. A nil entry
// lets that call succeed; once the script runs out calls fall through to
// WithErrorFunc, or succeed.
func WithErrors(errs ...error) Option {
	return func(s *Store) {
		s.errs = append(s.errs, errs...)
	}
}

// WithErrorFunc decides the result of every unscripted call.
func WithErrorFunc(fn func(call int, records []record.Record) error) Option {
	return func(s *Store) {
		s.errFunc = fn
	}
}

// WithError fails every call with err.
func WithError(err error) Option {
	return WithErrorFunc(
		func(int, []record.Record) error {
			return err
		},
	)
}

// WithDelay adds an artificial delay to every PutBatch call.
func WithDelay(d time.Duration) Option {
	return func(s *Store) {
		s.delay = d
	}
}

// WithPingError configures an error to be returned by Ping.
func WithPingError(err error) Option {
	return func(s *Store) {
		s.pingErr = err
	}
}
