package mockstore

import (
	"context"
	"sync"
	"time"

	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/store"
)

var _ store.Store = (*Store)(nil)
var _ store.Pinger = (*Store)(nil)

// Call is one PutBatch invocation as seen by the store.
type Call struct {
	Number  int
	Records []record.Record
	Err     error
}

// Store is an in-memory store.Store for tests. Writes can be failed with a
// scripted sequence of errors or a function of the call, delayed, and the
// number of concurrent PutBatch calls is tracked.
type Store struct {
	mu sync.Mutex

	data      map[string][]byte
	committed []record.Record
	calls     []Call

	errs    []error
	errFunc func(call int, records []record.Record) error
	delay   time.Duration
	pingErr error

	active    int
	maxActive int
	closed    bool
}

func New(opts ...Option) *Store {
	s := &Store{
		data: make(map[string][]byte),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) PutBatch(ctx context.Context, records []record.Record) error {
	s.mu.Lock()
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	number := len(s.calls) + 1
	delay := s.delay
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-ctx.Done():
			s.record(number, records, ctx.Err())
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	err := s.nextErr(number, records)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Number: number, Records: copyRecords(records), Err: err})

	if s.closed {
		return store.Permanent(store.ErrClosed)
	}

	if err == nil {
		s.commitLocked(records)
		return nil
	}

	if pe, ok := store.AsPartialError(err); ok {
		unacked := make(map[int]struct{}, len(pe.Unacked))
		for _, i := range pe.Unacked {
			unacked[i] = struct{}{}
		}
		acked := make([]record.Record, 0, len(records))
		for i, r := range records {
			if _, ok := unacked[i]; !ok {
				acked = append(acked, r)
			}
		}
		s.commitLocked(acked)
	}

	return err
}

func (s *Store) nextErr(number int, records []record.Record) error {
	s.mu.Lock()
	fn := s.errFunc
	if len(s.errs) > 0 {
		scripted := s.errs[0]
		s.errs = s.errs[1:]
		s.mu.Unlock()
		return scripted
	}
	s.mu.Unlock()

	if fn != nil {
		return fn(number, records)
	}
	return nil
}

func (s *Store) record(number int, records []record.Record, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Number: number, Records: copyRecords(records), Err: err})
}

func (s *Store) commitLocked(records []record.Record) {
	for _, r := range records {
		c := r.Copy()
		s.committed = append(s.committed, c)
		s.data[string(c.Key)] = c.Value
	}
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Get returns the last value written for key.
func (s *Store) Get(key []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[string(key)]
	return v, ok
}

// Committed returns every acknowledged record in commit order, duplicates included.
func (s *Store) Committed() []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRecords(s.committed)
}

func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// MaxConcurrent is the highest number of PutBatch calls seen running at once.
func (s *Store) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}

func (s *Store) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func copyRecords(records []record.Record) []record.Record {
	out := make([]record.Record, len(records))
	for i, r := range records {
		out[i] = r.Copy()
	}
	return out
}
