package mockstore

import (
	"sort"
	"testing"
)

// AssertCommittedKeys checks that exactly the given keys were committed,
// ignoring order and failing on duplicates.
func (s *Store) AssertCommittedKeys(tb testing.TB, keys ...string) {
	tb.Helper()

	committed := s.Committed()
	got := make([]string, len(committed))
	for i, r := range committed {
		got[i] = string(r.Key)
	}

	want := append([]string(nil), keys...)
	sort.Strings(got)
	sort.Strings(want)

	if len(got) != len(want) {
		tb.Errorf("expected %d committed keys, got %d: %v", len(want), len(got), got)
		return
	}
	for i := range want {
		if got[i] != want[i] {
			tb.Errorf("expected committed keys %v, got %v", want, got)
			return
		}
	}
}

// AssertCallCount checks the number of PutBatch calls the store received.
func (s *Store) AssertCallCount(tb testing.TB, n int) {
	tb.Helper()

	if got := len(s.Calls()); got != n {
		tb.Errorf("expected %d PutBatch calls, got %d", n, got)
	}
}

// AssertMaxConcurrent checks that no more than n writes ever ran at once.
func (s *Store) AssertMaxConcurrent(tb testing.TB, n int) {
	tb.Helper()

	if got := s.MaxConcurrent(); got > n {
		tb.Errorf("expected at most %d concurrent writes, saw %d", n, got)
	}
}
