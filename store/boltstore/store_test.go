//go:build unit

package boltstore_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/store"
	"github.com/hugolhafner/go-bulkload/store/boltstore"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T, opts ...boltstore.Option) (*boltstore.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "load.db")
	s, err := boltstore.Open(path, opts...)
	require.NoError(t, err)
	return s, path
}

func TestPutBatch_AndScanSorted(t *testing.T) {
	t.Parallel()

	s, _ := open(t, boltstore.WithNoSync(true))
	defer s.Close()

	ctx := context.Background()
	require.NoError(
		t, s.PutBatch(
			ctx, []record.Record{
				record.New([]byte("c"), []byte("3")),
				record.New([]byte("a"), []byte("1")),
			},
		),
	)
	require.NoError(t, s.PutBatch(ctx, []record.Record{record.New([]byte("b"), nil)}))
	require.NoError(t, s.Ping(ctx))

	var keys []string
	require.NoError(
		t, s.Scan(
			ctx, func(r record.Record) error {
				keys = append(keys, string(r.Key))
				return nil
			},
		),
	)
	require.Equal(t, []string{"a", "b", "c"}, keys)

	n, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	v, ok, err := s.Get([]byte("c"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("3"), v)

	_, ok, err = s.Get([]byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutBatch_Overwrites(t *testing.T) {
	t.Parallel()

	s, _ := open(t)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.PutBatch(ctx, []record.Record{record.New([]byte("k"), []byte("old"))}))
	require.NoError(t, s.PutBatch(ctx, []record.Record{record.New([]byte("k"), []byte("new"))}))

	v, _, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)
}

func TestPutBatch_AtomicOnBadRecord(t *testing.T) {
	t.Parallel()

	s, _ := open(t)
	defer s.Close()

	err := s.PutBatch(
		context.Background(), []record.Record{
			record.New([]byte("good"), []byte("1")),
			record.New(nil, []byte("2")),
		},
	)
	require.Error(t, err)
	require.True(t, store.IsPermanent(err))

	n, err := s.Count()
	require.NoError(t, err)
	require.Zero(t, n, "failed transaction leaves nothing behind")
}

func TestPutBatch_KeyTooLarge(t *testing.T) {
	t.Parallel()

	s, _ := open(t)
	defer s.Close()

	err := s.PutBatch(context.Background(), []record.Record{record.New(bytes.Repeat([]byte("k"), 40000), nil)})
	require.True(t, store.IsPermanent(err))
}

func TestPutBatch_CancelledContext(t *testing.T) {
	t.Parallel()

	s, _ := open(t)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.PutBatch(ctx, []record.Record{record.New([]byte("k"), nil)})
	require.True(t, store.IsTransient(err))
}

func TestPutBatch_AfterClose(t *testing.T) {
	t.Parallel()

	s, _ := open(t)
	require.NoError(t, s.Close())

	err := s.PutBatch(context.Background(), []record.Record{record.New([]byte("k"), nil)})
	require.True(t, store.IsPermanent(err))
}

func TestReadOnly(t *testing.T) {
	t.Parallel()

	s, path := open(t)
	require.NoError(t, s.PutBatch(context.Background(), []record.Record{record.New([]byte("k"), []byte("v"))}))
	require.NoError(t, s.Close())

	ro, err := boltstore.Open(path, boltstore.WithReadOnly(true))
	require.NoError(t, err)
	defer ro.Close()

	n, err := ro.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	err = ro.PutBatch(context.Background(), []record.Record{record.New([]byte("x"), nil)})
	require.True(t, store.IsPermanent(err))
}

func TestScan_StopsOnError(t *testing.T) {
	t.Parallel()

	s, _ := open(t)
	defer s.Close()

	require.NoError(
		t, s.PutBatch(
			context.Background(), []record.Record{
				record.New([]byte("a"), nil),
				record.New([]byte("b"), nil),
			},
		),
	)

	stop := errors.New("stop")
	calls := 0
	err := s.Scan(
		context.Background(), func(record.Record) error {
			calls++
			return stop
		},
	)
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}

func TestOpen_Validation(t *testing.T) {
	t.Parallel()

	_, err := boltstore.Open(filepath.Join(t.TempDir(), "x.db"), boltstore.WithBucket(""))
	require.Error(t, err)
}
