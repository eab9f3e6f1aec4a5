//go:build unit

package errorhandler_test

import (
	"errors"
	"testing"

	"github.com/hugolhafner/go-bulkload/errorhandler"
	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/store"
	"github.com/stretchr/testify/require"
)

func testBatch() *record.Batch {
	return record.NewBatch(
		4, []record.Record{
			record.New([]byte("k1"), []byte("v1")),
			record.New([]byte("k2"), []byte("v2")),
		},
	)
}

func TestNewErrorContext(t *testing.T) {
	b := testBatch()
	ec := errorhandler.NewErrorContext(b, nil)

	require.Same(t, b, ec.Batch)
	require.Nil(t, ec.Error)
	require.Equal(t, 1, ec.Attempt)
	require.Equal(t, store.ClassUnknown, ec.Class)
}

func TestNewErrorContext_Classifies(t *testing.T) {
	ec := errorhandler.NewErrorContext(testBatch(), store.Transient(errors.New("node unavailable")))
	require.Equal(t, store.ClassTransient, ec.Class)

	ec = ec.WithError(store.Permanent(errors.New("quota exceeded")))
	require.Equal(t, store.ClassPermanent, ec.Class)
}

func TestErrorContext_IncrementAttempt(t *testing.T) {
	ec := errorhandler.NewErrorContext(testBatch(), nil)
	require.Equal(t, 1, ec.Attempt)

	ec = ec.IncrementAttempt()
	require.Equal(t, 2, ec.Attempt)

	ec = ec.IncrementAttempt()
	require.Equal(t, 3, ec.Attempt)
}

func TestErrorContext_WithAttempt(t *testing.T) {
	ec := errorhandler.NewErrorContext(testBatch(), nil)
	ec = ec.WithAttempt(5)
	require.Equal(t, 5, ec.Attempt)
}

func TestErrorContext_WithBatch(t *testing.T) {
	ec := errorhandler.NewErrorContext(testBatch(), nil)
	sub := ec.Batch.Subset([]int{1})

	ec = ec.WithBatch(sub)
	require.Same(t, sub, ec.Batch)
	require.Equal(t, uint64(4), ec.Batch.Sequence)
}
