//go:build unit

package record_test

import (
	"testing"

	"github.com/hugolhafner/go-bulkload/record"
	"github.com/stretchr/testify/require"
)

func TestRecord_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, record.New([]byte("k"), nil).Validate())
	require.ErrorIs(t, record.New(nil, []byte("v")).Validate(), record.ErrEmptyKey)
	require.ErrorIs(t, record.New([]byte{}, []byte("v")).Validate(), record.ErrEmptyKey)
}

func TestRecord_Copy(t *testing.T) {
	t.Parallel()

	key := []byte("key-123")
	value := []byte("value-123")
	r := record.New(key, value)

	c := r.Copy()
	key[0] = 'X'
	value[0] = 'X'

	require.Equal(t, []byte("key-123"), c.Key)
	require.Equal(t, []byte("value-123"), c.Value)
}

func TestNewBatch_SizeBytes(t *testing.T) {
	t.Parallel()

	b := record.NewBatch(
		3, []record.Record{
			record.New([]byte("k1"), []byte("v1")),
			record.New([]byte("key2"), nil),
		},
	)

	require.Equal(t, uint64(3), b.Sequence)
	require.Equal(t, 2, b.Len())
	require.Equal(t, 8, b.SizeBytes)
}

func TestBatch_Subset(t *testing.T) {
	t.Parallel()

	b := record.NewBatch(
		9, []record.Record{
			record.New([]byte("a"), []byte("1")),
			record.New([]byte("b"), []byte("2")),
			record.New([]byte("c"), []byte("3")),
		},
	)

	sub := b.Subset([]int{2, 0, 7})
	require.Equal(t, uint64(9), sub.Sequence)
	require.Len(t, sub.Records, 2)
	require.Equal(t, []byte("c"), sub.Records[0].Key)
	require.Equal(t, []byte("a"), sub.Records[1].Key)
	require.Equal(t, 4, sub.SizeBytes)
}
