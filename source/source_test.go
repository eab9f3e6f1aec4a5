//go:build unit

package source_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hugolhafner/go-bulkload/codec"
	"github.com/hugolhafner/go-bulkload/logger"
	mocklogger "github.com/hugolhafner/go-bulkload/logger/mock"
	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/source"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s source.Source) ([]record.Record, error) {
	t.Helper()
	var out []record.Record
	for {
		r, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
}

func pairs(records []record.Record) [][2]string {
	out := make([][2]string, len(records))
	for i, r := range records {
		out[i] = [2]string{string(r.Key), string(r.Value)}
	}
	return out
}

func TestSliceSource(t *testing.T) {
	t.Parallel()

	s := source.NewSliceSource(
		record.New([]byte("k1"), []byte("v1")),
		record.New([]byte("k2"), nil),
	)

	got, err := drain(t, s)
	require.NoError(t, err)
	require.Equal(t, [][2]string{{"k1", "v1"}, {"k2", ""}}, pairs(got))

	_, err = s.Next(context.Background())
	require.ErrorIs(t, err, io.EOF, "exhausted source stays exhausted")
	require.NoError(t, s.Close())
}

func TestSliceSource_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := source.NewSliceSource(record.New([]byte("k"), nil)).Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCSVSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		opts  []source.CSVOption
		want  [][2]string
	}{
		{
			name:  "header skipped",
			input: "key,value\nk1,v1\nk2,v2\n",
			want:  [][2]string{{"k1", "v1"}, {"k2", "v2"}},
		},
		{
			name:  "no header",
			input: "k1,v1\n",
			opts:  []source.CSVOption{source.WithHeader(false)},
			want:  [][2]string{{"k1", "v1"}},
		},
		{
			name:  "custom separator",
			input: "k\tv\nk1\tv1\n",
			opts:  []source.CSVOption{source.WithSeparator('\t')},
			want:  [][2]string{{"k1", "v1"}},
		},
		{
			name:  "columns swapped",
			input: "v,k\nv1,k1\n",
			opts:  []source.CSVOption{source.WithColumns(1, 0)},
			want:  [][2]string{{"k1", "v1"}},
		},
		{
			name:  "quoted value with separator",
			input: "k,v\nk1,\"a,b\"\n",
			want:  [][2]string{{"k1", "a,b"}},
		},
		{
			name:  "empty value kept",
			input: "k,v\nk1,\n",
			want:  [][2]string{{"k1", ""}},
		},
		{
			name:  "extra columns ignored",
			input: "k,v,x\nk1,v1,x1\n",
			want:  [][2]string{{"k1", "v1"}},
		},
		{
			name:  "header only",
			input: "k,v\n",
			want:  [][2]string{},
		},
		{
			name:  "empty input",
			input: "",
			want:  [][2]string{},
		},
		{
			name:  "hex codecs",
			input: "k,v\n6b31,0x7631\n",
			opts:  []source.CSVOption{source.WithCodecs(codec.Hex(), codec.Hex())},
			want:  [][2]string{{"k1", "v1"}},
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()

				s, err := source.NewCSVSource(strings.NewReader(tt.input), tt.opts...)
				require.NoError(t, err)

				got, err := drain(t, s)
				require.NoError(t, err)
				require.Equal(t, tt.want, pairs(got))
				require.Zero(t, s.Skipped())
			},
		)
	}
}

func TestCSVSource_Validation(t *testing.T) {
	t.Parallel()

	_, err := source.NewCSVSource(strings.NewReader(""), source.WithColumns(1, 1))
	require.Error(t, err)

	_, err = source.NewCSVSource(strings.NewReader(""), source.WithColumns(-1, 1))
	require.Error(t, err)

	_, err = source.NewCSVSource(strings.NewReader(""), source.WithSeparator('"'))
	require.Error(t, err)
}

func TestCSVSource_RejectMalformed(t *testing.T) {
	t.Parallel()

	s, err := source.NewCSVSource(strings.NewReader("k,v\nk1,v1\nonlykey\nk3,v3\n"))
	require.NoError(t, err)

	got, err := drain(t, s)
	require.Len(t, got, 1)

	me, ok := source.AsMalformedError(err)
	require.True(t, ok)
	require.Equal(t, 3, me.Line)
	require.Contains(t, me.Error(), "line 3")
}

func TestCSVSource_SkipMalformed(t *testing.T) {
	t.Parallel()

	l := mocklogger.New()
	s, err := source.NewCSVSource(
		strings.NewReader("k,v\nk1,v1\nonlykey\nk3,zz\nk4,7634\n"),
		source.WithMalformedPolicy(source.MalformedSkip),
		source.WithCodecs(codec.Raw(), codec.Hex()),
		source.WithCSVLogger(l),
	)
	require.NoError(t, err)

	got, err := drain(t, s)
	require.NoError(t, err)
	require.Equal(t, [][2]string{{"k4", "v4"}}, pairs(got), "k1 and k3 have bad hex, onlykey is short")
	require.Equal(t, 3, s.Skipped())
	l.AssertCount(t, logger.WarnLevel, "Skipping malformed row", 3)
}

func TestCSVSource_ParseErrorIsMalformed(t *testing.T) {
	t.Parallel()

	s, err := source.NewCSVSource(strings.NewReader("k,v\nk1,v\"1\n"))
	require.NoError(t, err)

	_, err = drain(t, s)
	_, ok := source.AsMalformedError(err)
	require.True(t, ok)
}

func TestCSVSource_EmptyKeyPassesThrough(t *testing.T) {
	t.Parallel()

	s, err := source.NewCSVSource(strings.NewReader("k,v\n,v1\n"))
	require.NoError(t, err)

	got, err := drain(t, s)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.ErrorIs(t, got[0].Validate(), record.ErrEmptyKey)
}

func TestOpenCSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("key,value\na,1\nb,2\n"), 0o600))

	s, err := source.OpenCSV(path)
	require.NoError(t, err)

	got, err := drain(t, s)
	require.NoError(t, err)
	require.Equal(t, [][2]string{{"a", "1"}, {"b", "2"}}, pairs(got))
	require.NoError(t, s.Close())

	_, err = source.OpenCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}

func TestParseMalformedPolicy(t *testing.T) {
	t.Parallel()

	p, err := source.ParseMalformedPolicy("skip")
	require.NoError(t, err)
	require.Equal(t, source.MalformedSkip, p)
	require.Equal(t, "skip", p.String())

	p, err = source.ParseMalformedPolicy("")
	require.NoError(t, err)
	require.Equal(t, source.MalformedReject, p)

	_, err = source.ParseMalformedPolicy("ignore")
	require.Error(t, err)
}
