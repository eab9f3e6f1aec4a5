//go:build unit

package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hugolhafner/go-bulkload"
	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/spill"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(strings.NewReader(stdin), &stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeCSV(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := run(t, "", "version")
	require.NoError(t, err)
	require.Equal(t, bulkload.Version+"\n", out)
}

func TestLoadAndVerify_Bolt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	db := filepath.Join(dir, "kv.db")
	input := writeCSV(t, dir, "key,value\nk1,v1\nk2,v2\nk3,v3\n")

	out, err := run(
		t, "",
		"load", input,
		"--bolt.path", db,
		"--batch.max-count", "2",
		"--log.level", "error",
	)
	require.NoError(t, err)
	require.Contains(t, out, "committed: 3")
	require.Contains(t, out, "batches:   2 (0 failed)")

	out, err = run(t, "", "verify", "--bolt.path", db, "--expect", "3", "--dump", "--log.level", "error")
	require.NoError(t, err)
	require.Equal(t, "k1\tv1\nk2\tv2\nk3\tv3\nkeys: 3\n", out)

	_, err = run(t, "", "verify", "--bolt.path", db, "--expect", "4", "--log.level", "error")
	require.ErrorContains(t, err, "expected 4 keys, found 3")
}

func TestLoad_Stdin(t *testing.T) {
	t.Parallel()

	out, err := run(
		t, "a\tb\nc\td\n",
		"load", "-",
		"--store", "log",
		"--input.header=false",
		"--input.separator", "\t",
		"--log.level", "error",
	)
	require.NoError(t, err)
	require.Contains(t, out, "committed: 2")
}

func TestLoad_FailedRecordsAreSpilled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	spillPath := filepath.Join(dir, "failed.spill")
	input := writeCSV(t, dir, "key,value\nk1,v1\n,orphan\n")

	out, err := run(
		t, "",
		"load", input,
		"--store", "log",
		"--spill", spillPath,
		"--log.level", "error",
	)
	require.ErrorContains(t, err, "1 record(s) failed")
	require.Contains(t, out, "committed: 1")

	r, err := spill.Open(spillPath)
	require.NoError(t, err)
	defer r.Close()

	entry, err := r.ReadEntry()
	require.NoError(t, err)
	require.Equal(t, []byte("orphan"), entry.Record.Value)
	require.Contains(t, entry.Error, record.ErrEmptyKey.Error())

	_, err = r.ReadEntry()
	require.True(t, errors.Is(err, io.EOF))
}

func TestReplay(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	spillPath := filepath.Join(dir, "failed.spill")
	db := filepath.Join(dir, "kv.db")

	w, err := spill.Create(spillPath)
	require.NoError(t, err)
	require.NoError(t, w.Write(spill.Entry{Record: record.New([]byte("k1"), []byte("v1")), Error: "timeout"}))
	require.NoError(t, w.Write(spill.Entry{Record: record.New([]byte("k2"), []byte("v2")), Error: "timeout"}))
	require.NoError(t, w.Close())

	out, err := run(t, "", "replay", spillPath, "--bolt.path", db, "--log.level", "error")
	require.NoError(t, err)
	require.Contains(t, out, "committed: 2")

	_, err = run(t, "", "replay", spillPath, "--spill", spillPath, "--store", "log")
	require.Error(t, err)
}

func TestLoad_MalformedInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := writeCSV(t, dir, "key,value\nk1,v1\nonlykey\n")

	_, err := run(t, "", "load", input, "--store", "log", "--log.level", "error")
	require.Error(t, err)

	out, err := run(t, "", "load", input, "--store", "log", "--input.malformed", "skip", "--log.level", "error")
	require.NoError(t, err)
	require.Contains(t, out, "skipped:   1")
}

func TestLoad_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := run(t, "", "load", "--store", "redis")
	require.ErrorContains(t, err, "unknown store")
}

func TestNewZapLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zl, err := newZapLogger("warn", "json", &buf)
	require.NoError(t, err)

	zl.Info("hidden")
	zl.Warn("shown")
	require.NoError(t, zl.Sync())

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = newZapLogger("loud", "json", &buf)
	require.Error(t, err)
}
