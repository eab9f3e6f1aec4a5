package spill

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hugolhafner/go-bulkload/record"
	"github.com/hugolhafner/go-bulkload/source"
)

// Reader replays a spill stream. It doubles as a source so failed records
// can be loaded again.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	buf    []byte
}

var _ source.Source = (*Reader)(nil)

func NewReader(r io.Reader) *Reader {
	sr := &Reader{r: bufio.NewReader(r)}
	if c, ok := r.(io.Closer); ok {
		sr.closer = c
	}
	return sr
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("spill: open %s: %w", path, err)
	}
	return NewReader(f), nil
}

// ReadEntry returns the next entry, or io.EOF at a clean end of stream. A
// stream cut short inside an entry yields io.ErrUnexpectedEOF.
func (r *Reader) ReadEntry() (Entry, error) {
	size, err := binary.ReadUvarint(r.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("spill: length: %w", err)
	}
	if size > MaxEntrySize {
		return Entry{}, ErrEntryTooLarge
	}

	if cap(r.buf) < int(size) {
		r.buf = make([]byte, size)
	}
	r.buf = r.buf[:size]

	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Entry{}, fmt.Errorf("spill: entry: %w", err)
	}

	return parseEntry(r.buf)
}

func (r *Reader) Next(ctx context.Context) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}
	e, err := r.ReadEntry()
	if err != nil {
		return record.Record{}, err
	}
	return e.Record, nil
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
