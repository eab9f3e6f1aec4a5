package spill

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"google.golang.org/protobuf/encoding/protowire"
)

// Writer appends entries to a spill stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	body   []byte
	buf    []byte
	count  int
}

func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		sw.closer = c
	}
	return sw
}

// Create truncates or creates the file at path.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("spill: create %s: %w", path, err)
	}
	return NewWriter(f), nil
}

func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.body = appendEntry(w.body[:0], e)
	if len(w.body) > MaxEntrySize {
		return ErrEntryTooLarge
	}

	w.buf = protowire.AppendVarint(w.buf[:0], uint64(len(w.body)))
	w.buf = append(w.buf, w.body...)

	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("spill: write: %w", err)
	}
	w.count++
	return nil
}

// Count is the number of entries written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Flush()
}

// Close flushes buffered entries and closes the underlying writer if it is
// an io.Closer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
