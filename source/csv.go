package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hugolhafner/go-bulkload/codec"
	"github.com/hugolhafner/go-bulkload/logger"
	"github.com/hugolhafner/go-bulkload/record"
)

type MalformedPolicy int

const (
	// MalformedReject stops the load at the first malformed row.
	MalformedReject MalformedPolicy = iota
	// MalformedSkip drops malformed rows and counts them.
	MalformedSkip
)

func (p MalformedPolicy) String() string {
	switch p {
	case MalformedReject:
		return "reject"
	case MalformedSkip:
		return "skip"
	default:
		return "unknown"
	}
}

func ParseMalformedPolicy(s string) (MalformedPolicy, error) {
	switch s {
	case "", "reject":
		return MalformedReject, nil
	case "skip":
		return MalformedSkip, nil
	default:
		return 0, fmt.Errorf("source: unknown malformed policy %q", s)
	}
}

type CSVConfig struct {
	Header      bool
	Separator   rune
	KeyColumn   int
	ValueColumn int
	KeyCodec    codec.Codec
	ValueCodec  codec.Codec
	Malformed   MalformedPolicy
	Logger      logger.Logger
}

type CSVOption func(*CSVConfig)

func defaultCSVConfig() CSVConfig {
	return CSVConfig{
		Header:      true,
		Separator:   ',',
		KeyColumn:   0,
		ValueColumn: 1,
		KeyCodec:    codec.Raw(),
		ValueCodec:  codec.Raw(),
		Malformed:   MalformedReject,
		Logger:      logger.NewNoopLogger(),
	}
}

// WithHeader controls whether the first row is skipped as a header
func WithHeader(header bool) CSVOption {
	return func(c *CSVConfig) {
		c.Header = header
	}
}

func WithSeparator(sep rune) CSVOption {
	return func(c *CSVConfig) {
		c.Separator = sep
	}
}

// WithColumns selects the zero based key and value columns
func WithColumns(key, value int) CSVOption {
	return func(c *CSVConfig) {
		c.KeyColumn = key
		c.ValueColumn = value
	}
}

func WithCodecs(key, value codec.Codec) CSVOption {
	return func(c *CSVConfig) {
		if key != nil {
			c.KeyCodec = key
		}
		if value != nil {
			c.ValueCodec = value
		}
	}
}

func WithMalformedPolicy(p MalformedPolicy) CSVOption {
	return func(c *CSVConfig) {
		c.Malformed = p
	}
}

func WithCSVLogger(l logger.Logger) CSVOption {
	return func(c *CSVConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

func (c CSVConfig) Validate() error {
	if c.KeyColumn < 0 || c.ValueColumn < 0 {
		return fmt.Errorf("source: columns must not be negative, got key=%d value=%d", c.KeyColumn, c.ValueColumn)
	}
	if c.KeyColumn == c.ValueColumn {
		return fmt.Errorf("source: key and value column are both %d", c.KeyColumn)
	}
	if c.Separator == 0 || c.Separator == '"' || c.Separator == '\r' || c.Separator == '\n' {
		return fmt.Errorf("source: invalid separator %q", c.Separator)
	}
	return nil
}

// CSVSource reads key/value pairs from delimited text, one row per record.
type CSVSource struct {
	c       CSVConfig
	r       *csv.Reader
	closer  io.Closer
	logger  logger.Logger
	started bool
	skipped int
	minCols int
}

var (
	_ Source  = (*CSVSource)(nil)
	_ Skipper = (*CSVSource)(nil)
)

func NewCSVSource(r io.Reader, opts ...CSVOption) (*CSVSource, error) {
	cfg := defaultCSVConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cr := csv.NewReader(r)
	cr.Comma = cfg.Separator
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	s := &CSVSource{
		c:       cfg,
		r:       cr,
		logger:  cfg.Logger.With("component", "csv-source"),
		minCols: max(cfg.KeyColumn, cfg.ValueColumn) + 1,
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}

	return s, nil
}

// OpenCSV opens path and reads it as CSV. Close releases the file.
func OpenCSV(path string, opts ...CSVOption) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}

	s, err := NewCSVSource(f, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *CSVSource) Next(ctx context.Context) (record.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return record.Record{}, err
		}

		rec, err := s.next()
		if err == nil {
			return rec, nil
		}

		me, ok := AsMalformedError(err)
		if !ok || s.c.Malformed == MalformedReject {
			return record.Record{}, err
		}

		s.skipped++
		s.logger.Warn("Skipping malformed row", "line", me.Line, "reason", me.Reason, "error", me.Err)
	}
}

func (s *CSVSource) next() (record.Record, error) {
	if !s.started {
		s.started = true
		if s.c.Header {
			if _, err := s.r.Read(); err != nil {
				if errors.Is(err, io.EOF) {
					return record.Record{}, io.EOF
				}
				if pe, ok := asParseError(err); ok {
					return record.Record{}, &MalformedError{Line: pe.StartLine, Reason: "unparseable header", Err: pe.Err}
				}
				return record.Record{}, err
			}
		}
	}

	fields, err := s.r.Read()
	if err != nil {
		if pe, ok := asParseError(err); ok {
			return record.Record{}, &MalformedError{Line: pe.StartLine, Reason: "unparseable row", Err: pe.Err}
		}
		return record.Record{}, err
	}

	line, _ := s.r.FieldPos(0)

	if len(fields) < s.minCols {
		return record.Record{}, &MalformedError{
			Line:   line,
			Reason: fmt.Sprintf("expected at least %d fields, got %d", s.minCols, len(fields)),
		}
	}

	key, err := s.c.KeyCodec.Encode(fields[s.c.KeyColumn])
	if err != nil {
		return record.Record{}, &MalformedError{Line: line, Reason: "bad key", Err: err}
	}

	value, err := s.c.ValueCodec.Encode(fields[s.c.ValueColumn])
	if err != nil {
		return record.Record{}, &MalformedError{Line: line, Reason: "bad value", Err: err}
	}

	return record.New(key, value), nil
}

// Skipped is the number of malformed rows dropped so far.
func (s *CSVSource) Skipped() int {
	return s.skipped
}

func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func asParseError(err error) (*csv.ParseError, bool) {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
