// Package spill persists records that failed to load so a later run can
// replay them. A spill file is a sequence of varint length prefixed
// protobuf messages:
//
//	message Entry {
//	  bytes  key      = 1;
//	  bytes  value    = 2;
//	  string error    = 3;
//	  uint64 sequence = 4;
//	  uint64 attempts = 5;
//	}
package spill

import (
	"errors"
	"fmt"

	"github.com/hugolhafner/go-bulkload/record"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldKey      protowire.Number = 1
	fieldValue    protowire.Number = 2
	fieldError    protowire.Number = 3
	fieldSequence protowire.Number = 4
	fieldAttempts protowire.Number = 5
)

// MaxEntrySize bounds a single encoded entry when reading.
const MaxEntrySize = 1 << 30

var ErrEntryTooLarge = errors.New("spill: entry exceeds maximum size")

// Entry is one failed record and why it failed.
type Entry struct {
	Record   record.Record
	Error    string
	Sequence uint64
	Attempts int
}

func appendEntry(b []byte, e Entry) []byte {
	b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Record.Key)
	if len(e.Record.Value) > 0 {
		b = protowire.AppendTag(b, fieldValue, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Record.Value)
	}
	if e.Error != "" {
		b = protowire.AppendTag(b, fieldError, protowire.BytesType)
		b = protowire.AppendString(b, e.Error)
	}
	if e.Sequence != 0 {
		b = protowire.AppendTag(b, fieldSequence, protowire.VarintType)
		b = protowire.AppendVarint(b, e.Sequence)
	}
	if e.Attempts != 0 {
		b = protowire.AppendTag(b, fieldAttempts, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Attempts))
	}
	return b
}

func parseEntry(b []byte) (Entry, error) {
	var e Entry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Entry{}, fmt.Errorf("spill: tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Entry{}, fmt.Errorf("spill: key: %w", protowire.ParseError(n))
			}
			e.Record.Key = append([]byte(nil), v...)
			b = b[n:]

		case num == fieldValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Entry{}, fmt.Errorf("spill: value: %w", protowire.ParseError(n))
			}
			e.Record.Value = append([]byte(nil), v...)
			b = b[n:]

		case num == fieldError && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Entry{}, fmt.Errorf("spill: error: %w", protowire.ParseError(n))
			}
			e.Error = v
			b = b[n:]

		case num == fieldSequence && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Entry{}, fmt.Errorf("spill: sequence: %w", protowire.ParseError(n))
			}
			e.Sequence = v
			b = b[n:]

		case num == fieldAttempts && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Entry{}, fmt.Errorf("spill: attempts: %w", protowire.ParseError(n))
			}
			e.Attempts = int(v)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Entry{}, fmt.Errorf("spill: field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return e, nil
}
