package record

import (
	"errors"
)

var ErrEmptyKey = errors.New("record key is empty")

// Record is a single key/value pair headed for the store. Keys must be
// non-empty; values may be empty.
type Record struct {
	Key   []byte
	Value []byte
}

func New(key, value []byte) Record {
	return Record{Key: key, Value: value}
}

// Size is the number of payload bytes the record contributes to a batch.
func (r Record) Size() int {
	return len(r.Key) + len(r.Value)
}

func (r Record) Validate() error {
	if len(r.Key) == 0 {
		return ErrEmptyKey
	}
	return nil
}

func (r Record) Copy() Record {
	keyCopy := make([]byte, len(r.Key))
	copy(keyCopy, r.Key)

	valueCopy := make([]byte, len(r.Value))
	copy(valueCopy, r.Value)

	return Record{
		Key:   keyCopy,
		Value: valueCopy,
	}
}
