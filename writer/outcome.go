package writer

import (
	"github.com/hugolhafner/go-bulkload/record"
)

type Status int

const (
	StatusCommitted Status = iota
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCommitted:
		return "Committed"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Outcome is the terminal result of writing one batch. A failed outcome may
// still carry acknowledged records when the store accepted part of the batch
// before giving up; Unacked lists the records that were never committed.
type Outcome struct {
	Batch    *record.Batch
	Status   Status
	Attempts int
	Err      error

	// Acked is the number of records the store acknowledged and AckedBytes
	// their combined size.
	Acked      int
	AckedBytes int
	Unacked    []record.Record
}

func (o Outcome) Committed() bool {
	return o.Status == StatusCommitted
}
