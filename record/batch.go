package record

// Batch is an ordered group of records submitted to the store as one write.
// Sequence numbers are assigned at creation and strictly increase in
// submission order.
type Batch struct {
	Sequence  uint64
	Records   []Record
	SizeBytes int
}

func NewBatch(sequence uint64, records []Record) *Batch {
	size := 0
	for _, r := range records {
		size += r.Size()
	}

	return &Batch{
		Sequence:  sequence,
		Records:   records,
		SizeBytes: size,
	}
}

func (b *Batch) Len() int {
	return len(b.Records)
}

// Subset returns a batch with the same sequence holding only the records at
// the given indexes, in the order given. Out of range indexes are ignored.
func (b *Batch) Subset(indexes []int) *Batch {
	records := make([]Record, 0, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= len(b.Records) {
			continue
		}
		records = append(records, b.Records[i])
	}
	return NewBatch(b.Sequence, records)
}
