package importer

import "io"

// DefaultBatchSize is the number of rows grouped into one unit of work when
// the caller does not configure a size.
const DefaultBatchSize = 10000

// Batch is a bounded, ordered group of parsed records processed as one
// transactional unit.
type Batch struct {
	// Index is the 0-based sequence number of the batch within the job.
	Index int

	// StartRow is the file row number of the first record in the batch.
	StartRow int

	Records []Record
}

// BatchReader consumes a RowIter and yields fixed-size batches. Only one
// batch is held in memory at a time, which is what keeps the pipeline's
// memory bounded for arbitrarily large files.
type BatchReader struct {
	rows     *RowIter
	size     int
	index    int
	consumed int // rows yielded across all previous batches
	done     bool
}

// NewBatchReader wraps rows. A size <= 0 uses DefaultBatchSize.
func NewBatchReader(rows *RowIter, size int) *BatchReader {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &BatchReader{rows: rows, size: size}
}

// Next returns the next batch in file order, io.EOF after the final batch.
// The final batch may be shorter than the configured size; an empty trailing
// batch is never yielded.
func (b *BatchReader) Next() (Batch, error) {
	if b.done {
		return Batch{}, io.EOF
	}

	batch := Batch{
		Index:    b.index,
		StartRow: b.consumed + 2, // 1-based rows, header is row 1
		Records:  make([]Record, 0, b.size),
	}

	for len(batch.Records) < b.size {
		rec, err := b.rows.Next()
		if err == io.EOF {
			b.done = true
			break
		}
		if err != nil {
			return Batch{}, err
		}
		batch.Records = append(batch.Records, rec)
	}

	b.consumed += len(batch.Records)
	b.index++

	if len(batch.Records) == 0 {
		return Batch{}, io.EOF
	}
	return batch, nil
}
