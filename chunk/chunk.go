// Package chunk partitions a transfer into ordered, size-bounded ranges.
package chunk

import (
	"errors"
	"fmt"
)

// ErrInvalidChunkSize is returned when the requested chunk size is not positive.
var ErrInvalidChunkSize = errors.New("invalid chunk size")

// Range is a half-open span [Offset, Offset+Length) of items (bytes or rows).
type Range struct {
	Offset int64
	Length int64
}

// Last is the inclusive index of the final item in the range.
func (r Range) Last() int64 {
	return r.Offset + r.Length - 1
}

// ContentRange renders the byte-range header value for this range.
func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Offset, r.Last(), total)
}

// Plan is a gap-free, non-overlapping cover of [0, total) in increasing offset order.
type Plan []Range

// New partitions total items into chunks of perChunk items; the last chunk holds the remainder.
func New(total, perChunk int64) (Plan, error) {
	if perChunk < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, perChunk)
	}
	if total < 0 {
		return nil, fmt.Errorf("negative total size: %d", total)
	}

	count := total / perChunk
	if total%perChunk != 0 {
		count++
	}

	plan := make(Plan, 0, count)
	for offset := int64(0); offset < total; offset += perChunk {
		length := perChunk
		if remaining := total - offset; remaining < length {
			length = remaining
		}
		plan = append(plan, Range{Offset: offset, Length: length})
	}
	return plan, nil
}

// Total is the number of items the plan covers.
func (p Plan) Total() int64 {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1].Offset + p[len(p)-1].Length
}
