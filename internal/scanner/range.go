package scanner

import "fmt"

// BlockRange is an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Size is the number of blocks the range covers.
func (r BlockRange) Size() uint64 {
	return r.To - r.From + 1
}

// SplitRange splits a block range into batches of size batchSize.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0)
	start := from
	for start <= to {
		remaining := to - start + 1
		var end uint64
		if remaining <= batchSize {
			end = to
		} else {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}

// subdivide splits a range the provider rejected as too large. A suggested
// size from the provider wins when it actually shrinks the range; otherwise
// the range is halved. minChunk is the floor: a range already at or below it
// cannot be subdivided and the rejection propagates.
func subdivide(r BlockRange, suggested, minChunk uint64) ([]BlockRange, error) {
	if minChunk == 0 {
		minChunk = 1
	}
	size := r.Size()
	if size <= minChunk {
		return nil, fmt.Errorf("range [%d, %d] is already at the minimum chunk size %d", r.From, r.To, minChunk)
	}

	chunk := size / 2
	if suggested > 0 && suggested < size {
		chunk = suggested
	}
	if chunk < minChunk {
		chunk = minChunk
	}
	return SplitRange(r.From, r.To, chunk)
}
