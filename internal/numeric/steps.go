package numeric

import (
	"encoding/binary"
	"fmt"
)

// Sale-step schedules are packed on chain as a sequence of 64-bit big-endian
// chunks: the rate in the high 24 bits, the block span in the low 40 bits.
const (
	stepChunkSize = 8
	rateBits      = 24
	spanBits      = 40
	spanMask      = (uint64(1) << spanBits) - 1

	// StepTotal is the required sum of rate*span over a full schedule:
	// 10,000,000 milli-basis-points-per-block, i.e. 100%.
	StepTotal = 10_000_000
)

// SaleStep is one decoded schedule entry.
type SaleStep struct {
	Rate      uint32 `json:"rate"`
	BlockSpan uint64 `json:"block_span"`
}

// DecodeSaleSteps unpacks a packed schedule. A trailing incomplete chunk is
// ignored, and all-zero chunks (no-op filler) are dropped. It never fails:
// historical payloads with arbitrary totals decode as-is.
func DecodeSaleSteps(data []byte) []SaleStep {
	steps := make([]SaleStep, 0, len(data)/stepChunkSize)
	for len(data) >= stepChunkSize {
		chunk := binary.BigEndian.Uint64(data[:stepChunkSize])
		data = data[stepChunkSize:]

		rate := uint32(chunk >> spanBits)
		span := chunk & spanMask
		if rate == 0 && span == 0 {
			continue
		}
		steps = append(steps, SaleStep{Rate: rate, BlockSpan: span})
	}
	return steps
}

// EncodeSaleSteps packs a schedule into the chain layout.
func EncodeSaleSteps(steps []SaleStep) []byte {
	out := make([]byte, 0, len(steps)*stepChunkSize)
	var buf [stepChunkSize]byte
	for _, s := range steps {
		chunk := uint64(s.Rate)<<spanBits | s.BlockSpan&spanMask
		binary.BigEndian.PutUint64(buf[:], chunk)
		out = append(out, buf[:]...)
	}
	return out
}

// ValidateSaleSteps enforces that rate*span sums to exactly StepTotal. Only
// the fresh-construction path calls this; passive decoding of historical
// data tolerates any totals.
func ValidateSaleSteps(steps []SaleStep) error {
	var total uint64
	for _, s := range steps {
		total += uint64(s.Rate) * s.BlockSpan
	}
	if total != StepTotal {
		return fmt.Errorf("sale steps sum to %d, want %d", total, uint64(StepTotal))
	}
	return nil
}
