// Package chunk plans half-open row ranges for batched aggregation.
package chunk

import "fmt"

// Range is a half-open [Start, End) slice of a row-indexed table.
type Range struct {
	Start int
	End   int
}

// Len returns the number of rows covered by the range.
func (r Range) Len() int { return r.End - r.Start }

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Plan splits totalRows into consecutive, non-overlapping ranges of at most
// size rows each. The union of the ranges covers [0, totalRows) exactly; only
// the final range may be short. Planning is deterministic: the same inputs
// always produce the same ranges, in ascending order.
//
// totalRows == 0 yields an empty plan. size <= 0 is a caller bug and returns
// an error rather than guessing.
func Plan(totalRows, size int) ([]Range, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk: size must be positive, got %d", size)
	}
	if totalRows < 0 {
		return nil, fmt.Errorf("chunk: totalRows must be non-negative, got %d", totalRows)
	}
	if totalRows == 0 {
		return nil, nil
	}

	n := (totalRows + size - 1) / size
	out := make([]Range, 0, n)
	for start := 0; start < totalRows; start += size {
		end := start + size
		if end > totalRows {
			end = totalRows
		}
		out = append(out, Range{Start: start, End: end})
	}
	return out, nil
}
