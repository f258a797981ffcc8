// Package transformer provides streaming, allocation-conscious row handling
// and the typed field coercion used during normalization.
// The pooled Row type travels parser → normalizer and keeps heap churn low
// when scanning tens of millions of CSV records.
package transformer

import "sync"

// Row is a pooled container holding one positional raw record. Values are
// untyped text (string) or nil for an empty field.
//
// Ownership contract:
//   - Exactly one goroutine owns a Row at a time.
//   - A Row may be passed downstream via channels (ownership transfer).
//   - The final consumer must call Free() AFTER it is fully done with the Row
//     and anything referencing r.V.
//   - On cancellation paths use Drop() instead: downstream drain-safe stages
//     may still be reading the Row while the parser unwinds, and re-pooling
//     it would let the parser overwrite it concurrently.
type Row struct {
	V    []any
	Line int // 1-based logical record number, if known
}

var rowPool sync.Pool

// GetRow returns a pooled Row with length colCount and all elements zeroed.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		r.Line = 0
		return r
	}
	return &Row{
		V: make([]any, colCount),
	}
}

// Free returns the Row to the pool.
// Call this ONLY when no other goroutine can observe r or r.V.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row WITHOUT returning it to the pool.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}
