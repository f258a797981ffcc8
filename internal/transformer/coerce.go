package transformer

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

// InstantLayout is the exact timestamp format of the activity logs.
// Anything that does not match degrades to an absent timestamp.
const InstantLayout = "2006-01-02T15:04:05Z"

// IsAbsent reports whether a raw field value is one of the absence sentinels:
// true null (nil), the empty string, or the literal texts "null"/"None".
//
// Sentinel membership is tested BEFORE any numeric parse so that "None" is
// classified as absent rather than as a parse failure. Two distinct raw
// conditions (field not applicable vs. field failed to record) collapse into
// the same absent state here; the corpus does not carry enough information to
// tell them apart.
func IsAbsent(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	switch strings.TrimSpace(s) {
	case "", "null", "None":
		return true
	}
	return false
}

// CoerceInt64 parses an integer-like field. Absent sentinels and parse
// failures both yield the invalid state; coercion never returns an error.
func CoerceInt64(v any) sql.NullInt64 {
	if IsAbsent(v) {
		return sql.NullInt64{}
	}
	switch t := v.(type) {
	case int64:
		return sql.NullInt64{Int64: t, Valid: true}
	case int:
		return sql.NullInt64{Int64: int64(t), Valid: true}
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			// Some exports write integer ids as "1234.0".
			if f, ferr := strconv.ParseFloat(strings.TrimSpace(t), 64); ferr == nil && f == float64(int64(f)) {
				return sql.NullInt64{Int64: int64(f), Valid: true}
			}
			return sql.NullInt64{}
		}
		return sql.NullInt64{Int64: n, Valid: true}
	}
	return sql.NullInt64{}
}

// CoerceFloat64 parses a decimal field, degrading to absent on failure.
func CoerceFloat64(v any) sql.NullFloat64 {
	if IsAbsent(v) {
		return sql.NullFloat64{}
	}
	switch t := v.(type) {
	case float64:
		return sql.NullFloat64{Float64: t, Valid: true}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return sql.NullFloat64{}
		}
		return sql.NullFloat64{Float64: f, Valid: true}
	}
	return sql.NullFloat64{}
}

// CoerceInstant parses an ISO-8601 UTC timestamp in InstantLayout form.
func CoerceInstant(v any) sql.NullTime {
	if IsAbsent(v) {
		return sql.NullTime{}
	}
	s, ok := v.(string)
	if !ok {
		return sql.NullTime{}
	}
	ts, err := time.Parse(InstantLayout, strings.TrimSpace(s))
	if err != nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: ts.UTC(), Valid: true}
}

// CoerceString returns the trimmed text of a categorical field, with absence
// collapsing to the empty string.
func CoerceString(v any) string {
	if IsAbsent(v) {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
