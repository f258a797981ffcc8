// Package dataset defines the normalized in-memory shapes shared across the
// pipeline: typed source records after coercion, and the tabular result
// structure handed to the analytical store.
//
// Absence is always represented with the database/sql Null* wrappers. Raw
// sentinel strings ("", "null", "None") never survive past normalization.
package dataset

import (
	"database/sql"
	"time"
)

// StatusRecord is one normalized row of the participant status log.
//
// Identifier and amount fields are nullable: the raw corpus mixes empty
// strings, the literal texts "null"/"None", and genuinely malformed values,
// and all of those degrade to the invalid Null state during ingestion.
type StatusRecord struct {
	ParticipantID     sql.NullInt64
	Timestamp         sql.NullTime
	CurrentLocation   string
	CurrentMode       string
	HungerStatus      string
	SleepStatus       string
	ApartmentID       sql.NullInt64
	JobID             sql.NullInt64
	AvailableBalance  sql.NullFloat64
	DailyFoodBudget   sql.NullFloat64
	WeeklyExtraBudget sql.NullFloat64
	FinancialStatus   string
}

// StatusTable is the concatenation of every status log file, in file order.
// Row order is fixed once loading completes; chunk planning addresses rows
// by position, so the slice must not be reordered afterwards.
type StatusTable struct {
	Rows []StatusRecord
}

func (t *StatusTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Slice returns the half-open row range [start, end). The returned slice
// aliases the table; callers must treat it as read-only.
func (t *StatusTable) Slice(start, end int) []StatusRecord {
	return t.Rows[start:end]
}

// CheckinRecord is one normalized row of the check-in journal.
type CheckinRecord struct {
	ParticipantID sql.NullInt64
	Timestamp     sql.NullTime
	VenueID       sql.NullInt64
	VenueType     string
}

// TransactionRecord is one normalized row of the financial journal.
type TransactionRecord struct {
	ParticipantID sql.NullInt64
	Timestamp     sql.NullTime
	Category      string
	Amount        sql.NullFloat64
}

// Job is one job attribute row, keyed by jobId in lookup maps. The hourly
// rate is nullable; wage aggregations skip jobs without one.
type Job struct {
	EmployerID int64
	HourlyRate sql.NullFloat64
}

// Participant carries the demographic attributes used by wage analysis.
// The zero value stands in for an unknown participant: empty education level
// and absent age.
type Participant struct {
	Age            sql.NullInt64
	EducationLevel string
}

// Venue is a unified restaurant/pub attribute row. Cost is the food cost for
// restaurants and the hourly cost for pubs.
type Venue struct {
	ID           int64
	Type         string
	Cost         sql.NullFloat64
	MaxOccupancy sql.NullInt64
	BuildingID   sql.NullInt64
}

// Apartment is one apartment attribute row.
type Apartment struct {
	ID         int64
	RentalCost sql.NullFloat64
}

// Column describes one output column with a backend-neutral type.
// Recognized types: "text", "bigint", "double".
type Column struct {
	Name string
	Type string
}

// Table is a finalized result table ready for bulk load. Row values are
// positional and aligned with Columns; nil marks SQL NULL.
//
// A Table with zero rows is a valid output state ("no data") and is still
// written to the store so downstream consumers see the full schema.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

// MonthOf formats an instant as a calendar month key, e.g. "2022-03".
// All grouping by month across the pipeline goes through this helper so the
// key shape stays consistent between analyses.
func MonthOf(ts time.Time) string {
	return ts.UTC().Format("2006-01")
}

// DayOf formats an instant as a calendar day key, e.g. "2022-03-14".
func DayOf(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}
