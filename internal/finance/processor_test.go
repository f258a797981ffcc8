package finance

import (
	"context"
	"database/sql"
	"reflect"
	"testing"
	"time"

	"cityecon/internal/dataset"
)

func ts(t *testing.T, s string) sql.NullTime {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

func i64(v int64) sql.NullInt64     { return sql.NullInt64{Int64: v, Valid: true} }
func f64(v float64) sql.NullFloat64 { return sql.NullFloat64{Float64: v, Valid: true} }

func TestTrajectories(t *testing.T) {
	status := &dataset.StatusTable{Rows: []dataset.StatusRecord{
		{
			ParticipantID: i64(1), Timestamp: ts(t, "2022-03-01T08:00:00Z"),
			AvailableBalance: f64(100), DailyFoodBudget: f64(10), WeeklyExtraBudget: f64(20),
		},
		{
			ParticipantID: i64(1), Timestamp: ts(t, "2022-03-15T08:00:00Z"),
			AvailableBalance: f64(200), DailyFoodBudget: f64(14),
		},
		// No balance observations at all this month.
		{ParticipantID: i64(2), Timestamp: ts(t, "2022-03-02T08:00:00Z")},
	}}

	res, err := (&Processor{}).Process(context.Background(), status, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := [][]any{
		{int64(1), "2022-03", 150.0, 100.0, 200.0, 12.0, 20.0, 32.0},
		{int64(2), "2022-03", nil, nil, nil, nil, nil, nil},
	}
	if !reflect.DeepEqual(res.Trajectories.Rows, want) {
		t.Errorf("trajectories\ngot:  %v\nwant: %v", res.Trajectories.Rows, want)
	}
}

func TestWageAnalysis(t *testing.T) {
	jobs := map[int64]dataset.Job{
		10: {EmployerID: 7, HourlyRate: f64(15)},
		11: {EmployerID: 7, HourlyRate: f64(25)},
		20: {EmployerID: 8}, // rate unknown
	}
	participants := map[int64]dataset.Participant{
		1: {Age: i64(30), EducationLevel: "Bachelors"},
		2: {Age: i64(30), EducationLevel: "Bachelors"},
		// Participant 3 has no demographics on file.
	}
	status := &dataset.StatusTable{Rows: []dataset.StatusRecord{
		{ParticipantID: i64(1), Timestamp: ts(t, "2022-01-05T09:00:00Z"), JobID: i64(10)},
		{ParticipantID: i64(1), Timestamp: ts(t, "2022-01-15T09:00:00Z"), JobID: i64(10)},
		{ParticipantID: i64(2), Timestamp: ts(t, "2022-01-20T09:00:00Z"), JobID: i64(11)},
		{ParticipantID: i64(3), Timestamp: ts(t, "2022-01-21T09:00:00Z"), JobID: i64(10)},
		// A job with no known rate still counts toward employment.
		{ParticipantID: i64(1), Timestamp: ts(t, "2022-02-05T09:00:00Z"), JobID: i64(20)},
		// Skipped: unemployed row and unmapped job.
		{ParticipantID: i64(1), Timestamp: ts(t, "2022-01-25T09:00:00Z")},
		{ParticipantID: i64(1), Timestamp: ts(t, "2022-01-26T09:00:00Z"), JobID: i64(999)},
	}}

	res, err := (&Processor{}).Process(context.Background(), status, nil, nil, jobs, participants)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Wage stats weight by observation: participant 1 contributes two
	// January readings at 15.0. The unknown-demographics bucket sorts first
	// within its month (empty education, NULL age).
	want := [][]any{
		{"2022-01", "", nil, 15.0, 15.0, 15.0, 15.0, int64(1)},
		{"2022-01", "Bachelors", int64(30), 55.0 / 3.0, 15.0, 15.0, 25.0, int64(2)},
		{"2022-02", "Bachelors", int64(30), nil, nil, nil, nil, int64(1)},
	}
	if !reflect.DeepEqual(res.WageAnalysis.Rows, want) {
		t.Errorf("wage_analysis\ngot:  %v\nwant: %v", res.WageAnalysis.Rows, want)
	}
}

func TestCostOfLiving(t *testing.T) {
	journal := []dataset.TransactionRecord{
		{ParticipantID: i64(1), Timestamp: ts(t, "2022-03-01T08:00:00Z"), Category: "Food", Amount: f64(-20)},
		{ParticipantID: i64(2), Timestamp: ts(t, "2022-03-02T08:00:00Z"), Category: "Food", Amount: f64(-40)},
		{ParticipantID: i64(1), Timestamp: ts(t, "2022-03-03T08:00:00Z"), Category: "Shelter", Amount: f64(-500)},
		// Income entries contribute nothing.
		{ParticipantID: i64(1), Timestamp: ts(t, "2022-03-04T08:00:00Z"), Category: "Wage", Amount: f64(1000)},
	}

	res, err := (&Processor{}).Process(context.Background(), &dataset.StatusTable{}, journal, nil, nil, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := [][]any{
		{"2022-03", "Food", 60.0, 30.0, int64(2)},
		{"2022-03", "Shelter", 500.0, 500.0, int64(1)},
	}
	if !reflect.DeepEqual(res.CostOfLiving.Rows, want) {
		t.Errorf("cost_of_living\ngot:  %v\nwant: %v", res.CostOfLiving.Rows, want)
	}
}

func TestHousingCosts(t *testing.T) {
	apartments := []dataset.Apartment{
		{ID: 10, RentalCost: f64(800)},
		{ID: 11, RentalCost: f64(1200)},
		{ID: 12}, // rent unknown
	}
	status := &dataset.StatusTable{Rows: []dataset.StatusRecord{
		{ParticipantID: i64(1), Timestamp: ts(t, "2022-03-01T08:00:00Z"), ApartmentID: i64(10)},
		{ParticipantID: i64(2), Timestamp: ts(t, "2022-03-02T08:00:00Z"), ApartmentID: i64(11)},
		{ParticipantID: i64(3), Timestamp: ts(t, "2022-03-03T08:00:00Z"), ApartmentID: i64(12)},
		{ParticipantID: i64(4), Timestamp: ts(t, "2022-03-04T08:00:00Z")}, // unhoused
	}}

	res, err := (&Processor{}).Process(context.Background(), status, nil, apartments, nil, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := [][]any{
		{"2022-03", 1000.0, int64(3)},
	}
	if !reflect.DeepEqual(res.HousingCosts.Rows, want) {
		t.Errorf("housing_costs\ngot:  %v\nwant: %v", res.HousingCosts.Rows, want)
	}
}

func TestEmptyInputs(t *testing.T) {
	res, err := (&Processor{}).Process(context.Background(), &dataset.StatusTable{}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for _, tbl := range []dataset.Table{res.Trajectories, res.WageAnalysis, res.CostOfLiving, res.HousingCosts} {
		if tbl.Name == "" || len(tbl.Columns) == 0 {
			t.Errorf("table %q missing schema", tbl.Name)
		}
		if len(tbl.Rows) != 0 {
			t.Errorf("table %q rows = %d, want 0", tbl.Name, len(tbl.Rows))
		}
	}
}
