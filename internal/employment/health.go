package employment

import (
	"math"
	"sort"

	"cityecon/internal/dataset"
)

// wageDist is a weighted wage distribution: hourly rate to the number of
// status observations at that rate. Rates are per-job constants, so grouping
// by value keeps the distribution small however many rows feed it.
type wageDist map[float64]int64

func (d wageDist) total() int64 {
	var n int64
	for _, c := range d {
		n += c
	}
	return n
}

func (d wageDist) sorted() []float64 {
	rates := make([]float64, 0, len(d))
	for r := range d {
		rates = append(rates, r)
	}
	sort.Float64s(rates)
	return rates
}

// mean returns the observation-weighted mean, or nil for an empty
// distribution.
func (d wageDist) mean() any {
	n := d.total()
	if n == 0 {
		return nil
	}
	var sum float64
	for r, c := range d {
		sum += r * float64(c)
	}
	return sum / float64(n)
}

// median returns the observation-weighted median: the middle observation, or
// the mean of the two middle observations for an even count. Nil when empty.
func (d wageDist) median() any {
	n := d.total()
	if n == 0 {
		return nil
	}
	lo, hi := (n-1)/2, n/2

	var loVal, hiVal float64
	var seen int64
	loFound := false
	for _, r := range d.sorted() {
		seen += d[r]
		if !loFound && seen > lo {
			loVal = r
			loFound = true
		}
		if seen > hi {
			hiVal = r
			break
		}
	}
	return (loVal + hiVal) / 2
}

// std returns the observation-weighted sample standard deviation, or nil when
// fewer than two observations exist.
func (d wageDist) std() any {
	n := d.total()
	if n < 2 {
		return nil
	}
	var sum, sumSq float64
	for r, c := range d {
		sum += r * float64(c)
		sumSq += r * r * float64(c)
	}
	mean := sum / float64(n)
	variance := (sumSq - float64(n)*mean*mean) / float64(n-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// BuildEmployerHealth derives the employer_health table: monthly workforce
// and wage statistics per employer, with month-over-month growth rates.
//
// Every employed observation counts toward the workforce numbers; wage
// statistics are weighted by observation and skip jobs without a known hourly
// rate. Growth rates compare an employer's consecutive observed months and
// are NULL for the employer's first month, or when the previous month's
// average wage is absent or zero.
func BuildEmployerHealth(table *dataset.StatusTable, jobs map[int64]dataset.Job) dataset.Table {
	type healthKey struct {
		Month    string
		Employer int64
	}
	type healthAgg struct {
		Participants map[int64]struct{}
		Positions    map[int64]struct{}
		Wages        wageDist
	}

	groups := make(map[healthKey]*healthAgg)
	for i := range table.Rows {
		r := &table.Rows[i]
		if !r.ParticipantID.Valid || !r.Timestamp.Valid || !r.JobID.Valid {
			continue
		}
		job, ok := jobs[r.JobID.Int64]
		if !ok {
			continue
		}
		k := healthKey{Month: dataset.MonthOf(r.Timestamp.Time), Employer: job.EmployerID}
		g := groups[k]
		if g == nil {
			g = &healthAgg{
				Participants: make(map[int64]struct{}),
				Positions:    make(map[int64]struct{}),
				Wages:        make(wageDist),
			}
			groups[k] = g
		}
		g.Participants[r.ParticipantID.Int64] = struct{}{}
		g.Positions[r.JobID.Int64] = struct{}{}
		if job.HourlyRate.Valid {
			g.Wages[job.HourlyRate.Float64]++
		}
	}

	// Growth rates need employer-major month order; the final table is
	// month-major like the other monthly outputs.
	keys := make([]healthKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Employer != keys[j].Employer {
			return keys[i].Employer < keys[j].Employer
		}
		return keys[i].Month < keys[j].Month
	})

	type healthRow struct {
		key            healthKey
		employees      int64
		avgWage        any
		medianWage     any
		wageStd        any
		positions      int64
		employeeGrowth any
		wageGrowth     any
	}

	rows := make([]healthRow, 0, len(keys))
	var prev *healthRow
	for _, k := range keys {
		g := groups[k]
		row := healthRow{
			key:        k,
			employees:  int64(len(g.Participants)),
			avgWage:    g.Wages.mean(),
			medianWage: g.Wages.median(),
			wageStd:    g.Wages.std(),
			positions:  int64(len(g.Positions)),
		}
		if prev != nil && prev.key.Employer == k.Employer {
			row.employeeGrowth = float64(row.employees-prev.employees) / float64(prev.employees)
			if cur, ok := row.avgWage.(float64); ok {
				if pw, ok := prev.avgWage.(float64); ok && pw != 0 {
					row.wageGrowth = (cur - pw) / pw
				}
			}
		}
		rows = append(rows, row)
		prev = &rows[len(rows)-1]
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].key.Month != rows[j].key.Month {
			return rows[i].key.Month < rows[j].key.Month
		}
		return rows[i].key.Employer < rows[j].key.Employer
	})

	t := dataset.Table{
		Name: "employer_health",
		Columns: []dataset.Column{
			{Name: "month", Type: "text"},
			{Name: "employerId", Type: "bigint"},
			{Name: "active_employees", Type: "bigint"},
			{Name: "avg_wage", Type: "double"},
			{Name: "median_wage", Type: "double"},
			{Name: "wage_std", Type: "double"},
			{Name: "active_positions", Type: "bigint"},
			{Name: "employee_growth_rate", Type: "double"},
			{Name: "wage_growth_rate", Type: "double"},
		},
		Rows: make([][]any, 0, len(rows)),
	}
	for i := range rows {
		r := &rows[i]
		t.Rows = append(t.Rows, []any{
			r.key.Month,
			r.key.Employer,
			r.employees,
			r.avgWage,
			r.medianWage,
			r.wageStd,
			r.positions,
			r.employeeGrowth,
			r.wageGrowth,
		})
	}
	return t
}
