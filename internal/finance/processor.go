// Package finance derives participant financial health indicators from the
// status log, the financial journal and the apartment attributes.
package finance

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"cityecon/internal/dataset"
	"cityecon/internal/metrics"
)

// Logger is the minimal logging interface used by the processor.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Processor computes the financial analysis tables.
type Processor struct {
	Log Logger
}

func (p *Processor) logger() Logger {
	if p.Log == nil {
		return nopLogger{}
	}
	return p.Log
}

// Result carries the finalized financial tables.
type Result struct {
	Trajectories dataset.Table
	WageAnalysis dataset.Table
	CostOfLiving dataset.Table
	HousingCosts dataset.Table
}

// Process derives financial_trajectories, wage_analysis, cost_of_living and
// housing_costs.
func (p *Processor) Process(
	ctx context.Context,
	status *dataset.StatusTable,
	journal []dataset.TransactionRecord,
	apartments []dataset.Apartment,
	jobs map[int64]dataset.Job,
	participants map[int64]dataset.Participant,
) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()

	trajectories := p.buildTrajectories(status)
	wages := p.buildWageAnalysis(status, jobs, participants)
	costOfLiving := p.buildCostOfLiving(journal)
	housing := p.buildHousingCosts(status, apartments)

	p.logger().Printf("stage=finance trajectory_rows=%d wage_rows=%d cost_rows=%d housing_rows=%d duration=%s",
		len(trajectories.Rows), len(wages.Rows), len(costOfLiving.Rows), len(housing.Rows),
		time.Since(start).Truncate(time.Millisecond))
	metrics.IncCounter("cityecon.finance.transactions", float64(len(journal)))

	return Result{
		Trajectories: trajectories,
		WageAnalysis: wages,
		CostOfLiving: costOfLiving,
		HousingCosts: housing,
	}, nil
}

// meanAcc accumulates a nullable mean: absent observations contribute
// nothing, and a group with zero present observations finalizes to NULL.
type meanAcc struct {
	Sum   float64
	Count int64
}

func (m *meanAcc) add(v float64) {
	m.Sum += v
	m.Count++
}

func (m meanAcc) value() any {
	if m.Count == 0 {
		return nil
	}
	return m.Sum / float64(m.Count)
}

// buildTrajectories groups status rows by (participant, month) into monthly
// balance and budget snapshots. total_budget is the sum of the two budget
// means and is NULL whenever either side has no observations.
func (p *Processor) buildTrajectories(status *dataset.StatusTable) dataset.Table {
	type key struct {
		Participant int64
		Month       string
	}
	type agg struct {
		Balance     meanAcc
		MinBalance  float64
		MaxBalance  float64
		FoodBudget  meanAcc
		ExtraBudget meanAcc
	}

	groups := make(map[key]*agg)
	for i := range status.Rows {
		r := &status.Rows[i]
		if !r.ParticipantID.Valid || !r.Timestamp.Valid {
			continue
		}
		k := key{Participant: r.ParticipantID.Int64, Month: dataset.MonthOf(r.Timestamp.Time)}
		g := groups[k]
		if g == nil {
			g = &agg{}
			groups[k] = g
		}
		if r.AvailableBalance.Valid {
			b := r.AvailableBalance.Float64
			if g.Balance.Count == 0 || b < g.MinBalance {
				g.MinBalance = b
			}
			if g.Balance.Count == 0 || b > g.MaxBalance {
				g.MaxBalance = b
			}
			g.Balance.add(b)
		}
		if r.DailyFoodBudget.Valid {
			g.FoodBudget.add(r.DailyFoodBudget.Float64)
		}
		if r.WeeklyExtraBudget.Valid {
			g.ExtraBudget.add(r.WeeklyExtraBudget.Float64)
		}
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Participant != keys[j].Participant {
			return keys[i].Participant < keys[j].Participant
		}
		return keys[i].Month < keys[j].Month
	})

	t := dataset.Table{
		Name: "financial_trajectories",
		Columns: []dataset.Column{
			{Name: "participantId", Type: "bigint"},
			{Name: "month", Type: "text"},
			{Name: "avg_balance", Type: "double"},
			{Name: "min_balance", Type: "double"},
			{Name: "max_balance", Type: "double"},
			{Name: "avg_food_budget", Type: "double"},
			{Name: "avg_extra_budget", Type: "double"},
			{Name: "total_budget", Type: "double"},
		},
		Rows: make([][]any, 0, len(keys)),
	}
	for _, k := range keys {
		g := groups[k]

		var minB, maxB any
		if g.Balance.Count > 0 {
			minB = g.MinBalance
			maxB = g.MaxBalance
		}
		var total any
		if g.FoodBudget.Count > 0 && g.ExtraBudget.Count > 0 {
			total = g.FoodBudget.Sum/float64(g.FoodBudget.Count) + g.ExtraBudget.Sum/float64(g.ExtraBudget.Count)
		}

		t.Rows = append(t.Rows, []any{
			k.Participant,
			k.Month,
			g.Balance.value(),
			minB,
			maxB,
			g.FoodBudget.value(),
			g.ExtraBudget.value(),
			total,
		})
	}
	return t
}

// rateDist is a weighted hourly-rate distribution: rate to observation
// count. Rates are per-job constants, so bucketing by value keeps the
// distribution small regardless of row count.
type rateDist map[float64]int64

// stats returns the observation-weighted mean, median, min and max, all nil
// for an empty distribution. The median averages the two middle observations
// for an even count.
func (d rateDist) stats() (mean, median, minRate, maxRate any) {
	rates := make([]float64, 0, len(d))
	var n int64
	for r, c := range d {
		rates = append(rates, r)
		n += c
	}
	if n == 0 {
		return nil, nil, nil, nil
	}
	sort.Float64s(rates)

	var sum float64
	for r, c := range d {
		sum += r * float64(c)
	}

	lo, hi := (n-1)/2, n/2
	var loVal, hiVal float64
	var seen int64
	loFound := false
	for _, r := range rates {
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

	return sum / float64(n), (loVal + hiVal) / 2, rates[0], rates[len(rates)-1]
}

// buildWageAnalysis groups employed status observations by month and
// demographic bucket (education level, age). Participants without known
// demographics fall into the bucket with an empty education level and NULL
// age; jobs without a known hourly rate count toward employed_count but not
// toward the wage statistics.
func (p *Processor) buildWageAnalysis(
	status *dataset.StatusTable,
	jobs map[int64]dataset.Job,
	participants map[int64]dataset.Participant,
) dataset.Table {
	type key struct {
		Month     string
		Education string
		Age       sql.NullInt64
	}
	type agg struct {
		Employed map[int64]struct{}
		Rates    rateDist
	}

	groups := make(map[key]*agg)
	for i := range status.Rows {
		r := &status.Rows[i]
		if !r.ParticipantID.Valid || !r.Timestamp.Valid || !r.JobID.Valid {
			continue
		}
		job, ok := jobs[r.JobID.Int64]
		if !ok {
			continue
		}
		demo := participants[r.ParticipantID.Int64]
		k := key{
			Month:     dataset.MonthOf(r.Timestamp.Time),
			Education: demo.EducationLevel,
			Age:       demo.Age,
		}
		g := groups[k]
		if g == nil {
			g = &agg{Employed: make(map[int64]struct{}), Rates: make(rateDist)}
			groups[k] = g
		}
		g.Employed[r.ParticipantID.Int64] = struct{}{}
		if job.HourlyRate.Valid {
			g.Rates[job.HourlyRate.Float64]++
		}
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.Education != b.Education {
			return a.Education < b.Education
		}
		if a.Age.Valid != b.Age.Valid {
			return !a.Age.Valid // NULL age sorts first
		}
		return a.Age.Int64 < b.Age.Int64
	})

	t := dataset.Table{
		Name: "wage_analysis",
		Columns: []dataset.Column{
			{Name: "month", Type: "text"},
			{Name: "educationLevel", Type: "text"},
			{Name: "age", Type: "bigint"},
			{Name: "avg_hourly_rate", Type: "double"},
			{Name: "median_hourly_rate", Type: "double"},
			{Name: "min_hourly_rate", Type: "double"},
			{Name: "max_hourly_rate", Type: "double"},
			{Name: "employed_count", Type: "bigint"},
		},
		Rows: make([][]any, 0, len(keys)),
	}
	for _, k := range keys {
		g := groups[k]
		mean, median, lo, hi := g.Rates.stats()

		var age any
		if k.Age.Valid {
			age = k.Age.Int64
		}
		t.Rows = append(t.Rows, []any{
			k.Month,
			k.Education,
			age,
			mean,
			median,
			lo,
			hi,
			int64(len(g.Employed)),
		})
	}
	return t
}

// buildCostOfLiving groups journal expenses by (month, category).
// Expenses are the negative-amount journal entries, sign-flipped to positive
// before aggregation. Income entries contribute nothing.
func (p *Processor) buildCostOfLiving(journal []dataset.TransactionRecord) dataset.Table {
	type key struct {
		Month    string
		Category string
	}
	type agg struct {
		Expense      meanAcc
		Participants map[int64]struct{}
	}

	groups := make(map[key]*agg)
	for i := range journal {
		r := &journal[i]
		if !r.Timestamp.Valid || !r.Amount.Valid || r.Amount.Float64 >= 0 {
			continue
		}
		k := key{Month: dataset.MonthOf(r.Timestamp.Time), Category: r.Category}
		g := groups[k]
		if g == nil {
			g = &agg{Participants: make(map[int64]struct{})}
			groups[k] = g
		}
		g.Expense.add(-r.Amount.Float64)
		if r.ParticipantID.Valid {
			g.Participants[r.ParticipantID.Int64] = struct{}{}
		}
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Month != keys[j].Month {
			return keys[i].Month < keys[j].Month
		}
		return keys[i].Category < keys[j].Category
	})

	t := dataset.Table{
		Name: "cost_of_living",
		Columns: []dataset.Column{
			{Name: "month", Type: "text"},
			{Name: "category", Type: "text"},
			{Name: "total_expenses", Type: "double"},
			{Name: "avg_expense", Type: "double"},
			{Name: "participants_with_expense", Type: "bigint"},
		},
		Rows: make([][]any, 0, len(keys)),
	}
	for _, k := range keys {
		g := groups[k]
		t.Rows = append(t.Rows, []any{
			k.Month,
			k.Category,
			g.Expense.Sum,
			g.Expense.value(),
			int64(len(g.Participants)),
		})
	}
	return t
}

// buildHousingCosts groups housed status rows (valid apartmentId) by month.
// Rent joins through the apartment attributes; rows whose apartment has no
// known rent still count toward housed_participants.
func (p *Processor) buildHousingCosts(status *dataset.StatusTable, apartments []dataset.Apartment) dataset.Table {
	rentByID := make(map[int64]float64, len(apartments))
	for _, a := range apartments {
		if a.RentalCost.Valid {
			rentByID[a.ID] = a.RentalCost.Float64
		}
	}

	type agg struct {
		Rent         meanAcc
		Participants map[int64]struct{}
	}

	groups := make(map[string]*agg)
	for i := range status.Rows {
		r := &status.Rows[i]
		if !r.Timestamp.Valid || !r.ApartmentID.Valid {
			continue
		}
		month := dataset.MonthOf(r.Timestamp.Time)
		g := groups[month]
		if g == nil {
			g = &agg{Participants: make(map[int64]struct{})}
			groups[month] = g
		}
		if rent, ok := rentByID[r.ApartmentID.Int64]; ok {
			g.Rent.add(rent)
		}
		if r.ParticipantID.Valid {
			g.Participants[r.ParticipantID.Int64] = struct{}{}
		}
	}

	months := make([]string, 0, len(groups))
	for m := range groups {
		months = append(months, m)
	}
	sort.Strings(months)

	t := dataset.Table{
		Name: "housing_costs",
		Columns: []dataset.Column{
			{Name: "month", Type: "text"},
			{Name: "avg_rent", Type: "double"},
			{Name: "housed_participants", Type: "bigint"},
		},
		Rows: make([][]any, 0, len(months)),
	}
	for _, m := range months {
		g := groups[m]
		t.Rows = append(t.Rows, []any{
			m,
			g.Rent.value(),
			int64(len(g.Participants)),
		})
	}
	return t
}
