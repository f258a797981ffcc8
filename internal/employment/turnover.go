// Package employment derives workforce indicators from the status log:
// employer turnover, participant stability, job transition flows and
// per-employer health metrics.
//
// Turnover and stability run as two-phase aggregations: the processor slices
// the log into bounded row chunks, computes an algebraic partial per chunk,
// and folds the partials into a combiner whose final pass produces the result
// tables. Partials carry only mergeable state (sums, counts, min/max
// instants, value sets), never pre-computed ratios, so the final tables are
// identical whatever the chunk size. Flows and health depend on the order of
// each participant's observations and run as whole-table passes instead.
package employment

import (
	"sort"
	"sync"
	"time"

	"cityecon/internal/dataset"
)

// TenureKey identifies one employment spell: a participant holding a
// specific job at a specific employer.
type TenureKey struct {
	Participant int64
	Job         int64
	Employer    int64
}

// Span is the observed extent of a spell: the earliest and latest status
// timestamps that show the participant in the job.
type Span struct {
	First time.Time
	Last  time.Time
}

// TurnoverPartial is one chunk's contribution to the turnover analysis.
type TurnoverPartial map[TenureKey]Span

// TurnoverPartialFor aggregates one chunk of status rows.
//
// Rows without a usable participant, timestamp or job are skipped; rows whose
// job has no employer mapping are skipped too (turnover attributes spells to
// employers, so an unattributable spell contributes nothing).
func TurnoverPartialFor(rows []dataset.StatusRecord, jobToEmployer map[int64]int64) TurnoverPartial {
	out := make(TurnoverPartial)
	for i := range rows {
		r := &rows[i]
		if !r.ParticipantID.Valid || !r.Timestamp.Valid || !r.JobID.Valid {
			continue
		}
		employer, ok := jobToEmployer[r.JobID.Int64]
		if !ok {
			continue
		}
		k := TenureKey{Participant: r.ParticipantID.Int64, Job: r.JobID.Int64, Employer: employer}
		ts := r.Timestamp.Time

		s, seen := out[k]
		if !seen {
			out[k] = Span{First: ts, Last: ts}
			continue
		}
		if ts.Before(s.First) {
			s.First = ts
		}
		if ts.After(s.Last) {
			s.Last = ts
		}
		out[k] = s
	}
	return out
}

// TurnoverCombiner folds chunk partials and finalizes the turnover table.
// Fold is safe for concurrent use; Finalize must only run after all folds.
type TurnoverCombiner struct {
	mu    sync.Mutex
	spans map[TenureKey]Span
}

func NewTurnoverCombiner() *TurnoverCombiner {
	return &TurnoverCombiner{spans: make(map[TenureKey]Span)}
}

// Fold merges a chunk partial into the combiner. Spells split across chunk
// boundaries re-merge here: the spell keeps the earliest First and latest
// Last over all chunks before any month or employer grouping happens.
// Grouping per-chunk fragments directly would count a boundary-crossing
// spell as two hires.
func (c *TurnoverCombiner) Fold(p TurnoverPartial) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, s := range p {
		cur, seen := c.spans[k]
		if !seen {
			c.spans[k] = s
			continue
		}
		if s.First.Before(cur.First) {
			cur.First = s.First
		}
		if s.Last.After(cur.Last) {
			cur.Last = s.Last
		}
		c.spans[k] = cur
	}
}

// shortTenureDays is the tenure ceiling, in whole days, under which a spell
// counts as short-lived for the turnover rate.
const shortTenureDays = 30

// Finalize computes the employment_turnover_rates table: one row per
// (hire month, employer), ordered by month then employer.
//
// Tenure is whole days between the spell's first and last observation.
// Spells with negative tenure are anomalies: they are dropped and counted in
// the second return value. For every output row new_hires >= 1 and
// 0 <= turnover_rate <= 1 hold by construction.
func (c *TurnoverCombiner) Finalize() (dataset.Table, int64) {
	type groupKey struct {
		Month    string
		Employer int64
	}
	type group struct {
		NewHires  int64
		TenureSum int64
		Short     int64
	}

	groups := make(map[groupKey]*group)
	var anomalies int64

	for k, s := range c.spans {
		tenureDays := int64(s.Last.Sub(s.First) / (24 * time.Hour))
		if tenureDays < 0 {
			anomalies++
			continue
		}
		gk := groupKey{Month: dataset.MonthOf(s.First), Employer: k.Employer}
		g := groups[gk]
		if g == nil {
			g = &group{}
			groups[gk] = g
		}
		g.NewHires++
		g.TenureSum += tenureDays
		if tenureDays <= shortTenureDays {
			g.Short++
		}
	}

	keys := make([]groupKey, 0, len(groups))
	for gk := range groups {
		keys = append(keys, gk)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Month != keys[j].Month {
			return keys[i].Month < keys[j].Month
		}
		return keys[i].Employer < keys[j].Employer
	})

	t := dataset.Table{
		Name: "employment_turnover_rates",
		Columns: []dataset.Column{
			{Name: "month", Type: "text"},
			{Name: "employerId", Type: "bigint"},
			{Name: "new_hires", Type: "bigint"},
			{Name: "avg_tenure_days", Type: "double"},
			{Name: "turnover_rate", Type: "double"},
		},
		Rows: make([][]any, 0, len(keys)),
	}
	for _, gk := range keys {
		g := groups[gk]
		t.Rows = append(t.Rows, []any{
			gk.Month,
			gk.Employer,
			g.NewHires,
			float64(g.TenureSum) / float64(g.NewHires),
			float64(g.Short) / float64(g.NewHires),
		})
	}
	return t, anomalies
}
