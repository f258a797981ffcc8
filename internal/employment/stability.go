package employment

import (
	"sort"
	"sync"

	"cityecon/internal/dataset"
)

// StabilityKey identifies one participant-month cell of the stability
// analysis.
type StabilityKey struct {
	Participant int64
	Month       string
}

// stabilityAgg is the mergeable per-cell state. The employment rate is kept
// as employed/observation counts rather than a per-chunk ratio: averaging
// per-chunk ratios would weight a 10-row fragment the same as a million-row
// one. Distinct jobs are carried as the actual id set so chunk-boundary
// splits of the same job never double count.
type stabilityAgg struct {
	Obs          int64
	Employed     int64
	BalanceSum   float64
	BalanceCount int64
	Jobs         map[int64]struct{}
}

func (a *stabilityAgg) merge(b *stabilityAgg) {
	a.Obs += b.Obs
	a.Employed += b.Employed
	a.BalanceSum += b.BalanceSum
	a.BalanceCount += b.BalanceCount
	for j := range b.Jobs {
		if a.Jobs == nil {
			a.Jobs = make(map[int64]struct{})
		}
		a.Jobs[j] = struct{}{}
	}
}

// StabilityPartial is one chunk's contribution to the stability analysis.
type StabilityPartial map[StabilityKey]*stabilityAgg

// StabilityPartialFor aggregates one chunk of status rows.
// Rows without a usable participant or timestamp are skipped: they cannot be
// attributed to any participant-month cell.
func StabilityPartialFor(rows []dataset.StatusRecord) StabilityPartial {
	out := make(StabilityPartial)
	for i := range rows {
		r := &rows[i]
		if !r.ParticipantID.Valid || !r.Timestamp.Valid {
			continue
		}
		k := StabilityKey{Participant: r.ParticipantID.Int64, Month: dataset.MonthOf(r.Timestamp.Time)}
		a := out[k]
		if a == nil {
			a = &stabilityAgg{}
			out[k] = a
		}
		a.Obs++
		if r.JobID.Valid {
			a.Employed++
			if a.Jobs == nil {
				a.Jobs = make(map[int64]struct{})
			}
			a.Jobs[r.JobID.Int64] = struct{}{}
		}
		if r.AvailableBalance.Valid {
			a.BalanceSum += r.AvailableBalance.Float64
			a.BalanceCount++
		}
	}
	return out
}

// StabilityCombiner folds chunk partials and finalizes the stability table.
// Fold is safe for concurrent use; Finalize must only run after all folds.
type StabilityCombiner struct {
	mu    sync.Mutex
	cells map[StabilityKey]*stabilityAgg
}

func NewStabilityCombiner() *StabilityCombiner {
	return &StabilityCombiner{cells: make(map[StabilityKey]*stabilityAgg)}
}

// Fold merges a chunk partial into the combiner.
func (c *StabilityCombiner) Fold(p StabilityPartial) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, a := range p {
		cur := c.cells[k]
		if cur == nil {
			c.cells[k] = a
			continue
		}
		cur.merge(a)
	}
}

// Finalize computes the employment_stability table: one row per
// (participant, month), ordered by participant then month.
//
// A cell whose every balance observation was absent keeps its row with a
// NULL avg_balance; employment_rate and job_changes are still meaningful
// there. stability_score currently equals employment_rate and exists as a
// separate column so the scoring formula can evolve without a schema change.
func (c *StabilityCombiner) Finalize() dataset.Table {
	keys := make([]StabilityKey, 0, len(c.cells))
	for k := range c.cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Participant != keys[j].Participant {
			return keys[i].Participant < keys[j].Participant
		}
		return keys[i].Month < keys[j].Month
	})

	t := dataset.Table{
		Name: "employment_stability",
		Columns: []dataset.Column{
			{Name: "participantId", Type: "bigint"},
			{Name: "month", Type: "text"},
			{Name: "employment_rate", Type: "double"},
			{Name: "job_changes", Type: "bigint"},
			{Name: "avg_balance", Type: "double"},
			{Name: "stability_score", Type: "double"},
		},
		Rows: make([][]any, 0, len(keys)),
	}
	for _, k := range keys {
		a := c.cells[k]
		rate := float64(a.Employed) / float64(a.Obs)

		var avgBalance any
		if a.BalanceCount > 0 {
			avgBalance = a.BalanceSum / float64(a.BalanceCount)
		}

		t.Rows = append(t.Rows, []any{
			k.Participant,
			k.Month,
			rate,
			int64(len(a.Jobs)),
			avgBalance,
			rate,
		})
	}
	return t
}
