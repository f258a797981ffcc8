package employment

import (
	"sort"
	"time"

	"cityecon/internal/dataset"
)

// flowEvent is one employed observation of a participant, reduced to the
// attributes transition detection needs.
type flowEvent struct {
	ts       time.Time
	employer int64
}

// BuildJobFlows derives the job_flows table: employer-to-employer transition
// counts by calendar month.
//
// A transition is two consecutive employed observations of the same
// participant, in timestamp order, at different employers. Unemployed rows
// between them do not break the chain; the flow connects the last employer
// before the gap to the first one after it. The transition is attributed to
// the month of the arriving observation.
//
// Transition detection needs each participant's full observation sequence, so
// this runs as a whole-table pass rather than a chunked aggregation.
func BuildJobFlows(table *dataset.StatusTable, jobs map[int64]dataset.Job) dataset.Table {
	events := make(map[int64][]flowEvent)
	for i := range table.Rows {
		r := &table.Rows[i]
		if !r.ParticipantID.Valid || !r.Timestamp.Valid || !r.JobID.Valid {
			continue
		}
		job, ok := jobs[r.JobID.Int64]
		if !ok {
			continue
		}
		pid := r.ParticipantID.Int64
		events[pid] = append(events[pid], flowEvent{ts: r.Timestamp.Time, employer: job.EmployerID})
	}

	type flowKey struct {
		Month string
		From  int64
		To    int64
	}
	type flowAgg struct {
		Count        int64
		Participants map[int64]struct{}
	}

	groups := make(map[flowKey]*flowAgg)
	for pid, seq := range events {
		sort.SliceStable(seq, func(i, j int) bool { return seq[i].ts.Before(seq[j].ts) })

		for i := 1; i < len(seq); i++ {
			if seq[i].employer == seq[i-1].employer {
				continue
			}
			k := flowKey{
				Month: dataset.MonthOf(seq[i].ts),
				From:  seq[i-1].employer,
				To:    seq[i].employer,
			}
			g := groups[k]
			if g == nil {
				g = &flowAgg{Participants: make(map[int64]struct{})}
				groups[k] = g
			}
			g.Count++
			g.Participants[pid] = struct{}{}
		}
	}

	keys := make([]flowKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})

	t := dataset.Table{
		Name: "job_flows",
		Columns: []dataset.Column{
			{Name: "month", Type: "text"},
			{Name: "from_employerId", Type: "bigint"},
			{Name: "to_employerId", Type: "bigint"},
			{Name: "transition_count", Type: "bigint"},
			{Name: "unique_participants", Type: "bigint"},
		},
		Rows: make([][]any, 0, len(keys)),
	}
	for _, k := range keys {
		g := groups[k]
		t.Rows = append(t.Rows, []any{
			k.Month,
			k.From,
			k.To,
			g.Count,
			int64(len(g.Participants)),
		})
	}
	return t
}
