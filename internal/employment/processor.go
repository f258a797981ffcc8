package employment

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"cityecon/internal/chunk"
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

// Processor runs the chunked employment analyses over a loaded status table.
type Processor struct {
	// ChunkSize bounds rows aggregated per chunk. Zero means 5,000,000.
	ChunkSize int

	// Workers is the number of concurrent chunk workers. Zero or one means
	// strictly sequential processing in planner order. Result tables are
	// identical either way; only wall time changes.
	Workers int

	Log Logger
}

func (p *Processor) logger() Logger {
	if p.Log == nil {
		return nopLogger{}
	}
	return p.Log
}

// Result carries the finalized employment tables plus processing counters.
type Result struct {
	Turnover       dataset.Table
	Stability      dataset.Table
	JobFlows       dataset.Table
	EmployerHealth dataset.Table

	// Anomalies is the number of spells dropped for negative tenure.
	Anomalies int64
}

// Process derives the employment tables from the status log.
//
// Turnover and stability run chunked: the table is sliced into [start,end)
// chunks, each chunk is reduced to algebraic partials, and the partials fold
// into shared combiners. Per-chunk state lives only inside the chunk's stack
// frame, so peak memory for that phase is bounded by the chunk size (times
// Workers) regardless of total row count. Job flows and employer health are
// order-sensitive whole-table passes and run after the chunked phase.
//
// Edge cases:
//   - An empty table yields every table with full schema and zero rows.
//
// Errors:
//   - Only context cancellation aborts Process; data problems degrade to
//     skipped rows, never errors.
func (p *Processor) Process(ctx context.Context, table *dataset.StatusTable, jobs map[int64]dataset.Job) (Result, error) {
	jobToEmployer := make(map[int64]int64, len(jobs))
	for id, j := range jobs {
		jobToEmployer[id] = j.EmployerID
	}

	size := p.ChunkSize
	if size <= 0 {
		size = 5_000_000
	}
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > runtime.NumCPU() {
		workers = runtime.NumCPU()
	}

	plan, err := chunk.Plan(table.Len(), size)
	if err != nil {
		return Result{}, err
	}
	p.logger().Printf("stage=employment rows=%d chunks=%d workers=%d", table.Len(), len(plan), workers)

	turnover := NewTurnoverCombiner()
	stability := NewStabilityCombiner()
	var rowsSeen atomic.Int64

	processChunk := func(r chunk.Range) {
		start := time.Now()
		rows := table.Slice(r.Start, r.End)

		tp := TurnoverPartialFor(rows, jobToEmployer)
		sp := StabilityPartialFor(rows)
		turnover.Fold(tp)
		stability.Fold(sp)

		rowsSeen.Add(int64(r.Len()))
		p.logger().Printf("stage=employment_chunk range=%s rows=%d duration=%s",
			r, r.Len(), time.Since(start).Truncate(time.Millisecond))
		metrics.IncCounter("cityecon.employment.chunks", 1)
		metrics.ObserveDuration("cityecon.employment.chunk_duration", time.Since(start))
	}

	if workers == 1 {
		for _, r := range plan {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			processChunk(r)
		}
	} else {
		ranges := make(chan chunk.Range)
		var wg sync.WaitGroup
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func() {
				defer wg.Done()
				for r := range ranges {
					processChunk(r)
				}
			}()
		}

	feed:
		for _, r := range plan {
			select {
			case ranges <- r:
			case <-ctx.Done():
				break feed
			}
		}
		close(ranges)
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
	}

	turnoverTable, anomalies := turnover.Finalize()
	stabilityTable := stability.Finalize()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	flowStart := time.Now()
	flowsTable := BuildJobFlows(table, jobs)
	healthTable := BuildEmployerHealth(table, jobs)
	p.logger().Printf("stage=employment_flows flow_rows=%d health_rows=%d duration=%s",
		len(flowsTable.Rows), len(healthTable.Rows), time.Since(flowStart).Truncate(time.Millisecond))

	if anomalies > 0 {
		p.logger().Printf("warn stage=employment negative_tenure_spells=%d", anomalies)
		metrics.IncCounter("cityecon.employment.negative_tenure_spells", float64(anomalies))
	}
	p.logger().Printf("stage=employment rows=%d turnover_rows=%d stability_rows=%d",
		rowsSeen.Load(), len(turnoverTable.Rows), len(stabilityTable.Rows))

	return Result{
		Turnover:       turnoverTable,
		Stability:      stabilityTable,
		JobFlows:       flowsTable,
		EmployerHealth: healthTable,
		Anomalies:      anomalies,
	}, nil
}
