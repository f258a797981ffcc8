// Package pipeline wires loading, processing and storage into one run.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"cityecon/internal/business"
	"cityecon/internal/config"
	"cityecon/internal/dataset"
	"cityecon/internal/employment"
	"cityecon/internal/finance"
	"cityecon/internal/ingest"
	"cityecon/internal/metrics"
	"cityecon/internal/storage"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Runner executes the full ETL run. The NewRepository seam exists so tests
// can substitute an in-memory store without touching a registered backend.
type Runner struct {
	Log Logger

	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
}

// NewDefaultRunner returns a Runner wired to the registered storage backends.
func NewDefaultRunner(log Logger) *Runner {
	return &Runner{
		Log:           log,
		NewRepository: storage.New,
	}
}

func (r *Runner) logger() Logger {
	if r.Log == nil {
		return nopLogger{}
	}
	return r.Log
}

// Run loads the corpus, derives every result table and replaces them in the
// configured store. The DSN passes through os.ExpandEnv so secrets can live
// in the environment instead of the config file.
//
// Errors:
//   - A missing required source (status logs, Jobs.csv) aborts the run.
//   - Optional sources degrade to empty result tables.
//   - The first storage error aborts the run; tables already replaced stay
//     replaced (each ReplaceTable commits independently).
func (r *Runner) Run(ctx context.Context, cfg config.Pipeline) error {
	runStart := time.Now()
	log := r.logger()

	loader := &ingest.Loader{
		Root:          cfg.Source.Root,
		StatusLogGlob: cfg.Source.StatusLogGlob,
		Parser:        cfg.Parser.Options,
		ChannelBuffer: cfg.Runtime.ChannelBuffer,
		Log:           log,
	}

	status, err := loader.LoadStatusLogs(ctx)
	if err != nil {
		return fmt.Errorf("load status logs: %w", err)
	}
	jobs, err := loader.LoadJobs(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	participants, err := loader.LoadParticipants(ctx)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	venues, err := loader.LoadVenues(ctx)
	if err != nil {
		return fmt.Errorf("load venues: %w", err)
	}
	apartments, err := loader.LoadApartments(ctx)
	if err != nil {
		return fmt.Errorf("load apartments: %w", err)
	}
	checkins, err := loader.LoadCheckins(ctx)
	if err != nil {
		return fmt.Errorf("load checkins: %w", err)
	}
	journal, err := loader.LoadFinancialJournal(ctx)
	if err != nil {
		return fmt.Errorf("load financial journal: %w", err)
	}

	employmentProc := &employment.Processor{
		ChunkSize: cfg.Runtime.ChunkSize,
		Workers:   cfg.Runtime.ChunkWorkers,
		Log:       log,
	}
	employmentRes, err := employmentProc.Process(ctx, status, jobs)
	if err != nil {
		return fmt.Errorf("employment analysis: %w", err)
	}

	businessProc := &business.Processor{Log: log}
	businessRes, err := businessProc.Process(ctx, checkins, venues)
	if err != nil {
		return fmt.Errorf("business analysis: %w", err)
	}

	financeProc := &finance.Processor{Log: log}
	financeRes, err := financeProc.Process(ctx, status, journal, apartments, jobs, participants)
	if err != nil {
		return fmt.Errorf("finance analysis: %w", err)
	}

	repo, err := r.NewRepository(ctx, storage.Config{
		Kind:            cfg.Storage.Kind,
		DSN:             os.ExpandEnv(cfg.Storage.DSN),
		InsertBatchSize: cfg.Runtime.InsertBatchSize,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer repo.Close()

	tables := []dataset.Table{
		employmentRes.Turnover,
		employmentRes.Stability,
		employmentRes.JobFlows,
		employmentRes.EmployerHealth,
		businessRes.Trends,
		businessRes.Performance,
		businessRes.CustomerPatterns,
		financeRes.Trajectories,
		financeRes.WageAnalysis,
		financeRes.CostOfLiving,
		financeRes.HousingCosts,
	}
	for _, t := range tables {
		start := time.Now()
		n, err := repo.ReplaceTable(ctx, t)
		if err != nil {
			return fmt.Errorf("replace table %s: %w", t.Name, err)
		}
		log.Printf("stage=store table=%s rows=%d duration=%s",
			t.Name, n, time.Since(start).Truncate(time.Millisecond))
		metrics.IncCounter("cityecon.store.rows", float64(n), "table:"+t.Name)
	}

	log.Printf("stage=run status=ok tables=%d duration=%s",
		len(tables), time.Since(runStart).Truncate(time.Millisecond))
	metrics.ObserveDuration("cityecon.run_duration", time.Since(runStart))
	return nil
}
