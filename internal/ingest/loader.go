// Package ingest loads the raw activity-log corpus from disk into normalized
// in-memory tables.
//
// The corpus layout under the dataset root:
//
//	Datasets/Activity Logs/ParticipantStatusLogs*.csv   (required, many files)
//	Datasets/Attributes/Jobs.csv                        (required)
//	Datasets/Attributes/Participants.csv                (optional)
//	Datasets/Attributes/Restaurants.csv                 (optional)
//	Datasets/Attributes/Pubs.csv                        (optional)
//	Datasets/Attributes/Apartments.csv                  (optional)
//	Datasets/Journals/CheckinJournal.csv                (optional)
//	Datasets/Journals/FinancialJournal.csv              (optional)
//
// Required sources that cannot be found abort the run with a wrapped
// ErrMissingSource. Optional sources degrade to empty tables with a logged
// warning so the analyses that depend on them produce empty results rather
// than killing the whole run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"cityecon/internal/config"
	"cityecon/internal/dataset"
	"cityecon/internal/metrics"
	csvparser "cityecon/internal/parser/csv"
	"cityecon/internal/transformer"
)

// ErrMissingSource marks a required input that could not be located.
// Wrapped errors carry the path or pattern that failed.
var ErrMissingSource = errors.New("required source missing")

// Logger is the minimal logging interface used by the loader.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Loader reads and normalizes the raw corpus.
type Loader struct {
	// Root is the dataset root directory (the parent of "Datasets").
	Root string

	// StatusLogGlob matches status log filenames under Activity Logs.
	// Empty means "ParticipantStatusLogs*.csv".
	StatusLogGlob string

	// Parser carries reader-level CSV options shared by every input file.
	Parser config.Options

	// ChannelBuffer sizes the parser-to-collector row channel.
	// Zero means 256.
	ChannelBuffer int

	Log Logger
}

func (l *Loader) logger() Logger {
	if l.Log == nil {
		return nopLogger{}
	}
	return l.Log
}

func (l *Loader) bufSize() int {
	if l.ChannelBuffer <= 0 {
		return 256
	}
	return l.ChannelBuffer
}

// statusColumns is the canonical column order of the status log. Source files
// from different vintages may miss some of these; absent columns coerce to
// null fields rather than failing the load.
var statusColumns = []string{
	"timestamp",
	"currentLocation",
	"participantId",
	"currentMode",
	"hungerStatus",
	"sleepStatus",
	"apartmentId",
	"availableBalance",
	"jobId",
	"financialStatus",
	"dailyFoodBudget",
	"weeklyExtraBudget",
}

// streamFile parses one CSV file and invokes onRow for every record.
// onRow borrows the pooled row for the duration of the call only; streamFile
// frees it afterwards. Parse errors on individual lines are counted and
// logged, not fatal.
func (l *Loader) streamFile(ctx context.Context, path string, columns []string, onRow func(*transformer.Row)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	out := make(chan *transformer.Row, l.bufSize())
	errCh := make(chan error, 1)
	var badLines int

	go func() {
		defer close(out)
		errCh <- csvparser.StreamRows(ctx, f, columns, l.Parser, out, func(line int, err error) {
			badLines++
			if badLines <= 5 {
				l.logger().Printf("warn file=%s line=%d err=%v", filepath.Base(path), line, err)
			}
		})
	}()

	for row := range out {
		onRow(row)
		row.Free()
	}

	if badLines > 0 {
		l.logger().Printf("warn file=%s malformed_lines=%d", filepath.Base(path), badLines)
		metrics.IncCounter("cityecon.ingest.malformed_lines", float64(badLines), "file:"+filepath.Base(path))
	}
	return <-errCh
}

// LoadStatusLogs globs, parses and concatenates every status log file into a
// single StatusTable, in lexical file order. Files are processed one at a
// time so only one parser buffer is live at once.
//
// Errors:
//   - Zero matching files wraps ErrMissingSource.
//   - An unreadable file aborts the load.
func (l *Loader) LoadStatusLogs(ctx context.Context) (*dataset.StatusTable, error) {
	glob := l.StatusLogGlob
	if glob == "" {
		glob = "ParticipantStatusLogs*.csv"
	}
	pattern := filepath.Join(l.Root, "Datasets", "Activity Logs", glob)

	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no status logs match %s", ErrMissingSource, pattern)
	}
	sort.Strings(files)

	table := &dataset.StatusTable{}
	var coercionWarnings int64

	for _, path := range files {
		start := time.Now()
		before := table.Len()

		err := l.streamFile(ctx, path, statusColumns, func(row *transformer.Row) {
			rec := dataset.StatusRecord{
				Timestamp:         transformer.CoerceInstant(row.V[0]),
				CurrentLocation:   transformer.CoerceString(row.V[1]),
				ParticipantID:     transformer.CoerceInt64(row.V[2]),
				CurrentMode:       transformer.CoerceString(row.V[3]),
				HungerStatus:      transformer.CoerceString(row.V[4]),
				SleepStatus:       transformer.CoerceString(row.V[5]),
				ApartmentID:       transformer.CoerceInt64(row.V[6]),
				AvailableBalance:  transformer.CoerceFloat64(row.V[7]),
				JobID:             transformer.CoerceInt64(row.V[8]),
				FinancialStatus:   transformer.CoerceString(row.V[9]),
				DailyFoodBudget:   transformer.CoerceFloat64(row.V[10]),
				WeeklyExtraBudget: transformer.CoerceFloat64(row.V[11]),
			}
			// Sentinel text in an id slot is expected; a present-but-unparsable
			// timestamp or participant is worth counting.
			if !rec.Timestamp.Valid && !transformer.IsAbsent(row.V[0]) {
				coercionWarnings++
			}
			if !rec.ParticipantID.Valid && !transformer.IsAbsent(row.V[2]) {
				coercionWarnings++
			}
			table.Rows = append(table.Rows, rec)
		})
		if err != nil {
			return nil, err
		}

		l.logger().Printf("stage=load_status file=%s rows=%d duration=%s",
			filepath.Base(path), table.Len()-before, time.Since(start).Truncate(time.Millisecond))
	}

	if coercionWarnings > 0 {
		l.logger().Printf("warn stage=load_status coercion_warnings=%d", coercionWarnings)
		metrics.IncCounter("cityecon.ingest.coercion_warnings", float64(coercionWarnings))
	}
	metrics.IncCounter("cityecon.ingest.status_rows", float64(table.Len()))

	return table, nil
}

// LoadJobs reads Jobs.csv and returns job attributes keyed by jobId.
// Jobs.csv is required: turnover analysis is meaningless without employer
// attribution, so a missing file wraps ErrMissingSource. Rows without a
// usable jobId or employerId are skipped; a missing hourly rate degrades to
// an absent rate (the job still attributes spells to its employer).
func (l *Loader) LoadJobs(ctx context.Context) (map[int64]dataset.Job, error) {
	path := filepath.Join(l.Root, "Datasets", "Attributes", "Jobs.csv")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingSource, path)
	}

	jobs := make(map[int64]dataset.Job)
	err := l.streamFile(ctx, path, []string{"jobId", "employerId", "hourlyRate"}, func(row *transformer.Row) {
		job := transformer.CoerceInt64(row.V[0])
		employer := transformer.CoerceInt64(row.V[1])
		if job.Valid && employer.Valid {
			jobs[job.Int64] = dataset.Job{
				EmployerID: employer.Int64,
				HourlyRate: transformer.CoerceFloat64(row.V[2]),
			}
		}
	})
	if err != nil {
		return nil, err
	}

	l.logger().Printf("stage=load_jobs count=%d", len(jobs))
	return jobs, nil
}

// LoadParticipants reads Participants.csv into a demographics lookup.
// Optional; a missing file yields a nil map with a warning, and wage analysis
// falls back to a single ungrouped demographic bucket.
func (l *Loader) LoadParticipants(ctx context.Context) (map[int64]dataset.Participant, error) {
	path := filepath.Join(l.Root, "Datasets", "Attributes", "Participants.csv")
	if _, err := os.Stat(path); err != nil {
		l.logger().Printf("warn stage=load_participants file missing, wage analysis will be ungrouped")
		return nil, nil
	}

	out := make(map[int64]dataset.Participant)
	err := l.streamFile(ctx, path, []string{"participantId", "age", "educationLevel"}, func(row *transformer.Row) {
		id := transformer.CoerceInt64(row.V[0])
		if !id.Valid {
			return
		}
		out[id.Int64] = dataset.Participant{
			Age:            transformer.CoerceInt64(row.V[1]),
			EducationLevel: transformer.CoerceString(row.V[2]),
		}
	})
	if err != nil {
		return nil, err
	}

	l.logger().Printf("stage=load_participants count=%d", len(out))
	return out, nil
}

// LoadVenues reads Restaurants.csv and Pubs.csv into one unified venue list.
// Both files are optional; a missing file logs a warning and contributes
// nothing. Restaurant cost is foodCost, pub cost is hourlyCost.
func (l *Loader) LoadVenues(ctx context.Context) ([]dataset.Venue, error) {
	var venues []dataset.Venue

	type venueFile struct {
		name    string
		vtype   string
		columns []string // id, cost, maxOccupancy, buildingId
	}
	// Some Restaurants.csv vintages ship a "maxOccupancy " header with a
	// trailing space; header trimming in the parser absorbs it.
	files := []venueFile{
		{"Restaurants.csv", "Restaurant", []string{"restaurantId", "foodCost", "maxOccupancy", "buildingId"}},
		{"Pubs.csv", "Pub", []string{"pubId", "hourlyCost", "maxOccupancy", "buildingId"}},
	}

	for _, vf := range files {
		path := filepath.Join(l.Root, "Datasets", "Attributes", vf.name)
		if _, err := os.Stat(path); err != nil {
			l.logger().Printf("warn stage=load_venues file=%s missing, venue analysis will be partial", vf.name)
			continue
		}
		err := l.streamFile(ctx, path, vf.columns, func(row *transformer.Row) {
			id := transformer.CoerceInt64(row.V[0])
			if !id.Valid {
				return
			}
			venues = append(venues, dataset.Venue{
				ID:           id.Int64,
				Type:         vf.vtype,
				Cost:         transformer.CoerceFloat64(row.V[1]),
				MaxOccupancy: transformer.CoerceInt64(row.V[2]),
				BuildingID:   transformer.CoerceInt64(row.V[3]),
			})
		})
		if err != nil {
			return nil, err
		}
	}

	l.logger().Printf("stage=load_venues count=%d", len(venues))
	return venues, nil
}

// LoadApartments reads Apartments.csv. Optional; missing file yields an empty
// list with a warning.
func (l *Loader) LoadApartments(ctx context.Context) ([]dataset.Apartment, error) {
	path := filepath.Join(l.Root, "Datasets", "Attributes", "Apartments.csv")
	if _, err := os.Stat(path); err != nil {
		l.logger().Printf("warn stage=load_apartments file missing, housing costs will be empty")
		return nil, nil
	}

	var out []dataset.Apartment
	err := l.streamFile(ctx, path, []string{"apartmentId", "rentalCost"}, func(row *transformer.Row) {
		id := transformer.CoerceInt64(row.V[0])
		if !id.Valid {
			return
		}
		out = append(out, dataset.Apartment{
			ID:         id.Int64,
			RentalCost: transformer.CoerceFloat64(row.V[1]),
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger().Printf("stage=load_apartments count=%d", len(out))
	return out, nil
}

// LoadCheckins reads the check-in journal. Optional.
func (l *Loader) LoadCheckins(ctx context.Context) ([]dataset.CheckinRecord, error) {
	path := filepath.Join(l.Root, "Datasets", "Journals", "CheckinJournal.csv")
	if _, err := os.Stat(path); err != nil {
		l.logger().Printf("warn stage=load_checkins file missing, business trends will be empty")
		return nil, nil
	}

	var out []dataset.CheckinRecord
	err := l.streamFile(ctx, path, []string{"participantId", "timestamp", "venueId", "venueType"}, func(row *transformer.Row) {
		out = append(out, dataset.CheckinRecord{
			ParticipantID: transformer.CoerceInt64(row.V[0]),
			Timestamp:     transformer.CoerceInstant(row.V[1]),
			VenueID:       transformer.CoerceInt64(row.V[2]),
			VenueType:     transformer.CoerceString(row.V[3]),
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger().Printf("stage=load_checkins rows=%d", len(out))
	return out, nil
}

// LoadFinancialJournal reads the financial journal. Optional.
func (l *Loader) LoadFinancialJournal(ctx context.Context) ([]dataset.TransactionRecord, error) {
	path := filepath.Join(l.Root, "Datasets", "Journals", "FinancialJournal.csv")
	if _, err := os.Stat(path); err != nil {
		l.logger().Printf("warn stage=load_financial file missing, cost of living will be empty")
		return nil, nil
	}

	var out []dataset.TransactionRecord
	err := l.streamFile(ctx, path, []string{"participantId", "timestamp", "category", "amount"}, func(row *transformer.Row) {
		out = append(out, dataset.TransactionRecord{
			ParticipantID: transformer.CoerceInt64(row.V[0]),
			Timestamp:     transformer.CoerceInstant(row.V[1]),
			Category:      transformer.CoerceString(row.V[2]),
			Amount:        transformer.CoerceFloat64(row.V[3]),
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger().Printf("stage=load_financial rows=%d", len(out))
	return out, nil
}
