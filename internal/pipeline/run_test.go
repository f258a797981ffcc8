package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cityecon/internal/config"
	"cityecon/internal/dataset"
	"cityecon/internal/ingest"
	"cityecon/internal/storage"
)

type fakeRepository struct {
	mu     sync.Mutex
	tables map[string]dataset.Table
	closed bool
}

func (f *fakeRepository) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeRepository) ReplaceTable(_ context.Context, t dataset.Table) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tables == nil {
		f.tables = map[string]dataset.Table{}
	}
	f.tables[t.Name] = t
	return int64(len(t.Rows)), nil
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func writeMinimalCorpus(t *testing.T, root string) {
	t.Helper()
	writeFile(t, root, "Datasets/Activity Logs/ParticipantStatusLogs1.csv",
		"timestamp,participantId,jobId,apartmentId,availableBalance,dailyFoodBudget,weeklyExtraBudget\n"+
			"2022-01-05T09:00:00Z,1,10,50,100.0,10.0,20.0\n"+
			"2022-02-05T09:00:00Z,1,10,50,110.0,10.0,20.0\n"+
			"2022-03-05T09:00:00Z,1,20,50,120.0,10.0,20.0\n")
	writeFile(t, root, "Datasets/Attributes/Jobs.csv",
		"jobId,employerId,hourlyRate\n10,7,15.0\n20,8,22.5\n")
	writeFile(t, root, "Datasets/Attributes/Participants.csv",
		"participantId,age,educationLevel\n1,30,Bachelors\n")
	writeFile(t, root, "Datasets/Attributes/Apartments.csv",
		"apartmentId,rentalCost\n50,800.0\n")
	writeFile(t, root, "Datasets/Journals/CheckinJournal.csv",
		"participantId,timestamp,venueId,venueType\n1,2022-01-10T19:00:00Z,3,Pub\n")
	writeFile(t, root, "Datasets/Journals/FinancialJournal.csv",
		"participantId,timestamp,category,amount\n1,2022-01-15T00:00:00Z,Food,-25.0\n")
	writeFile(t, root, "Datasets/Attributes/Pubs.csv",
		"pubId,hourlyCost,maxOccupancy,buildingId\n3,5.0,40,900\n")
}

func testConfig(root string) config.Pipeline {
	cfg := config.Pipeline{
		Job:     "test",
		Source:  config.Source{Root: root},
		Storage: config.Storage{Kind: "fake", DSN: "unused"},
	}
	cfg.Runtime.ChunkSize = 2
	cfg.ApplyDefaults()
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	root := t.TempDir()
	writeMinimalCorpus(t, root)

	repo := &fakeRepository{}
	runner := &Runner{
		NewRepository: func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			return repo, nil
		},
	}

	if err := runner.Run(context.Background(), testConfig(root)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantTables := []string{
		"employment_turnover_rates",
		"employment_stability",
		"job_flows",
		"employer_health",
		"business_trends",
		"venue_performance",
		"customer_patterns",
		"financial_trajectories",
		"wage_analysis",
		"cost_of_living",
		"housing_costs",
	}
	for _, name := range wantTables {
		if _, ok := repo.tables[name]; !ok {
			t.Errorf("table %s not written", name)
		}
	}
	if !repo.closed {
		t.Error("repository not closed")
	}

	turnover := repo.tables["employment_turnover_rates"]
	if len(turnover.Rows) != 2 {
		t.Fatalf("turnover rows = %d, want 2: %v", len(turnover.Rows), turnover.Rows)
	}
	// Job 10 held Jan-Feb at employer 7; job 20 single observation at
	// employer 8.
	if turnover.Rows[0][0] != "2022-01" || turnover.Rows[0][1].(int64) != 7 {
		t.Errorf("turnover row0 = %v", turnover.Rows[0])
	}
	if turnover.Rows[1][0] != "2022-03" || turnover.Rows[1][4].(float64) != 1.0 {
		t.Errorf("turnover row1 = %v", turnover.Rows[1])
	}

	stability := repo.tables["employment_stability"]
	if len(stability.Rows) != 3 {
		t.Errorf("stability rows = %d, want 3", len(stability.Rows))
	}

	// One employer change (7 to 8) arriving in March.
	flows := repo.tables["job_flows"]
	if len(flows.Rows) != 1 {
		t.Fatalf("job_flows rows = %d, want 1: %v", len(flows.Rows), flows.Rows)
	}
	if flows.Rows[0][0] != "2022-03" || flows.Rows[0][1].(int64) != 7 || flows.Rows[0][2].(int64) != 8 {
		t.Errorf("job_flows row = %v", flows.Rows[0])
	}

	health := repo.tables["employer_health"]
	if len(health.Rows) != 3 {
		t.Errorf("employer_health rows = %d, want 3: %v", len(health.Rows), health.Rows)
	}

	wages := repo.tables["wage_analysis"]
	if len(wages.Rows) != 3 {
		t.Fatalf("wage_analysis rows = %d, want 3: %v", len(wages.Rows), wages.Rows)
	}
	if wages.Rows[0][1] != "Bachelors" || wages.Rows[0][2].(int64) != 30 {
		t.Errorf("wage_analysis row = %v", wages.Rows[0])
	}

	patterns := repo.tables["customer_patterns"]
	if len(patterns.Rows) != 1 {
		t.Errorf("customer_patterns rows = %d, want 1", len(patterns.Rows))
	}

	housing := repo.tables["housing_costs"]
	if len(housing.Rows) != 3 {
		t.Fatalf("housing rows = %d, want 3", len(housing.Rows))
	}
	if housing.Rows[0][1].(float64) != 800.0 {
		t.Errorf("avg_rent = %v", housing.Rows[0][1])
	}
}

func TestRunMissingStatusLogs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Datasets/Attributes/Jobs.csv", "jobId,employerId\n10,7\n")

	runner := &Runner{
		NewRepository: func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			t.Fatal("storage must not be opened when loading fails")
			return nil, nil
		},
	}

	err := runner.Run(context.Background(), testConfig(root))
	if !errors.Is(err, ingest.ErrMissingSource) {
		t.Fatalf("err = %v, want ErrMissingSource", err)
	}
}

func TestRunMissingJobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Datasets/Activity Logs/ParticipantStatusLogs1.csv",
		"timestamp,participantId\n2022-01-05T09:00:00Z,1\n")

	runner := &Runner{
		NewRepository: func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			return &fakeRepository{}, nil
		},
	}

	err := runner.Run(context.Background(), testConfig(root))
	if !errors.Is(err, ingest.ErrMissingSource) {
		t.Fatalf("err = %v, want ErrMissingSource", err)
	}
}

func TestRunStorageErrorAborts(t *testing.T) {
	root := t.TempDir()
	writeMinimalCorpus(t, root)

	boom := errors.New("disk full")
	runner := &Runner{
		NewRepository: func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			return failingRepo{err: boom}, nil
		},
	}

	err := runner.Run(context.Background(), testConfig(root))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped storage error", err)
	}
}

type failingRepo struct{ err error }

func (failingRepo) Close() {}
func (f failingRepo) ReplaceTable(context.Context, dataset.Table) (int64, error) {
	return 0, f.err
}
