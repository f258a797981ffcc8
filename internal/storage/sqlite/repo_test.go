package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"cityecon/internal/dataset"
	"cityecon/internal/storage"
)

func testTable() dataset.Table {
	return dataset.Table{
		Name: "employment_stability",
		Columns: []dataset.Column{
			{Name: "participantId", Type: "bigint"},
			{Name: "month", Type: "text"},
			{Name: "avg_balance", Type: "double"},
		},
		Rows: [][]any{
			{int64(1), "2022-03", 100.5},
			{int64(2), "2022-03", nil},
			{int64(3), "2022-04", 7.0},
		},
	}
}

func openTestRepo(t *testing.T) (storage.Repository, string) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	repo, err := New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn, InsertBatchSize: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(repo.Close)
	return repo, dsn
}

func TestReplaceTableRoundTrip(t *testing.T) {
	repo, dsn := openTestRepo(t)
	ctx := context.Background()

	n, err := repo.ReplaceTable(ctx, testTable())
	if err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}
	if n != 3 {
		t.Errorf("rows written = %d, want 3", n)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT "participantId", "month", "avg_balance" FROM "employment_stability" ORDER BY "participantId"`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var pid int64
		var month string
		var balance sql.NullFloat64
		if err := rows.Scan(&pid, &month, &balance); err != nil {
			t.Fatalf("scan: %v", err)
		}
		count++
		if pid == 2 && balance.Valid {
			t.Errorf("participant 2 balance = %v, want NULL", balance)
		}
		if pid == 1 && (!balance.Valid || balance.Float64 != 100.5) {
			t.Errorf("participant 1 balance = %v", balance)
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	if count != 3 {
		t.Errorf("rows read = %d, want 3", count)
	}
}

func TestReplaceTableReplaces(t *testing.T) {
	repo, dsn := openTestRepo(t)
	ctx := context.Background()

	if _, err := repo.ReplaceTable(ctx, testTable()); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	small := testTable()
	small.Rows = small.Rows[:1]
	if _, err := repo.ReplaceTable(ctx, small); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "employment_stability"`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count after replace = %d, want 1", count)
	}
}

func TestReplaceTableEmpty(t *testing.T) {
	repo, dsn := openTestRepo(t)
	ctx := context.Background()

	empty := testTable()
	empty.Rows = nil
	n, err := repo.ReplaceTable(ctx, empty)
	if err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}
	if n != 0 {
		t.Errorf("rows written = %d, want 0", n)
	}

	// Empty table must still exist with its schema.
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "employment_stability"`).Scan(&count); err != nil {
		t.Fatalf("empty table not created: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestReplaceTableRejectsEmptyName(t *testing.T) {
	repo, _ := openTestRepo(t)
	bad := testTable()
	bad.Name = " "
	if _, err := repo.ReplaceTable(context.Background(), bad); err == nil {
		t.Error("expected error for empty table name")
	}
}
