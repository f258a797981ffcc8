package storage

import (
	"context"
	"strings"
	"testing"

	"cityecon/internal/dataset"
)

type fakeRepo struct{}

func (fakeRepo) Close() {}
func (fakeRepo) ReplaceTable(context.Context, dataset.Table) (int64, error) {
	return 0, nil
}

func TestRegisterAndNew(t *testing.T) {
	Register("fake", func(ctx context.Context, cfg Config) (Repository, error) {
		return fakeRepo{}, nil
	})

	repo, err := New(context.Background(), Config{Kind: "fake", DSN: "x"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	repo.Close()
}

func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New(context.Background(), Config{Kind: "bogus"}); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("expected error for empty kind")
	}
}

func TestRegisterPanics(t *testing.T) {
	expectPanic := func(name string, f func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s: expected panic", name)
			}
		}()
		f()
	}

	expectPanic("empty kind", func() { Register("", func(context.Context, Config) (Repository, error) { return nil, nil }) })
	expectPanic("nil factory", func() { Register("x", nil) })

	Register("dup", func(context.Context, Config) (Repository, error) { return fakeRepo{}, nil })
	expectPanic("duplicate", func() { Register("dup", func(context.Context, Config) (Repository, error) { return fakeRepo{}, nil }) })
}

func TestConfigBatchSize(t *testing.T) {
	if got := (Config{}).BatchSize(); got != 500 {
		t.Errorf("default batch size = %d", got)
	}
	if got := (Config{InsertBatchSize: 50}).BatchSize(); got != 50 {
		t.Errorf("batch size = %d", got)
	}
}

func TestColumnDDLFallsBackToText(t *testing.T) {
	tm := map[string]string{"text": "TEXT", "bigint": "INTEGER"}
	if got := ColumnDDL(dataset.Column{Name: "x", Type: "bigint"}, tm); got != "INTEGER" {
		t.Errorf("ColumnDDL = %q", got)
	}
	if got := ColumnDDL(dataset.Column{Name: "x", Type: "jsonb"}, tm); !strings.EqualFold(got, "TEXT") {
		t.Errorf("fallback ColumnDDL = %q", got)
	}
}
