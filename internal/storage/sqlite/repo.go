// Package sqlite implements the default storage backend on modernc.org/sqlite.
//
// SQLite is the right default for this pipeline: the result tables are
// rebuilt wholesale on every run, a single local file is trivially
// inspectable, and the pure-Go driver needs no cgo toolchain.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"cityecon/internal/dataset"
	"cityecon/internal/storage"
)

// typeMap translates backend-neutral column types into SQLite affinities.
var typeMap = map[string]string{
	"text":   "TEXT",
	"bigint": "INTEGER",
	"double": "REAL",
}

type Repo struct {
	db        *sql.DB
	batchSize int
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, batchSize: cfg.BatchSize()}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// ReplaceTable implements storage.Repository. Drop, recreate and load run in
// one transaction so a failed run never leaves a half-loaded table behind.
func (r *Repo) ReplaceTable(ctx context.Context, t dataset.Table) (int64, error) {
	if strings.TrimSpace(t.Name) == "" {
		return 0, fmt.Errorf("sqlite: table name is empty")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(t.Name)); err != nil {
		return 0, fmt.Errorf("sqlite: drop %s: %w", t.Name, err)
	}
	if _, err := tx.ExecContext(ctx, buildCreateSQL(t)); err != nil {
		return 0, fmt.Errorf("sqlite: create %s: %w", t.Name, err)
	}

	var written int64
	for start := 0; start < len(t.Rows); start += r.batchSize {
		end := start + r.batchSize
		if end > len(t.Rows) {
			end = len(t.Rows)
		}
		n, err := insertBatch(ctx, tx, t, t.Rows[start:end])
		if err != nil {
			return written, fmt.Errorf("sqlite: insert into %s: %w", t.Name, err)
		}
		written += n
	}

	if err := tx.Commit(); err != nil {
		return written, err
	}
	return written, nil
}

func buildCreateSQL(t dataset.Table) string {
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		parts = append(parts, sqlIdent(c.Name)+" "+storage.ColumnDDL(c, typeMap))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  "))
}

func insertBatch(ctx context.Context, tx *sql.Tx, t dataset.Table, rows [][]any) (int64, error) {
	colList := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		colList = append(colList, sqlIdent(c.Name))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(t.Columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(t.Name))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(t.Columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}

	res, err := tx.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
