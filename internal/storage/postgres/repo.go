// Package postgres implements the storage backend on pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cityecon/internal/dataset"
	"cityecon/internal/storage"
)

// typeMap translates backend-neutral column types into Postgres DDL.
var typeMap = map[string]string{
	"text":   "text",
	"bigint": "bigint",
	"double": "double precision",
}

type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

// ReplaceTable implements storage.Repository. The whole replace runs in one
// transaction; rows stream in via COPY, which makes the configured insert
// batch size irrelevant for this backend.
func (r *Repo) ReplaceTable(ctx context.Context, t dataset.Table) (int64, error) {
	if strings.TrimSpace(t.Name) == "" {
		return 0, fmt.Errorf("postgres: table name is empty")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ident := pgx.Identifier{t.Name}
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident.Sanitize()); err != nil {
		return 0, fmt.Errorf("postgres: drop %s: %w", t.Name, err)
	}
	if _, err := tx.Exec(ctx, buildCreateSQL(t)); err != nil {
		return 0, fmt.Errorf("postgres: create %s: %w", t.Name, err)
	}

	var written int64
	if len(t.Rows) > 0 {
		written, err = tx.CopyFrom(ctx, ident, t.ColumnNames(), pgx.CopyFromRows(t.Rows))
		if err != nil {
			return 0, fmt.Errorf("postgres: copy into %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return written, err
	}
	return written, nil
}

func buildCreateSQL(t dataset.Table) string {
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		parts = append(parts, pgx.Identifier{c.Name}.Sanitize()+" "+storage.ColumnDDL(c, typeMap))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);",
		pgx.Identifier{t.Name}.Sanitize(), strings.Join(parts, ",\n  "))
}
