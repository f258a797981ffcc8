// Package mssql implements the storage backend on Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"

	"cityecon/internal/dataset"
	"cityecon/internal/storage"
)

// typeMap translates backend-neutral column types into SQL Server DDL.
var typeMap = map[string]string{
	"text":   "nvarchar(255)",
	"bigint": "bigint",
	"double": "float",
}

type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Conservative defaults for bursty bulk loads.
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(16)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// ReplaceTable implements storage.Repository using the driver's native bulk
// copy (BCP) path via mssqldb.CopyIn. Drop, create and load share one
// transaction so the replace is all-or-nothing.
func (r *Repo) ReplaceTable(ctx context.Context, t dataset.Table) (int64, error) {
	if strings.TrimSpace(t.Name) == "" {
		return 0, fmt.Errorf("mssql: table name is empty")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	drop := fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;",
		escapeLiteral(t.Name), sqlIdent(t.Name))
	if _, err := tx.ExecContext(ctx, drop); err != nil {
		return 0, fmt.Errorf("mssql: drop %s: %w", t.Name, err)
	}
	if _, err := tx.ExecContext(ctx, buildCreateSQL(t)); err != nil {
		return 0, fmt.Errorf("mssql: create %s: %w", t.Name, err)
	}

	var written int64
	if len(t.Rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, mssqldb.CopyIn(t.Name, mssqldb.BulkOptions{}, t.ColumnNames()...))
		if err != nil {
			return 0, fmt.Errorf("mssql: bulk copy prepare %s: %w", t.Name, err)
		}
		for _, row := range t.Rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				_ = stmt.Close()
				return 0, fmt.Errorf("mssql: bulk copy row into %s: %w", t.Name, err)
			}
		}
		// The final Exec with no args flushes the bulk batch and reports the
		// total row count.
		res, err := stmt.ExecContext(ctx)
		if err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("mssql: bulk copy flush %s: %w", t.Name, err)
		}
		written, _ = res.RowsAffected()
		if err := stmt.Close(); err != nil {
			return written, err
		}
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

func sqlIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
