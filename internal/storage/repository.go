// Package storage defines the backend-agnostic result store interface and the
// backend registry. Concrete backends live in subpackages and register
// themselves from init(); blank-import storage/all to get every built-in.
package storage

import (
	"context"
	"fmt"
	"sync"

	"cityecon/internal/dataset"
)

// Config is the minimal configuration needed to open a repository.
type Config struct {
	// Kind selects a registered backend ("sqlite", "postgres", "mssql").
	Kind string

	// DSN is backend specific; validation happens in the backend factory.
	DSN string

	// InsertBatchSize bounds rows per bulk insert statement. Backends that
	// stream rows natively (Postgres COPY) may ignore it. Zero means 500.
	InsertBatchSize int
}

// BatchSize returns the effective insert batch size.
func (c Config) BatchSize() int {
	if c.InsertBatchSize <= 0 {
		return 500
	}
	return c.InsertBatchSize
}

// Repository is the analytical result store.
//
// IMPORTANT: This interface is intentionally minimal. The pipeline only ever
// replaces whole result tables; there is no incremental upsert surface.
type Repository interface {
	// Close releases backend resources. Treat as "call once".
	Close()

	// ReplaceTable atomically replaces the named table with the given
	// contents: drop (or truncate), recreate with the table's schema, and
	// bulk load the rows. A zero-row table still creates the empty table so
	// downstream consumers see the schema.
	//
	// Returns the number of rows written.
	ReplaceTable(ctx context.Context, t dataset.Table) (int64, error)
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind. Call from an init() function in
// a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing storage.kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ColumnDDL maps a backend-neutral column type to backend DDL via typeMap.
// Unknown types fall back to the text mapping: result tables are generated
// in-process, so an unknown type is a programming error that still degrades
// to something loadable.
func ColumnDDL(c dataset.Column, typeMap map[string]string) string {
	t, ok := typeMap[c.Type]
	if !ok {
		t = typeMap["text"]
	}
	return t
}
