// Package config defines the pipeline configuration surface: the JSON shapes
// decoded by cmd/cityecon, defaulting rules, and structural validation.
//
// Configuration is deliberately dumb: it carries paths, sizes and backend
// selection, nothing behavioral. Components receive the values they need as
// plain parameters.
package config

import (
	"fmt"
	"strings"
)

// Pipeline is the root configuration object for one ETL run.
type Pipeline struct {
	// Job is the logical job name used for metrics tags and log prefixes.
	Job string `json:"job"`

	Source  Source  `json:"source"`
	Parser  Parser  `json:"parser"`
	Storage Storage `json:"storage"`
	Runtime Runtime `json:"runtime"`
	Metrics Metrics `json:"metrics"`
}

// Source locates the input corpus on disk.
//
// The directory layout mirrors the dataset distribution:
//
//	<root>/Datasets/Activity Logs/ParticipantStatusLogs*.csv
//	<root>/Datasets/Journals/{CheckinJournal,FinancialJournal}.csv
//	<root>/Datasets/Attributes/{Jobs,Restaurants,Pubs,Apartments}.csv
type Source struct {
	// Root is the dataset root directory (the parent of "Datasets").
	Root string `json:"root"`

	// StatusLogGlob overrides the status log filename pattern.
	// Default: "ParticipantStatusLogs*.csv".
	StatusLogGlob string `json:"status_log_glob,omitempty"`
}

// Parser carries reader-level options shared by all CSV inputs.
type Parser struct {
	// Kind must be "csv" (the only parser this pipeline ships).
	Kind string `json:"kind"`

	// Options: has_header (bool), comma (string), trim_space (bool),
	// lazy_quotes (bool), encoding ("", "utf8", "latin1", "windows1252").
	Options Options `json:"options,omitempty"`
}

// Storage selects the analytical store backend.
type Storage struct {
	// Kind is a registered backend: "sqlite", "postgres" or "mssql".
	Kind string `json:"kind"`

	// DSN is backend specific and passed through os.ExpandEnv before use.
	DSN string `json:"dsn"`
}

// Runtime tunes batch sizes and worker counts.
type Runtime struct {
	// ChunkSize bounds the number of status log rows aggregated per chunk.
	// Default 5,000,000.
	ChunkSize int `json:"chunk_size,omitempty"`

	// ChunkWorkers is the number of concurrent chunk aggregation workers.
	// Default 1 (strictly sequential, planner order).
	ChunkWorkers int `json:"chunk_workers,omitempty"`

	// ChannelBuffer sizes the row channels between reader and collector.
	// Default 256.
	ChannelBuffer int `json:"channel_buffer,omitempty"`

	// InsertBatchSize bounds rows per bulk insert statement. Default 500.
	InsertBatchSize int `json:"insert_batch_size,omitempty"`
}

// Metrics selects the metrics backend for the run.
type Metrics struct {
	// Backend: "datadog", "none" or "". Empty means disabled.
	Backend string `json:"backend,omitempty"`

	// Tags are extra backend tags, e.g. ["env:prod"].
	Tags []string `json:"tags,omitempty"`
}

// Defaults used when Runtime fields are zero.
const (
	DefaultChunkSize       = 5_000_000
	DefaultChannelBuffer   = 256
	DefaultInsertBatchSize = 500
)

// ApplyDefaults fills zero-valued fields in place.
func (p *Pipeline) ApplyDefaults() {
	if p.Parser.Kind == "" {
		p.Parser.Kind = "csv"
	}
	if p.Source.StatusLogGlob == "" {
		p.Source.StatusLogGlob = "ParticipantStatusLogs*.csv"
	}
	if p.Runtime.ChunkSize <= 0 {
		p.Runtime.ChunkSize = DefaultChunkSize
	}
	if p.Runtime.ChunkWorkers <= 0 {
		p.Runtime.ChunkWorkers = 1
	}
	if p.Runtime.ChannelBuffer <= 0 {
		p.Runtime.ChannelBuffer = DefaultChannelBuffer
	}
	if p.Runtime.InsertBatchSize <= 0 {
		p.Runtime.InsertBatchSize = DefaultInsertBatchSize
	}
}

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Issue is one validation finding, addressed by JSON-ish path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// Validate checks structural correctness. It never mutates p; callers that
// want defaults must call ApplyDefaults first. Any SeverityError issue means
// the pipeline must not run.
func Validate(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Source.Root) == "" {
		issues = append(issues, Issue{SeverityError, "source.root", "dataset root directory is required"})
	}
	if p.Parser.Kind != "" && p.Parser.Kind != "csv" {
		issues = append(issues, Issue{SeverityError, "parser.kind", fmt.Sprintf("unsupported parser kind %q (only csv)", p.Parser.Kind)})
	}
	switch enc := p.Parser.Options.String("encoding", ""); enc {
	case "", "utf8", "utf-8", "latin1", "iso-8859-1", "windows1252", "cp1252":
	default:
		issues = append(issues, Issue{SeverityError, "parser.options.encoding", fmt.Sprintf("unsupported encoding %q", enc)})
	}

	switch p.Storage.Kind {
	case "sqlite", "postgres", "mssql":
	case "":
		issues = append(issues, Issue{SeverityError, "storage.kind", "storage backend kind is required"})
	default:
		issues = append(issues, Issue{SeverityWarn, "storage.kind", fmt.Sprintf("unknown backend kind %q; run will fail unless a backend registered it", p.Storage.Kind)})
	}
	if strings.TrimSpace(p.Storage.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.dsn", "storage DSN is required"})
	}

	if p.Runtime.ChunkSize < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.chunk_size", "must not be negative"})
	}
	if p.Runtime.ChunkWorkers < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.chunk_workers", "must not be negative"})
	}
	if p.Runtime.ChunkSize > 0 && p.Runtime.ChunkSize < 10_000 {
		issues = append(issues, Issue{SeverityWarn, "runtime.chunk_size", "very small chunks increase re-aggregation overhead"})
	}

	switch p.Metrics.Backend {
	case "", "none", "datadog":
	default:
		issues = append(issues, Issue{SeverityWarn, "metrics.backend", fmt.Sprintf("unknown metrics backend %q; metrics will be disabled", p.Metrics.Backend)})
	}

	return issues
}
