// Command cityecon runs the activity-log ETL: it loads the raw city dataset,
// derives the economic indicator tables and replaces them in the configured
// analytical store.
//
// Usage:
//
//	cityecon -config pipeline.json [-validate] [-metrics-backend datadog] [-v]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cityecon/internal/config"
	"cityecon/internal/metrics"
	"cityecon/internal/metrics/datadog"
	"cityecon/internal/pipeline"
	_ "cityecon/internal/storage/all"
)

func main() {
	var (
		configPath     = flag.String("config", "", "path to pipeline JSON config (required)")
		validateOnly   = flag.Bool("validate", false, "validate the config and exit")
		metricsBackend = flag.String("metrics-backend", "", "override metrics backend: datadog or none")
		metricsTags    = flag.String("metrics-tags", "", "extra metrics tags, e.g. env:prod,service:cityecon")
		verbose        = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *configPath == "" {
		fatalf("missing -config")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	cfg.ApplyDefaults()
	if *metricsBackend != "" {
		cfg.Metrics.Backend = *metricsBackend
	}

	issues := config.Validate(cfg)
	fatal := false
	for _, is := range issues {
		fmt.Fprintln(os.Stderr, is.String())
		if is.Severity == config.SeverityError {
			fatal = true
		}
	}
	if fatal {
		os.Exit(2)
	}
	if *validateOnly {
		fmt.Println("config ok")
		return
	}

	logger := log.New(os.Stderr, "cityecon ", log.LstdFlags)
	if !*verbose {
		logger.SetFlags(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Metrics.Backend {
	case "datadog":
		tags := append([]string(nil), cfg.Metrics.Tags...)
		tags = append(tags, datadog.ParseTagsCSV(*metricsTags)...)
		backend, err := datadog.NewBackend(ctx, datadog.Options{
			JobName: cfg.Job,
			Tags:    tags,
		})
		if err != nil {
			fatalf("metrics init: %v", err)
		}
		metrics.SetBackend(backend)
		defer func() {
			if err := backend.Close(); err != nil {
				logger.Printf("warn metrics flush failed: %v", err)
			}
		}()
	case "", "none":
	default:
		logger.Printf("warn unknown metrics backend %q, metrics disabled", cfg.Metrics.Backend)
	}

	runner := pipeline.NewDefaultRunner(logger)
	if err := runner.Run(ctx, cfg); err != nil {
		logger.Printf("stage=run status=error err=%v", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return config.Pipeline{}, err
	}
	defer f.Close()

	var cfg config.Pipeline
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return config.Pipeline{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

func fatalf(format string, v ...any) {
	fmt.Fprintf(os.Stderr, "cityecon: "+format+"\n", v...)
	os.Exit(2)
}
