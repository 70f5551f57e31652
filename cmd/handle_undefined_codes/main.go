// Command handle_undefined_codes detects codes that appear in fact-table
// columns without a matching dimension row, inserts placeholder dimension
// rows, and records every occurrence in undefined_log.
//
// Usage:
//
//	handle_undefined_codes [flags] CLIENT
//
// The client code is case-insensitive. Connection and backend defaults come
// from the environment (REFCHECK_DSN / REFCHECK_DSN_<CLIENT>,
// REFCHECK_STORAGE, REFCHECK_METRICS); flags override them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"refcheck/internal/checker"
	"refcheck/internal/config"
	"refcheck/internal/metrics"
	"refcheck/internal/metrics/datadog"
	"refcheck/internal/storage"
	_ "refcheck/internal/storage/all"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		debug          = flag.String("debug", "INFO", "log level: INFO or DEBUG")
		storageKind    = flag.String("storage", "", "storage backend: postgres, sqlite or mssql (default from REFCHECK_STORAGE)")
		dsn            = flag.String("dsn", "", "connection string (default from REFCHECK_DSN / REFCHECK_DSN_<CLIENT>)")
		metricsBackend = flag.String("metrics-backend", "", "metrics backend: datadog or none (default from REFCHECK_METRICS)")
		environ        = flag.String("env", "dev", "environment name")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: handle_undefined_codes [flags] CLIENT")
		flag.PrintDefaults()
		return 2
	}

	settings, err := config.Load(flag.Arg(0), *environ)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	if *storageKind != "" {
		settings.StorageKind = *storageKind
	}
	if *dsn != "" {
		settings.DSN = *dsn
	}
	if *metricsBackend != "" {
		settings.MetricsBackend = *metricsBackend
	}
	if settings.DSN == "" {
		fmt.Fprintf(os.Stderr, "no DSN: set --dsn or REFCHECK_DSN / %s\n", "REFCHECK_DSN_<CLIENT>")
		return 2
	}

	logger := log.New(os.Stderr, "handle_undefined_codes ", log.LstdFlags)

	ctx := context.Background()

	mb, err := newMetricsBackend(ctx, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics: %v\n", err)
		return 1
	}
	defer func() {
		if err := mb.Close(); err != nil {
			logger.Printf("stage=metrics_close status=error err=%v", err)
		}
	}()

	base := checker.Runtime{DebugTimings: *debug == "DEBUG"}

	runner := checker.NewDefaultRunner()
	runner.Logger = logger
	runner.Metrics = mb

	cfg := storage.Config{Kind: settings.StorageKind, DSN: settings.DSN}
	if err := runner.Run(ctx, settings.Client, cfg, base); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return 1
	}

	return 0
}

func newMetricsBackend(ctx context.Context, s config.Settings) (metrics.Backend, error) {
	switch s.MetricsBackend {
	case "", "none":
		return metrics.Noop{}, nil
	case "datadog":
		tags := datadog.ParseTagsCSV(s.TagsCSV)
		tags = append(tags, "client:"+s.Client, "environ:"+s.Environ)
		return datadog.NewBackend(ctx, datadog.Options{Tags: tags})
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", s.MetricsBackend)
	}
}
