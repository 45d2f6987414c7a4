package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"weather-etl/internal/config"
	"weather-etl/internal/scheduler"
	"weather-etl/internal/services"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration first so flags default to it
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	dataDir := flag.String("data-dir", cfg.Ingestion.DataDir, "Directory containing weather and crop-yield .txt files")
	batchSize := flag.Int("batch-size", cfg.Ingestion.BatchSize, "Number of records inserted per transaction")
	dryRun := flag.Bool("dry-run", false, "Detect, parse and clean files without writing to the database")
	every := flag.Duration("every", 0, "Re-run the ingestion at this interval (e.g. 1h); 0 runs once")
	flag.Parse()

	cfg.Ingestion.BatchSize = *batchSize
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("weather-etl-ingester", version, logging.ParseLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[INGESTER_START] Starting data ingestion", logging.Fields{
		"version":    version,
		"data_dir":   *dataDir,
		"batch_size": *batchSize,
		"dry_run":    *dryRun,
		"every":      every.String(),
	})

	metricsCollector := metrics.NewCollector("weather_etl_ingester", prometheus.NewRegistry())

	// A dry run never reaches the loaders, so it needs no connection.
	var db *database.PostgresDB
	if !*dryRun {
		db, err = database.NewPostgresDB(cfg.PostgresConfig(), logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
		}
		defer db.Close()
	}

	ingestionService := services.NewPostgresIngestionService(
		db,
		cfg.Ingestion.BatchSize,
		cfg.Ingestion.SampleLines,
		logger,
		metricsCollector,
	)

	runOnce := func(ctx context.Context) error {
		result, err := ingestionService.IngestDirectory(ctx, *dataDir, *dryRun)
		if err != nil {
			return err
		}
		printResult(result, *dryRun)
		return nil
	}

	if *every <= 0 {
		if err := runOnce(ctx); err != nil {
			logger.Fatal(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{}, err)
		}
		logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion completed", logging.Fields{})
		return
	}

	// Re-runs are safe: rows already stored are skipped on conflict.
	sched := scheduler.New("ingest_directory", *every, runOnce, logger)
	if err := sched.Start(); err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to start scheduler", logging.Fields{}, err)
	}

	<-ctx.Done()
	logger.Info(context.Background(), "[SHUTDOWN] Stopping scheduled ingestion", logging.Fields{})
	sched.Stop()
}

func printResult(result *services.IngestionResult, dryRun bool) {
	title := "INGESTION COMPLETE"
	if dryRun {
		title = "DRY RUN COMPLETE (nothing written)"
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Total Files:        %d\n", result.TotalFiles)
	fmt.Printf("Succeeded Files:    %d\n", result.SucceededFiles)
	fmt.Printf("Total Records:      %d\n", result.TotalRecords)
	fmt.Printf("Inserted Records:   %d\n", result.InsertedRecords)
	fmt.Printf("Duration:           %v\n", result.Duration.Round(time.Millisecond))
	if secs := result.Duration.Seconds(); secs > 0 {
		fmt.Printf("Records/Second:     %.2f\n", float64(result.TotalRecords)/secs)
	}

	if len(result.Files) > 0 {
		fmt.Println()
		fmt.Printf("%-24s %-11s %8s %8s %8s %7s\n", "FILE", "SCHEMA", "TOTAL", "VALID", "INSERTED", "SECS")
		for _, f := range result.Files {
			inserted := fmt.Sprintf("%d", f.InsertedRecords)
			if f.InsertedEstimated {
				inserted += "~"
			}
			fmt.Printf("%-24s %-11s %8d %8d %8s %7.2f\n", f.Filename, f.Schema, f.TotalRecords, f.ValidRecords, inserted, f.TimeTaken)
		}
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(result.Errors) > 10 {
			fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
		}
	}
}
