package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"weather-etl/internal/config"
	"weather-etl/internal/uploader"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	apiURL := flag.String("api-url", cfg.Uploader.BaseURL, "Base URL of the weather ETL API")
	dataDir := flag.String("data-dir", cfg.Ingestion.DataDir, "Directory containing the .txt files to upload")
	flag.Parse()

	logger := logging.NewStructuredLogger("weather-etl-uploader", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := uploader.New(uploader.Config{
		BaseURL:        *apiURL,
		FailureTrip:    cfg.Uploader.FailureTrip,
		BreakerTimeout: cfg.Uploader.BreakerTimeout,
	}, &http.Client{Timeout: cfg.Uploader.Timeout}, logger, metrics.NewCollector("weather_etl_uploader", prometheus.NewRegistry()))

	report, err := client.UploadDirectory(ctx, *dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("UPLOAD COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	for _, f := range report.Files {
		line := fmt.Sprintf("%-24s %-9s", f.File, f.Status)
		if f.Summary != nil {
			line += fmt.Sprintf(" total=%d inserted=%d time=%.2fs", f.Summary.TotalRecords, f.Summary.InsertedRecords, f.Summary.TimeTaken)
		}
		if f.Error != "" {
			line += " " + f.Error
		}
		fmt.Println(line)
	}
	fmt.Printf("\nUploaded: %d  Rejected: %d  Failed: %d  Skipped: %d  Inserted records: %d\n",
		report.Uploaded, report.Rejected, report.Failed, report.Skipped, report.Inserted)

	if report.Failed > 0 || report.Skipped > 0 {
		os.Exit(1)
	}
}
