package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"weather-etl/internal/config"
	"weather-etl/internal/migrations"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up, down or status")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("weather-etl-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	metricsCollector := metrics.NewCollector("weather_etl_migrate", prometheus.NewRegistry())

	db, err := database.NewPostgresDB(cfg.PostgresConfig(), logger, metricsCollector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Println("Connected to database successfully")

	runner, err := migrations.NewRunner(db, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load migrations: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	switch *direction {
	case "up":
		applied, err := runner.Up(ctx)
		for _, v := range applied {
			fmt.Printf("Applied migration: %s\n", v)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to execute migration: %v\n", err)
			os.Exit(1)
		}
		if len(applied) == 0 {
			fmt.Println("Database is up to date")
			return
		}

	case "down":
		version, err := runner.Down(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to roll back migration: %v\n", err)
			os.Exit(1)
		}
		if version == "" {
			fmt.Println("No migrations to roll back")
			return
		}
		fmt.Printf("Rolled back migration: %s\n", version)

	case "status":
		applied, err := runner.Applied(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read migration status: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Applied migrations (%d):\n", len(applied))
		for _, v := range applied {
			fmt.Printf("  - %s\n", v)
		}
		return

	default:
		fmt.Fprintf(os.Stderr, "Unknown direction %q: use up, down or status\n", *direction)
		os.Exit(2)
	}

	fmt.Println("Migration completed successfully")
}
