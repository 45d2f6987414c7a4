package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weather-etl/internal/config"
	"weather-etl/internal/handlers"
	"weather-etl/internal/migrations"
	"weather-etl/internal/repository"
	"weather-etl/internal/services"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("weather-etl-api", version, logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting weather ETL API server", logging.Fields{
		"version":          version,
		"server_host":      cfg.Server.Host,
		"server_port":      cfg.Server.Port,
		"db_host":          cfg.Database.Host,
		"db_name":          cfg.Database.Database,
		"batch_size":       cfg.Ingestion.BatchSize,
		"max_upload_bytes": cfg.Ingestion.MaxUploadBytes,
	})

	metricsCollector := metrics.NewCollector("weather_etl", prometheus.DefaultRegisterer)

	db, err := database.NewPostgresDB(cfg.PostgresConfig(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	migrator, err := migrations.NewRunner(db, logger)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load migrations", logging.Fields{}, err)
	}

	// Repository and services
	weatherRepo := repository.NewWeatherRepository(db, logger, metricsCollector)
	weatherService := services.NewWeatherService(weatherRepo, logger, metricsCollector)
	statsService := services.NewStatisticsService(weatherRepo, logger, metricsCollector)
	ingestionService := services.NewPostgresIngestionService(
		db,
		cfg.Ingestion.BatchSize,
		cfg.Ingestion.SampleLines,
		logger,
		metricsCollector,
	)

	// Handlers
	weatherHandler := handlers.NewWeatherHandler(weatherService, statsService, logger, metricsCollector)
	ingestionHandler := handlers.NewIngestionHandler(
		ingestionService,
		migrator,
		cfg.Ingestion.MaxUploadBytes,
		logger,
		metricsCollector,
	)

	router := mux.NewRouter()
	router.Use(handlers.RequestID, handlers.AccessLog(logger))

	weatherHandler.RegisterRoutes(router)
	ingestionHandler.RegisterRoutes(router)
	handlers.RegisterDocsRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
