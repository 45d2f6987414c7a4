package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"weather-etl/internal/etl"
	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// IngestionService detects the schema of an uploaded file and runs the
// matching pipeline
type IngestionService struct {
	runners     map[etl.Schema]etl.Runner
	sampleLines int
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
}

// IngestionResult contains directory ingestion statistics
type IngestionResult struct {
	TotalFiles      int
	SucceededFiles  int
	TotalRecords    int
	InsertedRecords int64
	Files           []*etl.Summary
	Duration        time.Duration
	Errors          []string
}

// NewIngestionService creates an ingestion service over the given runners.
// A later runner for the same schema replaces an earlier one.
func NewIngestionService(runners []etl.Runner, sampleLines int, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	registry := make(map[etl.Schema]etl.Runner, len(runners))
	for _, r := range runners {
		registry[r.Schema()] = r
	}
	if sampleLines <= 0 {
		sampleLines = etl.DefaultSampleLines
	}
	return &IngestionService{
		runners:     registry,
		sampleLines: sampleLines,
		logger:      logger,
		metrics:     metricsCollector,
	}
}

// NewPostgresIngestionService wires the weather and crop-yield pipelines to
// their PostgreSQL tables
func NewPostgresIngestionService(db *database.PostgresDB, batchSize, sampleLines int, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	weatherLoader := etl.NewLoader[models.WeatherRecord](
		repository.NewWeatherWriter(db, logger, metricsCollector), batchSize, logger, metricsCollector)
	cropLoader := etl.NewLoader[models.CropYieldRecord](
		repository.NewCropYieldWriter(db, logger, metricsCollector), batchSize, logger, metricsCollector)

	return NewIngestionService([]etl.Runner{
		etl.Bind[etl.RawWeatherRow, models.WeatherRecord](etl.NewWeatherPipeline(weatherLoader), logger, metricsCollector),
		etl.Bind[etl.RawCropYieldRow, models.CropYieldRecord](etl.NewCropYieldPipeline(cropLoader), logger, metricsCollector),
	}, sampleLines, logger, metricsCollector)
}

// Ingest detects the schema of r and runs the matching pipeline. An
// unrecognized format is rejected before any row is parsed.
func (s *IngestionService) Ingest(ctx context.Context, r io.ReadSeeker, filename string) (*etl.Summary, error) {
	runner, err := s.runnerFor(ctx, r, filename)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, r, filename)
}

// Preview detects, extracts and transforms r without writing anything
func (s *IngestionService) Preview(ctx context.Context, r io.ReadSeeker, filename string) (*etl.Summary, error) {
	runner, err := s.runnerFor(ctx, r, filename)
	if err != nil {
		return nil, err
	}
	return runner.Preview(r, filename)
}

func (s *IngestionService) runnerFor(ctx context.Context, r io.ReadSeeker, filename string) (etl.Runner, error) {
	schema, err := etl.Detect(r, s.sampleLines)
	if err != nil {
		if errors.Is(err, etl.ErrUnrecognizedFormat) {
			s.metrics.RecordIngestionError("unrecognized_format")
			s.logger.Warn(ctx, "[INGEST_DETECT] File format not recognized", logging.Fields{
				"filename": filename,
				"error":    err.Error(),
			})
			return nil, err
		}
		s.metrics.RecordIngestionError("parse_failure")
		s.logger.Error(ctx, "[INGEST_DETECT_ERROR] Failed to sample file", logging.Fields{
			"filename": filename,
		}, err)
		return nil, err
	}

	runner, ok := s.runners[schema]
	if !ok {
		s.metrics.RecordIngestionError("no_pipeline")
		return nil, fmt.Errorf("no pipeline registered for schema %q", schema)
	}

	s.logger.Debug(ctx, "[INGEST_DETECT] File format detected", logging.Fields{
		"filename": filename,
		"schema":   string(schema),
	})
	return runner, nil
}

// IngestFile ingests (or, with dryRun, previews) a single file from disk
func (s *IngestionService) IngestFile(ctx context.Context, filePath string, dryRun bool) (*etl.Summary, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if dryRun {
		return s.Preview(ctx, file, filepath.Base(filePath))
	}
	return s.Ingest(ctx, file, filepath.Base(filePath))
}

// IngestDirectory ingests every *.txt file in dataDir. A failing file is
// recorded and the remaining files are still processed.
func (s *IngestionService) IngestDirectory(ctx context.Context, dataDir string, dryRun bool) (*IngestionResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"data_dir": dataDir,
		"dry_run":  dryRun,
		"stage":    "INITIALIZATION",
	})

	files, err := filepath.Glob(filepath.Join(dataDir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no data files found in %s", dataDir)
	}
	sort.Strings(files)

	result := &IngestionResult{
		TotalFiles: len(files),
		Errors:     make([]string, 0),
	}

	s.logger.Info(ctx, "[INGEST_FILES] Found data files", logging.Fields{
		"file_count": len(files),
		"stage":      "FILE_DISCOVERY",
	})

	for _, filePath := range files {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("stopped before %s: %v", filePath, err))
			break
		}

		summary, err := s.IngestFile(ctx, filePath, dryRun)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to ingest %s: %v", filePath, err))
			s.logger.Error(ctx, "[INGEST_FILE_ERROR] File ingestion failed", logging.Fields{
				"file_path": filePath,
				"stage":     "FILE_PROCESSING",
			}, err)
			continue
		}

		result.SucceededFiles++
		result.TotalRecords += summary.TotalRecords
		result.InsertedRecords += summary.InsertedRecords
		result.Files = append(result.Files, summary)
	}

	result.Duration = time.Since(startTime)

	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"total_files":      result.TotalFiles,
		"succeeded_files":  result.SucceededFiles,
		"total_records":    result.TotalRecords,
		"inserted_records": result.InsertedRecords,
		"duration_seconds": result.Duration.Seconds(),
		"error_count":      len(result.Errors),
		"stage":            "COMPLETE",
	})

	return result, nil
}
