package etl

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"weather-etl/internal/models"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// Pipeline is one schema's extract, transform and load stages. R is the raw
// row type produced by Extract and T the typed record handed to Load.
type Pipeline[R, T any] interface {
	Schema() Schema
	Extract(r io.Reader) ([]R, error)
	Transform(rows []R, stationID string) ([]T, TransformReport)
	Load(ctx context.Context, records []T) (LoadResult, error)
}

// Summary is the feedback returned for one ingested file.
type Summary struct {
	RunID             string          `json:"run_id"`
	Filename          string          `json:"filename"`
	StationID         string          `json:"station_id"`
	Schema            Schema          `json:"schema"`
	TotalRecords      int             `json:"total_records"`
	ValidRecords      int             `json:"valid_records"`
	InsertedRecords   int64           `json:"inserted_records"`
	InsertedEstimated bool            `json:"inserted_estimated"`
	Batches           int             `json:"batches"`
	TimeTaken         float64         `json:"time_taken"`
	Transform         TransformReport `json:"transform"`
}

// Runner runs a pipeline whose record types are already bound.
type Runner interface {
	Schema() Schema
	Run(ctx context.Context, r io.Reader, filename string) (*Summary, error)
	Preview(r io.Reader, filename string) (*Summary, error)
}

// Run executes extract, transform and load for one file. The station ID is
// taken from filename. Elapsed time covers the three stages and is rounded to
// hundredths of a second. Any error aborts the run and no summary is returned,
// even though batches committed by the loader before the error stay committed.
func Run[R, T any](ctx context.Context, p Pipeline[R, T], r io.Reader, filename string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*Summary, error) {
	stationID, err := StationIDFromFilename(filename)
	if err != nil {
		return nil, err
	}

	schema := p.Schema()
	summary := &Summary{
		RunID:     uuid.NewString(),
		Filename:  filename,
		StationID: stationID,
		Schema:    schema,
	}
	log := logger.WithFields(logging.Fields{
		"run_id":     summary.RunID,
		"station_id": stationID,
		"schema":     string(schema),
	})

	timer := metricsCollector.NewTimer(metricsCollector.IngestionDuration.WithLabelValues(string(schema)))
	started := time.Now()

	log.Info(ctx, "[ETL_EXTRACT] Extracting records", logging.Fields{"filename": filename})
	raw, err := p.Extract(r)
	if err != nil {
		metricsCollector.RecordIngestionError("parse_failure")
		metricsCollector.RecordIngestionFile(string(schema), "failed")
		log.Error(ctx, "[ETL_EXTRACT_ERROR] Extraction failed", logging.Fields{"filename": filename}, err)
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	summary.TotalRecords = len(raw)
	metricsCollector.RecordIngestionRecords(string(schema), "parsed", len(raw))

	records, report := p.Transform(raw, stationID)
	summary.Transform = report
	summary.ValidRecords = len(records)
	metricsCollector.RecordIngestionRecords(string(schema), "valid", len(records))
	log.Info(ctx, "[ETL_TRANSFORM] Records transformed", logging.Fields{
		"input_rows":      report.InputRows,
		"output_rows":     report.OutputRows,
		"invalid_dates":   report.InvalidDates,
		"invalid_values":  report.InvalidValues,
		"dropped_empty":   report.DroppedEmpty,
		"dropped_keyless": report.DroppedKeyless,
		"duplicates":      report.Duplicates,
	})

	loaded, err := p.Load(ctx, records)
	if err != nil {
		metricsCollector.RecordIngestionRecords(string(schema), "inserted", int(loaded.Inserted))
		metricsCollector.RecordIngestionFile(string(schema), "failed")
		return nil, fmt.Errorf("load %s: %w", filename, err)
	}
	summary.InsertedRecords = loaded.Inserted
	summary.InsertedEstimated = loaded.Estimated
	summary.Batches = loaded.Batches
	metricsCollector.RecordIngestionRecords(string(schema), "inserted", int(loaded.Inserted))
	metricsCollector.RecordIngestionRecords(string(schema), "skipped", int(loaded.Skipped))

	summary.TimeTaken = roundSeconds(time.Since(started))
	timer.ObserveDuration()
	metricsCollector.RecordIngestionFile(string(schema), "succeeded")

	log.Info(ctx, "[ETL_COMPLETE] File ingested", logging.Fields{
		"total_records":      summary.TotalRecords,
		"valid_records":      summary.ValidRecords,
		"inserted_records":   summary.InsertedRecords,
		"inserted_estimated": summary.InsertedEstimated,
		"batches":            summary.Batches,
		"time_taken":         summary.TimeTaken,
	})

	return summary, nil
}

// Preview runs extract and transform only. Nothing is written, so the summary
// carries no inserted count.
func Preview[R, T any](p Pipeline[R, T], r io.Reader, filename string) (*Summary, error) {
	stationID, err := StationIDFromFilename(filename)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	raw, err := p.Extract(r)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	records, report := p.Transform(raw, stationID)

	return &Summary{
		Filename:     filename,
		StationID:    stationID,
		Schema:       p.Schema(),
		TotalRecords: len(raw),
		ValidRecords: len(records),
		TimeTaken:    roundSeconds(time.Since(started)),
		Transform:    report,
	}, nil
}

// Bind fixes a pipeline's type parameters so it can be selected at runtime.
func Bind[R, T any](p Pipeline[R, T], logger *logging.StructuredLogger, metricsCollector *metrics.Collector) Runner {
	return &boundRunner[R, T]{pipeline: p, logger: logger, metrics: metricsCollector}
}

type boundRunner[R, T any] struct {
	pipeline Pipeline[R, T]
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

func (b *boundRunner[R, T]) Schema() Schema {
	return b.pipeline.Schema()
}

func (b *boundRunner[R, T]) Run(ctx context.Context, r io.Reader, filename string) (*Summary, error) {
	return Run(ctx, b.pipeline, r, filename, b.logger, b.metrics)
}

func (b *boundRunner[R, T]) Preview(r io.Reader, filename string) (*Summary, error) {
	return Preview(b.pipeline, r, filename)
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}

// WeatherPipeline ingests four-column daily weather files.
type WeatherPipeline struct {
	loader *Loader[models.WeatherRecord]
}

// NewWeatherPipeline creates the weather pipeline on top of loader.
func NewWeatherPipeline(loader *Loader[models.WeatherRecord]) *WeatherPipeline {
	return &WeatherPipeline{loader: loader}
}

func (p *WeatherPipeline) Schema() Schema { return SchemaWeather }

func (p *WeatherPipeline) Extract(r io.Reader) ([]RawWeatherRow, error) {
	return ExtractWeather(r)
}

func (p *WeatherPipeline) Transform(rows []RawWeatherRow, stationID string) ([]models.WeatherRecord, TransformReport) {
	return TransformWeather(rows, stationID)
}

func (p *WeatherPipeline) Load(ctx context.Context, records []models.WeatherRecord) (LoadResult, error) {
	return p.loader.Load(ctx, records)
}

// CropYieldPipeline ingests two-column yearly crop-yield files.
type CropYieldPipeline struct {
	loader *Loader[models.CropYieldRecord]
}

// NewCropYieldPipeline creates the crop-yield pipeline on top of loader.
func NewCropYieldPipeline(loader *Loader[models.CropYieldRecord]) *CropYieldPipeline {
	return &CropYieldPipeline{loader: loader}
}

func (p *CropYieldPipeline) Schema() Schema { return SchemaCropYield }

func (p *CropYieldPipeline) Extract(r io.Reader) ([]RawCropYieldRow, error) {
	return ExtractCropYield(r)
}

func (p *CropYieldPipeline) Transform(rows []RawCropYieldRow, stationID string) ([]models.CropYieldRecord, TransformReport) {
	return TransformCropYield(rows, stationID)
}

func (p *CropYieldPipeline) Load(ctx context.Context, records []models.CropYieldRecord) (LoadResult, error) {
	return p.loader.Load(ctx, records)
}
