package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"weather-etl/internal/etl"
	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

func newTestMetrics() *metrics.Collector {
	return metrics.NewCollector("services_test", prometheus.NewRegistry())
}

// keyedWriter is an insert-or-skip BatchWriter backed by a map.
type keyedWriter[T any] struct {
	key    func(T) string
	stored map[string]T
}

func newKeyedWriter[T any](key func(T) string) *keyedWriter[T] {
	return &keyedWriter[T]{key: key, stored: make(map[string]T)}
}

func (w *keyedWriter[T]) Table() string { return "memory" }

func (w *keyedWriter[T]) WriteBatch(ctx context.Context, batch []T) (etl.BatchResult, error) {
	var inserted int64
	for _, rec := range batch {
		k := w.key(rec)
		if _, ok := w.stored[k]; ok {
			continue
		}
		w.stored[k] = rec
		inserted++
	}
	return etl.BatchResult{Inserted: inserted, Exact: true}, nil
}

type memoryStore struct {
	weather *keyedWriter[models.WeatherRecord]
	crops   *keyedWriter[models.CropYieldRecord]
}

func newMemoryIngestionService() (*IngestionService, *memoryStore) {
	logger := logging.NewNopLogger()
	m := newTestMetrics()
	store := &memoryStore{
		weather: newKeyedWriter(func(r models.WeatherRecord) string {
			return r.StationID + "|" + r.Date.Format(models.DateLayout)
		}),
		crops: newKeyedWriter(func(r models.CropYieldRecord) string {
			return fmt.Sprintf("%s|%d", r.StationID, r.Year)
		}),
	}

	weatherLoader := etl.NewLoader[models.WeatherRecord](store.weather, 2, logger, m)
	cropLoader := etl.NewLoader[models.CropYieldRecord](store.crops, 2, logger, m)

	svc := NewIngestionService([]etl.Runner{
		etl.Bind[etl.RawWeatherRow, models.WeatherRecord](etl.NewWeatherPipeline(weatherLoader), logger, m),
		etl.Bind[etl.RawCropYieldRow, models.CropYieldRecord](etl.NewCropYieldPipeline(cropLoader), logger, m),
	}, 0, logger, m)
	return svc, store
}

const (
	weatherData = "19850101\t-22\t-128\t94\n19850102\t-122\t-217\t0\n19850103\t-106\t-244\t-9999\n"
	cropData    = "1985\t225447\n1986\t208944\n"
)

func TestIngestionService_DispatchesBySchema(t *testing.T) {
	svc, store := newMemoryIngestionService()
	ctx := context.Background()

	summary, err := svc.Ingest(ctx, strings.NewReader(weatherData), "USC00110072.txt")
	if err != nil {
		t.Fatalf("Ingest(weather) error = %v", err)
	}
	if summary.Schema != etl.SchemaWeather || summary.TotalRecords != 3 || summary.InsertedRecords != 3 {
		t.Errorf("weather summary = %+v", summary)
	}

	summary, err = svc.Ingest(ctx, strings.NewReader(cropData), "US_corn_grain_yield.txt")
	if err != nil {
		t.Fatalf("Ingest(crop) error = %v", err)
	}
	if summary.Schema != etl.SchemaCropYield || summary.InsertedRecords != 2 {
		t.Errorf("crop summary = %+v", summary)
	}

	if len(store.weather.stored) != 3 || len(store.crops.stored) != 2 {
		t.Errorf("stored %d weather and %d crop rows, want 3 and 2", len(store.weather.stored), len(store.crops.stored))
	}
}

func TestIngestionService_SecondUploadInsertsNothing(t *testing.T) {
	svc, _ := newMemoryIngestionService()
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, strings.NewReader(weatherData), "USC00110072.txt"); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	summary, err := svc.Ingest(ctx, strings.NewReader(weatherData), "USC00110072.txt")
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if summary.TotalRecords != 3 || summary.InsertedRecords != 0 {
		t.Errorf("second Ingest() = %+v, want 3 total and 0 inserted", summary)
	}
}

func TestIngestionService_UnrecognizedFormat(t *testing.T) {
	svc, store := newMemoryIngestionService()

	_, err := svc.Ingest(context.Background(), strings.NewReader("a\tb\tc\n"), "odd.txt")

	var ufe *etl.UnrecognizedFormatError
	if !errors.As(err, &ufe) || ufe.Columns != 3 {
		t.Fatalf("Ingest() error = %v, want UnrecognizedFormatError with 3 columns", err)
	}
	if len(store.weather.stored)+len(store.crops.stored) != 0 {
		t.Error("no records should be written for an unrecognized file")
	}
}

func TestIngestionService_Preview(t *testing.T) {
	svc, store := newMemoryIngestionService()

	summary, err := svc.Preview(context.Background(), strings.NewReader(weatherData), "USC00110072.txt")
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if summary.ValidRecords != 3 || summary.InsertedRecords != 0 {
		t.Errorf("Preview() = %+v", summary)
	}
	if len(store.weather.stored) != 0 {
		t.Error("Preview() must not write records")
	}
}

func TestIngestionService_MissingRunner(t *testing.T) {
	svc := NewIngestionService(nil, 0, logging.NewNopLogger(), newTestMetrics())

	_, err := svc.Ingest(context.Background(), strings.NewReader(cropData), "x.txt")
	if err == nil || !strings.Contains(err.Error(), "no pipeline registered") {
		t.Fatalf("Ingest() error = %v, want missing pipeline error", err)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", name, err)
	}
}

func TestIngestionService_IngestDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "USC00110072.txt", weatherData)
	writeFile(t, dir, "USC00110073.txt", "19850101\t1\t2\t3\n")
	writeFile(t, dir, "broken.txt", "a\tb\tc\n")
	writeFile(t, dir, "notes.md", "ignored")

	svc, store := newMemoryIngestionService()

	result, err := svc.IngestDirectory(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("IngestDirectory() error = %v", err)
	}

	if result.TotalFiles != 3 || result.SucceededFiles != 2 {
		t.Errorf("files total/succeeded = %d/%d, want 3/2", result.TotalFiles, result.SucceededFiles)
	}
	if result.TotalRecords != 4 || result.InsertedRecords != 4 {
		t.Errorf("records total/inserted = %d/%d, want 4/4", result.TotalRecords, result.InsertedRecords)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "broken.txt") {
		t.Errorf("Errors = %v, want one error for broken.txt", result.Errors)
	}
	if len(store.weather.stored) != 4 {
		t.Errorf("stored %d weather rows, want 4", len(store.weather.stored))
	}
}

func TestIngestionService_IngestDirectoryEmpty(t *testing.T) {
	svc, _ := newMemoryIngestionService()

	if _, err := svc.IngestDirectory(context.Background(), t.TempDir(), false); err == nil {
		t.Fatal("IngestDirectory() on an empty directory should fail")
	}
}

func TestIngestionService_IngestDirectoryDryRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "USC00110072.txt", weatherData)

	svc, store := newMemoryIngestionService()

	result, err := svc.IngestDirectory(context.Background(), dir, true)
	if err != nil {
		t.Fatalf("IngestDirectory() error = %v", err)
	}
	if result.TotalRecords != 3 || result.InsertedRecords != 0 || len(store.weather.stored) != 0 {
		t.Errorf("dry run result = %+v, stored %d", result, len(store.weather.stored))
	}
}

// stubRepository serves canned read results.
type stubRepository struct {
	stats []models.StatsRecord
	err   error
}

func (s *stubRepository) ListWeather(ctx context.Context, filter repository.WeatherFilter) ([]models.WeatherRecord, int, error) {
	return nil, 0, s.err
}

func (s *stubRepository) ListStats(ctx context.Context, filter repository.StatsFilter) ([]models.StatsRecord, int, error) {
	return s.stats, len(s.stats), s.err
}

func (s *stubRepository) ListCropYields(ctx context.Context, filter repository.CropYieldFilter) ([]models.CropYieldRecord, int, error) {
	return nil, 0, s.err
}

func (s *stubRepository) ListStations(ctx context.Context, limit, offset int) ([]models.StationSummary, int, error) {
	return nil, 0, s.err
}

func (s *stubRepository) GetStation(ctx context.Context, stationID string) (*models.StationSummary, error) {
	return nil, &repository.NotFoundError{Resource: "station", ID: stationID}
}

func (s *stubRepository) HealthCheck(ctx context.Context) error {
	return s.err
}

func TestStatisticsService_SanitizesNonFiniteAggregates(t *testing.T) {
	repo := &stubRepository{stats: []models.StatsRecord{
		{StationID: "USC00110072", Year: 1985, AvgMaxTemp: models.Float64(math.NaN()), AvgMinTemp: models.Float64(math.Inf(1)), TotalPrecipitation: models.Float64(12.5)},
		{StationID: "USC00110072", Year: 1986, AvgMaxTemp: models.Float64(20.1)},
	}}
	svc := NewStatisticsService(repo, logging.NewNopLogger(), newTestMetrics())

	stats, total, err := svc.GetStatistics(context.Background(), repository.StatsFilter{Limit: 100})
	if err != nil {
		t.Fatalf("GetStatistics() error = %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if stats[0].AvgMaxTemp != nil || stats[0].AvgMinTemp != nil {
		t.Errorf("non-finite aggregates should be nil, got %+v", stats[0])
	}
	if stats[0].TotalPrecipitation == nil || *stats[0].TotalPrecipitation != 12.5 {
		t.Errorf("finite aggregate changed: %v", stats[0].TotalPrecipitation)
	}

	body, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if strings.Contains(string(body), "NaN") || !strings.Contains(string(body), `"avg_max_temp":null`) {
		t.Errorf("JSON = %s, want null instead of NaN", body)
	}
}

func TestStatisticsService_PropagatesErrors(t *testing.T) {
	repoErr := errors.New("view missing")
	svc := NewStatisticsService(&stubRepository{err: repoErr}, logging.NewNopLogger(), newTestMetrics())

	if _, _, err := svc.GetStatistics(context.Background(), repository.StatsFilter{}); !errors.Is(err, repoErr) {
		t.Fatalf("GetStatistics() error = %v, want wrapped %v", err, repoErr)
	}
}

func TestWeatherService_GetStationNotFound(t *testing.T) {
	svc := NewWeatherService(&stubRepository{}, logging.NewNopLogger(), newTestMetrics())

	_, err := svc.GetStation(context.Background(), "nope")
	var nf *repository.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("GetStation() error = %v, want NotFoundError", err)
	}
}

func TestIngest_DetectionErrorsAreLabelled(t *testing.T) {
	m := newTestMetrics()
	svc := NewIngestionService(nil, 0, logging.NewNopLogger(), m)

	longLine := strings.Repeat("9", 70*1024) + "\t1\n"
	_, err := svc.Ingest(context.Background(), strings.NewReader(longLine), "long.txt")
	var parseErr *etl.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Ingest() error = %v, want ParseError", err)
	}

	_, err = svc.Ingest(context.Background(), strings.NewReader("a\tb\tc\n"), "three.txt")
	if !errors.Is(err, etl.ErrUnrecognizedFormat) {
		t.Fatalf("Ingest() error = %v, want ErrUnrecognizedFormat", err)
	}

	for label, want := range map[string]float64{"parse_failure": 1, "unrecognized_format": 1} {
		if got := testutil.ToFloat64(m.IngestionErrorsTotal.WithLabelValues(label)); got != want {
			t.Errorf("ingestion errors %s = %v, want %v", label, got, want)
		}
	}
}
