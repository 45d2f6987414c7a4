package services

import (
	"context"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// WeatherService handles read access to weather and crop-yield data
type WeatherService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherService creates a new weather service
func NewWeatherService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WeatherService {
	return &WeatherService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ListWeather retrieves weather records with filtering and ordering
func (s *WeatherService) ListWeather(ctx context.Context, filter repository.WeatherFilter) ([]models.WeatherRecord, int, error) {
	return s.repo.ListWeather(ctx, filter)
}

// ListCropYields retrieves crop yields with filtering
func (s *WeatherService) ListCropYields(ctx context.Context, filter repository.CropYieldFilter) ([]models.CropYieldRecord, int, error) {
	return s.repo.ListCropYields(ctx, filter)
}

// ListStations retrieves summaries of all stations with observations
func (s *WeatherService) ListStations(ctx context.Context, limit, offset int) ([]models.StationSummary, int, error) {
	return s.repo.ListStations(ctx, limit, offset)
}

// GetStation retrieves a single station summary
func (s *WeatherService) GetStation(ctx context.Context, stationID string) (*models.StationSummary, error) {
	return s.repo.GetStation(ctx, stationID)
}

// HealthCheck checks the backing store
func (s *WeatherService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
