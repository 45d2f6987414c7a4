package services

import (
	"context"
	"fmt"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// StatisticsService serves the per station-year aggregates
type StatisticsService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	return &StatisticsService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetStatistics lists aggregates from weather_stats_view. Averages over zero
// contributing rows can come back as NaN or an infinity; those are returned
// as nil so they serialize as null.
func (s *StatisticsService) GetStatistics(ctx context.Context, filter repository.StatsFilter) ([]models.StatsRecord, int, error) {
	stats, total, err := s.repo.ListStats(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get statistics: %w", err)
	}

	sanitized := 0
	for i := range stats {
		before := stats[i]
		stats[i].Sanitize()
		if stats[i] != before {
			sanitized++
		}
	}

	if sanitized > 0 {
		s.logger.Debug(ctx, "[STATS_SANITIZE] Non-finite aggregates replaced with null", logging.Fields{
			"rows": sanitized,
		})
	}

	return stats, total, nil
}
