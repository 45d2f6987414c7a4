package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"weather-etl/internal/models"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// WeatherRepository provides read access to ingested data
type WeatherRepository interface {
	// Weather operations
	ListWeather(ctx context.Context, filter WeatherFilter) ([]models.WeatherRecord, int, error)

	// Statistics operations
	ListStats(ctx context.Context, filter StatsFilter) ([]models.StatsRecord, int, error)

	// Crop yield operations
	ListCropYields(ctx context.Context, filter CropYieldFilter) ([]models.CropYieldRecord, int, error)

	// Station operations
	ListStations(ctx context.Context, limit, offset int) ([]models.StationSummary, int, error)
	GetStation(ctx context.Context, stationID string) (*models.StationSummary, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// WeatherFilter defines filters, ordering and pagination for weather rows
type WeatherFilter struct {
	StationID      *string
	StartDate      *time.Time
	EndDate        *time.Time
	Limit          int
	Offset         int
	OrderBy        string
	OrderDirection string
}

// StatsFilter defines filters for querying weather_stats_view
type StatsFilter struct {
	StationID *string
	Year      *int
	Limit     int
	Offset    int
}

// CropYieldFilter defines filters for querying crop yields
type CropYieldFilter struct {
	StationID *string
	Year      *int
	Limit     int
	Offset    int
}

// WeatherSortColumns maps accepted order_by values to columns.
var WeatherSortColumns = map[string]string{
	"id":            "id",
	"station_id":    "station_id",
	"date":          "date",
	"max_temp":      "max_temp",
	"min_temp":      "min_temp",
	"precipitation": "precipitation",
}

// weatherRepository implements WeatherRepository
type weatherRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherRepository creates a new weather repository
func NewWeatherRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ListWeather retrieves weather rows with filtering, ordering and pagination
func (r *weatherRepository) ListWeather(ctx context.Context, filter WeatherFilter) ([]models.WeatherRecord, int, error) {
	column, ok := WeatherSortColumns[filter.OrderBy]
	if !ok {
		if filter.OrderBy != "" {
			return nil, 0, &models.ValidationError{
				Field:   "order_by",
				Value:   filter.OrderBy,
				Message: "unsupported sort field",
			}
		}
		column = "date"
	}
	direction := "ASC"
	if strings.EqualFold(filter.OrderDirection, "desc") {
		direction = "DESC"
	}

	// Build query with filters
	query := `
		SELECT id, station_id, date, max_temp, min_temp, precipitation
		FROM weather_data
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.StationID != nil {
		query += fmt.Sprintf(" AND station_id = $%d", argNum)
		args = append(args, *filter.StationID)
		argNum++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND date >= $%d", argNum)
		args = append(args, *filter.StartDate)
		argNum++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND date <= $%d", argNum)
		args = append(args, *filter.EndDate)
		argNum++
	}

	// Get total count
	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_weather", &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count weather records: %w", err)
	}

	// id breaks ties so pages are stable
	query += fmt.Sprintf(" ORDER BY %s %s, id", column, direction)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	records := []models.WeatherRecord{}
	err = r.db.SelectContext(ctx, "list_weather", &records, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list weather records: %w", err)
	}

	return records, totalCount, nil
}

// ListStats retrieves per station-year aggregates from weather_stats_view
func (r *weatherRepository) ListStats(ctx context.Context, filter StatsFilter) ([]models.StatsRecord, int, error) {
	query := `
		SELECT station_id, year, avg_max_temp, avg_min_temp, total_precipitation
		FROM weather_stats_view
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.StationID != nil {
		query += fmt.Sprintf(" AND station_id = $%d", argNum)
		args = append(args, *filter.StationID)
		argNum++
	}

	if filter.Year != nil {
		query += fmt.Sprintf(" AND year = $%d", argNum)
		args = append(args, *filter.Year)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_stats", &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count statistics: %w", err)
	}

	query += " ORDER BY station_id, year"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	stats := []models.StatsRecord{}
	err = r.db.SelectContext(ctx, "list_stats", &stats, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list statistics: %w", err)
	}

	return stats, totalCount, nil
}

// ListCropYields retrieves crop yields with filtering and pagination
func (r *weatherRepository) ListCropYields(ctx context.Context, filter CropYieldFilter) ([]models.CropYieldRecord, int, error) {
	query := `
		SELECT id, station_id, year, yield_value
		FROM crop_yield_data
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.StationID != nil {
		query += fmt.Sprintf(" AND station_id = $%d", argNum)
		args = append(args, *filter.StationID)
		argNum++
	}

	if filter.Year != nil {
		query += fmt.Sprintf(" AND year = $%d", argNum)
		args = append(args, *filter.Year)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_crop_yields", &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count crop yields: %w", err)
	}

	query += " ORDER BY station_id, year"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	yields := []models.CropYieldRecord{}
	err = r.db.SelectContext(ctx, "list_crop_yields", &yields, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list crop yields: %w", err)
	}

	return yields, totalCount, nil
}

const stationSummarySelect = `
	SELECT station_id,
	       COUNT(*) AS observation_count,
	       MIN(date) AS first_date,
	       MAX(date) AS last_date
	FROM weather_data
`

// ListStations summarizes the stations that have weather observations
func (r *weatherRepository) ListStations(ctx context.Context, limit, offset int) ([]models.StationSummary, int, error) {
	var totalCount int
	err := r.db.GetContext(ctx, "count_stations", &totalCount,
		"SELECT COUNT(DISTINCT station_id) FROM weather_data")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count stations: %w", err)
	}

	query := stationSummarySelect + `
		GROUP BY station_id
		ORDER BY station_id
		LIMIT $1 OFFSET $2
	`

	stations := []models.StationSummary{}
	err = r.db.SelectContext(ctx, "list_stations", &stations, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list stations: %w", err)
	}

	return stations, totalCount, nil
}

// GetStation retrieves the summary of a single station
func (r *weatherRepository) GetStation(ctx context.Context, stationID string) (*models.StationSummary, error) {
	query := stationSummarySelect + `
		WHERE station_id = $1
		GROUP BY station_id
	`

	var station models.StationSummary
	err := r.db.GetContext(ctx, "get_station", &station, query, stationID)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "station",
			ID:       stationID,
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get station: %w", err)
	}

	return &station, nil
}

// HealthCheck performs a repository health check
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
