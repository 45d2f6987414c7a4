package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"weather-etl/internal/etl"
	"weather-etl/internal/models"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// maxBindParams is PostgreSQL's limit on bind parameters per statement.
const maxBindParams = 65535

// TableSpec describes how records of type T map onto an insert-or-skip table.
type TableSpec[T any] struct {
	Name        string
	Columns     []string
	ConflictKey []string
	Values      func(T) []interface{}
}

// WeatherTable maps WeatherRecord onto weather_data.
var WeatherTable = TableSpec[models.WeatherRecord]{
	Name:        "weather_data",
	Columns:     []string{"station_id", "date", "max_temp", "min_temp", "precipitation"},
	ConflictKey: []string{"station_id", "date"},
	Values: func(r models.WeatherRecord) []interface{} {
		return []interface{}{r.StationID, r.Date, r.MaxTemp, r.MinTemp, r.Precipitation}
	},
}

// CropYieldTable maps CropYieldRecord onto crop_yield_data.
var CropYieldTable = TableSpec[models.CropYieldRecord]{
	Name:        "crop_yield_data",
	Columns:     []string{"station_id", "year", "yield_value"},
	ConflictKey: []string{"station_id", "year"},
	Values: func(r models.CropYieldRecord) []interface{} {
		return []interface{}{r.StationID, r.Year, r.YieldValue}
	},
}

// UpsertWriter commits batches with INSERT ... ON CONFLICT DO NOTHING, one
// transaction per batch. It implements etl.BatchWriter.
type UpsertWriter[T any] struct {
	db      *database.PostgresDB
	spec    TableSpec[T]
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewUpsertWriter creates a writer for spec.
func NewUpsertWriter[T any](db *database.PostgresDB, spec TableSpec[T], logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *UpsertWriter[T] {
	return &UpsertWriter[T]{
		db:      db,
		spec:    spec,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// NewWeatherWriter creates the writer for weather_data.
func NewWeatherWriter(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *UpsertWriter[models.WeatherRecord] {
	return NewUpsertWriter(db, WeatherTable, logger, metricsCollector)
}

// NewCropYieldWriter creates the writer for crop_yield_data.
func NewCropYieldWriter(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *UpsertWriter[models.CropYieldRecord] {
	return NewUpsertWriter(db, CropYieldTable, logger, metricsCollector)
}

// Table returns the target table name.
func (w *UpsertWriter[T]) Table() string {
	return w.spec.Name
}

// WriteBatch inserts batch in a single transaction. Rows that collide with an
// existing natural key are skipped. The batch is split into several statements
// only when it would exceed the bind parameter limit.
func (w *UpsertWriter[T]) WriteBatch(ctx context.Context, batch []T) (etl.BatchResult, error) {
	result := etl.BatchResult{Exact: true}
	if len(batch) == 0 {
		return result, nil
	}

	timer := time.Now()
	rowsPerStatement := maxBindParams / len(w.spec.Columns)

	err := w.db.InTx(ctx, "upsert_"+w.spec.Name, func(tx *sqlx.Tx) error {
		for start := 0; start < len(batch); start += rowsPerStatement {
			end := min(start+rowsPerStatement, len(batch))
			query, args := w.insertStatement(batch[start:end])

			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("failed to insert into %s: %w", w.spec.Name, err)
			}

			n, err := res.RowsAffected()
			if err != nil {
				result.Exact = false
				result.Inserted += int64(end - start)
				continue
			}
			result.Inserted += n
		}
		return nil
	})
	if err != nil {
		w.metrics.RecordDBError("upsert_error")
		return etl.BatchResult{}, err
	}

	w.logger.Debug(ctx, "[REPO_UPSERT] Batch committed", logging.Fields{
		"table":       w.spec.Name,
		"count":       len(batch),
		"inserted":    result.Inserted,
		"exact":       result.Exact,
		"duration_ms": time.Since(timer).Milliseconds(),
	})

	return result, nil
}

// insertStatement builds one multi-row insert for rows.
func (w *UpsertWriter[T]) insertStatement(rows []T) (string, []interface{}) {
	width := len(w.spec.Columns)
	args := make([]interface{}, 0, len(rows)*width)

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", w.spec.Name, strings.Join(w.spec.Columns, ", "))

	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := 0; j < width; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*width+j+1)
		}
		b.WriteByte(')')
		args = append(args, w.spec.Values(row)...)
	}

	fmt.Fprintf(&b, " ON CONFLICT (%s) DO NOTHING", strings.Join(w.spec.ConflictKey, ", "))
	return b.String(), args
}
