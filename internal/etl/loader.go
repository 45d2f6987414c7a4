package etl

import (
	"context"
	"time"

	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// DefaultBatchSize is the number of records committed per transaction.
const DefaultBatchSize = 5000

// BatchResult is what a BatchWriter reports for one committed batch.
type BatchResult struct {
	// Inserted is the number of new rows. When Exact is false the driver did
	// not report a row count and Inserted equals the batch length.
	Inserted int64
	Exact    bool
}

// BatchWriter commits one batch of records with insert-or-skip semantics on the
// table's natural key. A returned error means nothing from the batch was kept.
type BatchWriter[T any] interface {
	Table() string
	WriteBatch(ctx context.Context, batch []T) (BatchResult, error)
}

// LoadResult aggregates the batches of one Load call.
type LoadResult struct {
	Records   int   `json:"records"`
	Batches   int   `json:"batches"`
	Inserted  int64 `json:"inserted"`
	Skipped   int64 `json:"skipped"`
	Estimated bool  `json:"estimated"`
}

// Loader partitions records into batches and hands them to a BatchWriter in order.
type Loader[T any] struct {
	writer    BatchWriter[T]
	batchSize int
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewLoader creates a loader. A non-positive batchSize selects DefaultBatchSize.
func NewLoader[T any](writer BatchWriter[T], batchSize int, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Loader[T] {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Loader[T]{
		writer:    writer,
		batchSize: batchSize,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// BatchSize returns the configured batch size.
func (l *Loader[T]) BatchSize() int {
	return l.batchSize
}

// Load writes records batch by batch. Each batch commits on its own; the first
// failing batch stops the load with a *LoadError and later batches are never
// attempted. Cancellation of ctx is checked before every batch.
func (l *Loader[T]) Load(ctx context.Context, records []T) (LoadResult, error) {
	result := LoadResult{Records: len(records)}
	table := l.writer.Table()

	l.logger.Info(ctx, "[LOAD_START] Loading records", logging.Fields{
		"table":      table,
		"records":    len(records),
		"batch_size": l.batchSize,
	})

	for start, batchNum := 0, 1; start < len(records); start, batchNum = start+l.batchSize, batchNum+1 {
		end := min(start+l.batchSize, len(records))
		batch := records[start:end]

		if err := ctx.Err(); err != nil {
			return result, l.fail(ctx, table, batchNum, start, len(batch), result.Inserted, err)
		}

		began := time.Now()
		br, err := l.writer.WriteBatch(ctx, batch)
		if err != nil {
			l.metrics.RecordBatch(len(batch), time.Since(began), "failed")
			return result, l.fail(ctx, table, batchNum, start, len(batch), result.Inserted, err)
		}
		l.metrics.RecordBatch(len(batch), time.Since(began), "committed")

		if !br.Exact {
			result.Estimated = true
			l.metrics.IngestionEstimatedTotal.Inc()
		}
		result.Batches++
		result.Inserted += br.Inserted

		l.logger.Debug(ctx, "[LOAD_BATCH] Batch committed", logging.Fields{
			"table":       table,
			"batch":       batchNum,
			"first_row":   start + 1,
			"last_row":    end,
			"inserted":    br.Inserted,
			"exact":       br.Exact,
			"duration_ms": time.Since(began).Milliseconds(),
		})
	}

	result.Skipped = int64(result.Records) - result.Inserted
	if result.Skipped < 0 {
		result.Skipped = 0
	}

	l.logger.Info(ctx, "[LOAD_COMPLETE] Records loaded", logging.Fields{
		"table":     table,
		"batches":   result.Batches,
		"inserted":  result.Inserted,
		"skipped":   result.Skipped,
		"estimated": result.Estimated,
	})

	return result, nil
}

func (l *Loader[T]) fail(ctx context.Context, table string, batch, offset, size int, committed int64, cause error) error {
	loadErr := &LoadError{
		Batch:     batch,
		Offset:    offset,
		Size:      size,
		Committed: committed,
		Cause:     cause,
	}
	l.metrics.RecordIngestionError("load_failure")
	l.logger.Error(ctx, "[LOAD_ERROR] Batch failed, remaining batches not attempted", logging.Fields{
		"table":     table,
		"batch":     batch,
		"first_row": offset + 1,
		"last_row":  offset + size,
		"committed": committed,
		"transient": loadErr.IsTransient(),
	}, cause)
	return loadErr
}
