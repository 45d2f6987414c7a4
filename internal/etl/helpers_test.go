package etl

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"weather-etl/internal/models"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

var errBatchRejected = errors.New("batch rejected")

func newTestMetrics() *metrics.Collector {
	return metrics.NewCollector("etl_test", prometheus.NewRegistry())
}

// memoryWriter is an in-memory BatchWriter that honours a natural key with
// insert-or-skip semantics, optionally failing a given batch.
type memoryWriter[T any] struct {
	mu       sync.Mutex
	key      func(T) string
	failOn   int  // 1-based call number that fails, 0 = never
	inexact  bool // report batch length instead of an exact count
	calls    int
	batches  [][]T
	stored   map[string]T
	rejected int
}

func newMemoryWriter[T any](key func(T) string) *memoryWriter[T] {
	return &memoryWriter[T]{key: key, stored: make(map[string]T)}
}

func (m *memoryWriter[T]) Table() string { return "memory" }

func (m *memoryWriter[T]) WriteBatch(ctx context.Context, batch []T) (BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls == m.failOn {
		m.rejected++
		return BatchResult{}, fmt.Errorf("call %d: %w", m.calls, errBatchRejected)
	}

	var inserted int64
	for _, rec := range batch {
		k := m.key(rec)
		if _, exists := m.stored[k]; exists {
			continue
		}
		m.stored[k] = rec
		inserted++
	}
	m.batches = append(m.batches, append([]T(nil), batch...))

	if m.inexact {
		return BatchResult{Inserted: int64(len(batch)), Exact: false}, nil
	}
	return BatchResult{Inserted: inserted, Exact: true}, nil
}

func (m *memoryWriter[T]) batchSizes() []int {
	sizes := make([]int, len(m.batches))
	for i, b := range m.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func weatherKey(r models.WeatherRecord) string {
	return r.StationID + "|" + r.Date.Format(models.DateLayout)
}

func cropYieldKey(r models.CropYieldRecord) string {
	return fmt.Sprintf("%s|%d", r.StationID, r.Year)
}

func intKey(v int) string {
	return fmt.Sprint(v)
}

func nopLogger() *logging.StructuredLogger {
	return logging.NewNopLogger()
}
