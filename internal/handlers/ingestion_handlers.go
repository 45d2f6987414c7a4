package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"weather-etl/internal/etl"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temporary file.
const multipartMemory = 32 << 20

// Ingester runs the ingestion pipeline for one uploaded file
type Ingester interface {
	Ingest(ctx context.Context, r io.ReadSeeker, filename string) (*etl.Summary, error)
}

// Migrator applies pending schema migrations and returns their versions
type Migrator interface {
	Up(ctx context.Context) ([]string, error)
}

// IngestionHandler handles file upload and schema migration endpoints
type IngestionHandler struct {
	ingester       Ingester
	migrator       Migrator
	maxUploadBytes int64
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// UploadResponse is returned for a successfully ingested file
type UploadResponse struct {
	Message string `json:"message"`
	*etl.Summary
}

// NewIngestionHandler creates a new ingestion handler. migrator may be nil,
// in which case the migrate endpoint is not registered.
func NewIngestionHandler(
	ingester Ingester,
	migrator Migrator,
	maxUploadBytes int64,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *IngestionHandler {
	return &IngestionHandler{
		ingester:       ingester,
		migrator:       migrator,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// UploadFile handles POST /api/upload_file
func (h *IngestionHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/upload_file").Observe(time.Since(startTime).Seconds())
	}()

	if h.maxUploadBytes > 0 {
		if r.ContentLength > h.maxUploadBytes {
			h.metrics.RecordAPIError("upload_too_large", "/api/upload_file")
			h.sendError(w, r, "upload exceeds the maximum allowed size", http.StatusRequestEntityTooLarge, nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.sendError(w, r, "upload exceeds the maximum allowed size", http.StatusRequestEntityTooLarge, nil)
			return
		}
		h.sendError(w, r, "expected a multipart/form-data body with a 'file' field", http.StatusBadRequest, nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.sendError(w, r, "missing 'file' field in upload", http.StatusBadRequest, nil)
		return
	}
	defer file.Close()

	h.logger.Info(ctx, "[API_UPLOAD] File received", logging.Fields{
		"filename": header.Filename,
		"size":     header.Size,
	})

	summary, err := h.ingester.Ingest(ctx, file, header.Filename)
	if err != nil {
		h.handleIngestError(w, r, header.Filename, err)
		return
	}

	h.metrics.RecordAPIRequest("/api/upload_file", "POST", "200")
	sendJSON(w, UploadResponse{
		Message: "File processed successfully",
		Summary: summary,
	}, http.StatusOK)
}

// handleIngestError maps pipeline errors onto HTTP responses
func (h *IngestionHandler) handleIngestError(w http.ResponseWriter, r *http.Request, filename string, err error) {
	ctx := r.Context()

	var (
		formatErr *etl.UnrecognizedFormatError
		parseErr  *etl.ParseError
		loadErr   *etl.LoadError
	)

	switch {
	case errors.As(err, &formatErr):
		h.metrics.RecordAPIError("unrecognized_format", "/api/upload_file")
		h.sendError(w, r, "unrecognized file format", http.StatusBadRequest, map[string]interface{}{
			"columns": formatErr.Columns,
		})

	case errors.Is(err, etl.ErrInvalidFilename):
		h.metrics.RecordAPIError("invalid_filename", "/api/upload_file")
		h.sendError(w, r, err.Error(), http.StatusBadRequest, nil)

	case errors.As(err, &parseErr):
		h.metrics.RecordAPIError("parse_failure", "/api/upload_file")
		h.sendError(w, r, parseErr.Error(), http.StatusBadRequest, map[string]interface{}{
			"line": parseErr.Line,
		})

	case errors.As(err, &loadErr):
		h.logger.Error(ctx, "[API_UPLOAD_ERROR] Load failed, earlier batches remain committed", logging.Fields{
			"filename":  filename,
			"batch":     loadErr.Batch,
			"committed": loadErr.Committed,
		}, err)
		h.metrics.RecordAPIError("load_failure", "/api/upload_file")
		h.sendError(w, r, "failed to load records", http.StatusInternalServerError, map[string]interface{}{
			"batch":             loadErr.Batch,
			"committed_records": loadErr.Committed,
			"retryable":         loadErr.IsTransient(),
		})

	default:
		h.logger.Error(ctx, "[API_UPLOAD_ERROR] Ingestion failed", logging.Fields{
			"filename": filename,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/upload_file")
		h.sendError(w, r, "failed to process file", http.StatusInternalServerError, nil)
	}
}

// Migrate handles POST /api/migrate
func (h *IngestionHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	applied, err := h.migrator.Up(ctx)
	if err != nil {
		h.logger.Error(ctx, "[API_MIGRATE_ERROR] Migration failed", logging.Fields{
			"applied": applied,
		}, err)
		h.metrics.RecordAPIError("migration_failure", "/api/migrate")
		h.sendError(w, r, "migration failed", http.StatusInternalServerError, map[string]interface{}{
			"applied": applied,
		})
		return
	}

	message := "Database is up to date"
	if len(applied) > 0 {
		message = "Migrations applied successfully"
	}

	h.metrics.RecordAPIRequest("/api/migrate", "POST", "200")
	sendJSON(w, map[string]interface{}{
		"message": message,
		"applied": applied,
	}, http.StatusOK)
}

// sendError sends an error response
func (h *IngestionHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int, details map[string]interface{}) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))
	sendJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
		Details: details,
	}, statusCode)
}

// RegisterRoutes registers the upload and migration routes
func (h *IngestionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/upload_file", h.UploadFile).Methods("POST")
	if h.migrator != nil {
		router.HandleFunc("/api/migrate", h.Migrate).Methods("POST")
	}
}
