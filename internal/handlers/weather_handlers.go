package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/internal/services"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// WeatherHandler handles the read API endpoints
type WeatherHandler struct {
	weatherService *services.WeatherService
	statsService   *services.StatisticsService
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// NewWeatherHandler creates a new weather handler
func NewWeatherHandler(
	weatherService *services.WeatherService,
	statsService *services.StatisticsService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *WeatherHandler {
	return &WeatherHandler{
		weatherService: weatherService,
		statsService:   statsService,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Code    int                    `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	TotalRecords int         `json:"total_records"`
	Limit        int         `json:"limit"`
	Offset       int         `json:"offset"`
	Data         interface{} `json:"data"`
}

// GetWeather handles GET /api/weather
func (h *WeatherHandler) GetWeather(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/weather").Observe(time.Since(startTime).Seconds())
	}()

	filter, err := bindWeatherQuery(r.URL.Query())
	if err != nil {
		h.metrics.RecordAPIError("validation_error", "/api/weather")
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	records, total, err := h.weatherService.ListWeather(ctx, filter)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			h.sendError(w, r, verr.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error(ctx, "[API_GET_WEATHER_ERROR] Failed to get weather records", logging.Fields{
			"limit":  filter.Limit,
			"offset": filter.Offset,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/weather")
		h.sendError(w, r, "failed to retrieve weather records", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/weather", "GET", "200")
	sendJSON(w, PaginatedResponse{
		TotalRecords: total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
		Data:         records,
	}, http.StatusOK)
}

// GetStatistics handles GET /api/weather/stats
func (h *WeatherHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/weather/stats").Observe(time.Since(startTime).Seconds())
	}()

	filter, err := bindStatsQuery(r.URL.Query())
	if err != nil {
		h.metrics.RecordAPIError("validation_error", "/api/weather/stats")
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	stats, total, err := h.statsService.GetStatistics(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_STATISTICS_ERROR] Failed to get statistics", logging.Fields{
			"limit":  filter.Limit,
			"offset": filter.Offset,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/weather/stats")
		h.sendError(w, r, "failed to retrieve statistics", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/weather/stats", "GET", "200")
	sendJSON(w, PaginatedResponse{
		TotalRecords: total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
		Data:         stats,
	}, http.StatusOK)
}

// GetCropYields handles GET /api/crop_yield
func (h *WeatherHandler) GetCropYields(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/crop_yield").Observe(time.Since(startTime).Seconds())
	}()

	filter, err := bindCropYieldQuery(r.URL.Query())
	if err != nil {
		h.metrics.RecordAPIError("validation_error", "/api/crop_yield")
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	yields, total, err := h.weatherService.ListCropYields(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_CROP_YIELD_ERROR] Failed to get crop yields", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/crop_yield")
		h.sendError(w, r, "failed to retrieve crop yields", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/crop_yield", "GET", "200")
	sendJSON(w, PaginatedResponse{
		TotalRecords: total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
		Data:         yields,
	}, http.StatusOK)
}

// GetStations handles GET /api/stations
func (h *WeatherHandler) GetStations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := bindPageQuery(r.URL.Query())
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	stations, total, err := h.weatherService.ListStations(ctx, page.Limit, page.Offset)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_STATIONS_ERROR] Failed to list stations", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/stations")
		h.sendError(w, r, "failed to retrieve stations", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/stations", "GET", "200")
	sendJSON(w, PaginatedResponse{
		TotalRecords: total,
		Limit:        page.Limit,
		Offset:       page.Offset,
		Data:         stations,
	}, http.StatusOK)
}

// GetStation handles GET /api/stations/{station_id}
func (h *WeatherHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stationID := mux.Vars(r)["station_id"]

	station, err := h.weatherService.GetStation(ctx, stationID)
	if err != nil {
		var nf *repository.NotFoundError
		if errors.As(err, &nf) {
			h.sendError(w, r, nf.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_GET_STATION_ERROR] Failed to get station", logging.Fields{
			"station_id": stationID,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/stations/{station_id}")
		h.sendError(w, r, "failed to retrieve station", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/stations/{station_id}", "GET", "200")
	sendJSON(w, station, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *WeatherHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"database":  "up",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if err := h.weatherService.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK] Database unavailable", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		status["database"] = "down"
		code = http.StatusServiceUnavailable
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	sendJSON(w, status, code)
}

// sendError sends an error response
func (h *WeatherHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))
	sendJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// RegisterRoutes registers all read API routes
func (h *WeatherHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/weather", h.GetWeather).Methods("GET")
	router.HandleFunc("/api/weather/stats", h.GetStatistics).Methods("GET")
	router.HandleFunc("/api/crop_yield", h.GetCropYields).Methods("GET")
	router.HandleFunc("/api/stations", h.GetStations).Methods("GET")
	router.HandleFunc("/api/stations/{station_id}", h.GetStation).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
