package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-query-service/internal/circuitbreaker"
	"github.com/kjstillabower/climate-query-service/internal/lifecycle"
	"github.com/kjstillabower/climate-query-service/internal/observability"
	"github.com/kjstillabower/climate-query-service/internal/service"
	"github.com/kjstillabower/climate-query-service/internal/traffic"
	"github.com/kjstillabower/climate-query-service/internal/validation"
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// PingTimeout bounds the store ping; zero means 2s.
	PingTimeout time.Duration
	Version     string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	climate          *service.ClimateService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil.
func NewHandler(climate *service.ClimateService, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	return &Handler{
		climate:      climate,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetPrecipitation handles GET /api/v1.0/precipitation.
func (h *Handler) GetPrecipitation(w http.ResponseWriter, r *http.Request) {
	result, err := h.climate.Precipitation(r.Context())
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetStations handles GET /api/v1.0/stations.
func (h *Handler) GetStations(w http.ResponseWriter, r *http.Request) {
	result, err := h.climate.Stations(r.Context())
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetTobs handles GET /api/v1.0/tobs.
func (h *Handler) GetTobs(w http.ResponseWriter, r *http.Request) {
	result, err := h.climate.TemperatureObservations(r.Context())
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetStartRange handles GET /api/v1.0/{start}.
func (h *Handler) GetStartRange(w http.ResponseWriter, r *http.Request) {
	result, err := h.climate.TemperatureStatsFrom(r.Context(), mux.Vars(r)["start"])
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetStartEndRange handles GET /api/v1.0/{start}/{end}.
func (h *Handler) GetStartEndRange(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := h.climate.TemperatureStatsRange(r.Context(), vars["start"], vars["end"])
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	version := "dev"
	if h.healthConfig != nil && h.healthConfig.Version != "" {
		version = h.healthConfig.Version
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   version,
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > store unreachable > breaker open > error rate breach > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	breakerState := h.climate.BreakerState()
	checks := map[string]string{
		"store":          "healthy",
		"circuitBreaker": breakerState.String(),
	}

	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}

	pingTimeout := 2 * time.Second
	if h.healthConfig != nil && h.healthConfig.PingTimeout > 0 {
		pingTimeout = h.healthConfig.PingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := h.climate.Ping(pingCtx); err != nil {
		checks["store"] = "unhealthy"
		observability.LoggerFromContext(ctx).Debug("health ping failed", zap.Error(err))
		return healthResult{"degraded", http.StatusServiceUnavailable, "store_unreachable", checks}
	}

	if breakerState == circuitbreaker.StateOpen {
		return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open", checks}
	}

	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errors, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errors) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", checks}
			}
		}
	}

	return healthResult{"healthy", http.StatusOK, "", checks}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeQueryError maps service errors: bad dates are 400, everything else is a 503.
func writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, validation.ErrInvalidDate):
		writeError(w, r, http.StatusBadRequest, "INVALID_DATE", err.Error())
	case errors.Is(err, validation.ErrInvalidRange):
		writeError(w, r, http.StatusBadRequest, "INVALID_RANGE", err.Error())
	default:
		writeError(w, r, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Unable to read climate data")
		observability.LoggerFromContext(r.Context()).Debug("storage error", zap.Error(err))
	}
}
