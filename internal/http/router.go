package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-query-service/internal/observability"
)

// APIPrefix is the path prefix of the data routes.
const APIPrefix = "/api/v1.0"

// NewRouter wires routes and middleware. The literal routes are registered
// before /{start} so "precipitation", "stations" and "tobs" never reach the
// date handlers. Correlation IDs wrap the whole router so 404 and 405
// responses carry one too.
func NewRouter(h *Handler, logger *zap.Logger, requestTimeout time.Duration) http.Handler {
	router := mux.NewRouter()
	router.Use(globalInFlightTracker.Middleware)
	router.Use(MetricsMiddleware)
	router.Use(RequestLogMiddleware)

	router.HandleFunc("/", h.Welcome).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	// Full paths on the root router; under a PathPrefix subrouter a wrong
	// method answers 404 instead of 405.
	withTimeout := TimeoutMiddleware(requestTimeout)
	data := func(path string, fn http.HandlerFunc) {
		router.Handle(APIPrefix+path, withTimeout(fn)).Methods(http.MethodGet)
	}
	data("/precipitation", h.GetPrecipitation)
	data("/stations", h.GetStations)
	data("/tobs", h.GetTobs)
	data("/{start}", h.GetStartRange)
	data("/{start}/{end}", h.GetStartEndRange)

	return CorrelationIDMiddleware(logger)(router)
}
