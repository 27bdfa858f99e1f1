package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-query-service/internal/circuitbreaker"
	"github.com/kjstillabower/climate-query-service/internal/models"
	"github.com/kjstillabower/climate-query-service/internal/observability"
	"github.com/kjstillabower/climate-query-service/internal/store"
	"github.com/kjstillabower/climate-query-service/internal/traffic"
	"github.com/kjstillabower/climate-query-service/internal/validation"
)

// ErrStorageUnavailable wraps every store failure, timeout and open-breaker rejection.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ClimateService answers the climate queries. It holds no per-request state;
// every call reads the store afresh.
type ClimateService struct {
	store       store.ClimateStore
	breaker     *circuitbreaker.CircuitBreaker
	windowStart string
}

// NewClimateService creates a ClimateService. windowStart is the inclusive
// lower bound (YYYY-MM-DD) for the precipitation and tobs queries. breaker may be nil.
func NewClimateService(st store.ClimateStore, breaker *circuitbreaker.CircuitBreaker, windowStart string) *ClimateService {
	return &ClimateService{
		store:       st,
		breaker:     breaker,
		windowStart: windowStart,
	}
}

// WindowStart returns the inclusive lower bound of the "past year" window.
func (s *ClimateService) WindowStart() string {
	return s.windowStart
}

// Precipitation maps date to prcp for every observation on or after the window
// start. Dates shared by several stations keep the value of the last row in
// (date, station) order.
func (s *ClimateService) Precipitation(ctx context.Context) (map[string]*float64, error) {
	var readings []models.PrecipitationReading
	err := s.run(ctx, "precipitation", func(ctx context.Context) error {
		var err error
		readings, err = s.store.PrecipitationSince(ctx, s.windowStart)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]*float64, len(readings))
	for _, r := range readings {
		out[r.Date] = r.Prcp
	}
	return out, nil
}

// Stations returns station ids and names flattened as [id, name, id, name, ...].
func (s *ClimateService) Stations(ctx context.Context) ([]string, error) {
	var stations []models.Station
	err := s.run(ctx, "stations", func(ctx context.Context) error {
		var err error
		stations, err = s.store.Stations(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, 2*len(stations))
	for _, st := range stations {
		out = append(out, st.ID, st.Name)
	}
	return out, nil
}

// TemperatureObservations finds the most active station and returns its
// observations since the window start flattened as [date, tobs, date, tobs, ...].
// An empty dataset yields an empty slice.
func (s *ClimateService) TemperatureObservations(ctx context.Context) ([]any, error) {
	var readings []models.TemperatureReading
	var stationID string
	err := s.run(ctx, "tobs", func(ctx context.Context) error {
		active, ok, err := s.store.MostActiveStation(ctx)
		if err != nil || !ok {
			return err
		}
		stationID = active.StationID
		readings, err = s.store.TemperatureObservations(ctx, stationID, s.windowStart)
		return err
	})
	if err != nil {
		return nil, err
	}

	observability.LoggerFromContext(ctx).Debug("most active station",
		zap.String("station", stationID), zap.Int("observations", len(readings)))

	out := make([]any, 0, 2*len(readings))
	for _, r := range readings {
		out = append(out, r.Date, r.Tobs)
	}
	return out, nil
}

// TemperatureStatsFrom returns [min, avg, max] of tobs for dates on or after start.
func (s *ClimateService) TemperatureStatsFrom(ctx context.Context, startInput string) ([3]*float64, error) {
	start, err := validation.ValidateDate("start", startInput)
	if err != nil {
		return [3]*float64{}, err
	}
	return s.temperatureStats(ctx, start, "")
}

// TemperatureStatsRange returns [min, avg, max] of tobs for start <= date <= end.
func (s *ClimateService) TemperatureStatsRange(ctx context.Context, startInput, endInput string) ([3]*float64, error) {
	start, end, err := validation.ValidateRange(startInput, endInput)
	if err != nil {
		return [3]*float64{}, err
	}
	return s.temperatureStats(ctx, start, end)
}

func (s *ClimateService) temperatureStats(ctx context.Context, start, end string) ([3]*float64, error) {
	var stats models.TemperatureStats
	err := s.run(ctx, "temperature_stats", func(ctx context.Context) error {
		var err error
		stats, err = s.store.TemperatureStats(ctx, start, end)
		return err
	})
	if err != nil {
		return [3]*float64{}, err
	}
	return stats.Values(), nil
}

// Ping checks store reachability without going through the breaker.
func (s *ClimateService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// BreakerState returns the breaker state, or StateClosed when no breaker is configured.
func (s *ClimateService) BreakerState() circuitbreaker.State {
	if s.breaker == nil {
		return circuitbreaker.StateClosed
	}
	return s.breaker.State()
}

// run executes fn through the breaker and records the outcome for health.
// Failures come back wrapping ErrStorageUnavailable and the cause.
func (s *ClimateService) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	call := func() error { return fn(ctx) }

	var err error
	if s.breaker != nil {
		err = s.breaker.Call(ctx, call)
	} else {
		err = call()
	}

	logger := observability.LoggerFromContext(ctx)
	if err == nil {
		traffic.RecordSuccess()
		logger.Debug("query served", zap.String("op", op), zap.Duration("duration", time.Since(start)))
		return nil
	}

	// A caller that went away is not a storage fault.
	if errors.Is(err, context.Canceled) {
		logger.Debug("query canceled", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
	}

	traffic.RecordError()
	logger.Warn("query failed",
		zap.String("op", op),
		zap.String("category", string(store.CategorizeError(err))),
		zap.Bool("breaker_open", errors.Is(err, circuitbreaker.ErrOpen)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// IsBreakerFailure reports whether err should count against the store breaker.
// Cancellations come from clients, not from the store.
func IsBreakerFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}
