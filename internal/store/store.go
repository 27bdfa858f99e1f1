package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/kjstillabower/climate-query-service/internal/models"
	"github.com/kjstillabower/climate-query-service/internal/observability"
)

//go:embed sql/precipitation.sql
var precipitationSQL string

//go:embed sql/stations.sql
var stationsSQL string

//go:embed sql/most-active-station.sql
var mostActiveStationSQL string

//go:embed sql/station-temperatures.sql
var stationTemperaturesSQL string

//go:embed sql/temperature-stats-from.sql
var temperatureStatsFromSQL string

//go:embed sql/temperature-stats-range.sql
var temperatureStatsRangeSQL string

// Query names used as metric labels.
const (
	QueryPrecipitation       = "precipitation"
	QueryStations            = "stations"
	QueryMostActiveStation   = "most_active_station"
	QueryStationTemperatures = "station_temperatures"
	QueryTemperatureStats    = "temperature_stats"
)

// ClimateStore reads the measurement and station tables. Dates are
// YYYY-MM-DD strings compared lexicographically.
type ClimateStore interface {
	// PrecipitationSince returns (date, prcp) for every row with date >= since,
	// ordered by date then station.
	PrecipitationSince(ctx context.Context, since string) ([]models.PrecipitationReading, error)
	// Stations returns every station ordered by id.
	Stations(ctx context.Context) ([]models.Station, error)
	// MostActiveStation returns the station with the most rows, ties broken by
	// the lowest id. ok is false when measurement is empty.
	MostActiveStation(ctx context.Context) (activity models.StationActivity, ok bool, err error)
	// TemperatureObservations returns (date, tobs) for one station with date >= since, ordered by date.
	TemperatureObservations(ctx context.Context, stationID, since string) ([]models.TemperatureReading, error)
	// TemperatureStats aggregates tobs over date >= start, and date <= end when end is not empty.
	TemperatureStats(ctx context.Context, start, end string) (models.TemperatureStats, error)
	Ping(ctx context.Context) error
	VerifySchema(ctx context.Context) error
	Close() error
}

// SQLStore implements ClimateStore over database/sql. The same queries run on
// sqlite3 and pgx.
type SQLStore struct {
	db *sql.DB
}

var _ ClimateStore = (*SQLStore)(nil)

// New wraps an open pool. Open is the usual entry point.
func New(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// DB exposes the underlying pool (tests and health checks).
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) PrecipitationSince(ctx context.Context, since string) (out []models.PrecipitationReading, err error) {
	defer observe(QueryPrecipitation, time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, precipitationSQL, since)
	if err != nil {
		return nil, fmt.Errorf("query precipitation since %s: %w", since, err)
	}
	defer closeRows(rows, &err)

	for rows.Next() {
		var date string
		var prcp sql.NullFloat64
		if err := rows.Scan(&date, &prcp); err != nil {
			return nil, fmt.Errorf("scan precipitation: %w", err)
		}
		out = append(out, models.PrecipitationReading{Date: date, Prcp: floatPtr(prcp)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate precipitation: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Stations(ctx context.Context) (out []models.Station, err error) {
	defer observe(QueryStations, time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, stationsSQL)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer closeRows(rows, &err)

	for rows.Next() {
		var st models.Station
		var name sql.NullString
		if err := rows.Scan(&st.ID, &name); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		st.Name = name.String
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stations: %w", err)
	}
	return out, nil
}

func (s *SQLStore) MostActiveStation(ctx context.Context) (activity models.StationActivity, ok bool, err error) {
	defer observe(QueryMostActiveStation, time.Now(), &err)

	err = s.db.QueryRowContext(ctx, mostActiveStationSQL).Scan(&activity.StationID, &activity.Observations)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StationActivity{}, false, nil
	}
	if err != nil {
		return models.StationActivity{}, false, fmt.Errorf("query most active station: %w", err)
	}
	return activity, true, nil
}

func (s *SQLStore) TemperatureObservations(ctx context.Context, stationID, since string) (out []models.TemperatureReading, err error) {
	defer observe(QueryStationTemperatures, time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, stationTemperaturesSQL, stationID, since)
	if err != nil {
		return nil, fmt.Errorf("query temperatures for %s since %s: %w", stationID, since, err)
	}
	defer closeRows(rows, &err)

	for rows.Next() {
		var date string
		var tobs sql.NullFloat64
		if err := rows.Scan(&date, &tobs); err != nil {
			return nil, fmt.Errorf("scan temperature: %w", err)
		}
		out = append(out, models.TemperatureReading{Date: date, Tobs: floatPtr(tobs)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate temperatures: %w", err)
	}
	return out, nil
}

func (s *SQLStore) TemperatureStats(ctx context.Context, start, end string) (stats models.TemperatureStats, err error) {
	defer observe(QueryTemperatureStats, time.Now(), &err)

	var row *sql.Row
	if end == "" {
		row = s.db.QueryRowContext(ctx, temperatureStatsFromSQL, start)
	} else {
		row = s.db.QueryRowContext(ctx, temperatureStatsRangeSQL, start, end)
	}

	var minT, avgT, maxT sql.NullFloat64
	if err := row.Scan(&minT, &avgT, &maxT, &stats.Count); err != nil {
		return models.TemperatureStats{}, fmt.Errorf("query temperature stats [%s, %s]: %w", start, end, err)
	}
	if stats.Count == 0 {
		return models.TemperatureStats{}, nil
	}
	stats.Min = floatPtr(minT)
	stats.Avg = floatPtr(avgT)
	stats.Max = floatPtr(maxT)
	return stats, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// observe records duration and outcome for one named query. errp points at the
// caller's named error result.
func observe(query string, start time.Time, errp *error) {
	err := *errp
	observability.RecordStoreQuery(query, time.Since(start).Seconds(), err, string(CategorizeError(err)))
}

// closeRows closes rows and reports a close failure through errp when the
// caller has no error of its own.
func closeRows(rows *sql.Rows, errp *error) {
	if cerr := rows.Close(); cerr != nil && *errp == nil {
		*errp = fmt.Errorf("close rows: %w", cerr)
	}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
