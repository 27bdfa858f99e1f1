//go:build integration
// +build integration

package store

import (
	"context"
	"testing"

	"github.com/kjstillabower/climate-query-service/internal/config"
	"github.com/kjstillabower/climate-query-service/internal/testhelpers"
)

func TestPostgresStore_Integration(t *testing.T) {
	dsn := testhelpers.PostgresDSN(t, testhelpers.DefaultDataset())
	ctx := context.Background()

	s, err := Open(ctx, &config.Config{
		DatabaseDriver:       config.DriverPostgres,
		DatabaseDSN:          dsn,
		DatabaseMaxOpenConns: 4,
		DatabaseMaxIdleConns: 2,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if err := s.VerifySchema(ctx); err != nil {
		t.Fatalf("VerifySchema() error = %v", err)
	}

	precip, err := s.PrecipitationSince(ctx, "2016-08-23")
	if err != nil {
		t.Fatalf("PrecipitationSince() error = %v", err)
	}
	if len(precip) != 9 {
		t.Errorf("PrecipitationSince() len = %d, want 9", len(precip))
	}

	active, ok, err := s.MostActiveStation(ctx)
	if err != nil || !ok {
		t.Fatalf("MostActiveStation() = %+v, %v, %v", active, ok, err)
	}
	if active.StationID != testhelpers.MostActiveStation {
		t.Errorf("MostActiveStation() = %s, want %s", active.StationID, testhelpers.MostActiveStation)
	}

	stats, err := s.TemperatureStats(ctx, "2017-01-01", "2017-01-31")
	if err != nil {
		t.Fatalf("TemperatureStats() error = %v", err)
	}
	if stats.Count != 3 || stats.Min == nil || *stats.Min != 66 || *stats.Max != 72 {
		t.Errorf("TemperatureStats() = %+v, want min 66 max 72 over 3 rows", stats)
	}
}
