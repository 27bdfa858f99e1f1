package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kjstillabower/climate-query-service/internal/models"
)

// MostActiveStation owns the most measurement rows in DefaultDataset.
const MostActiveStation = "USC00519281"

const createStationSQL = `CREATE TABLE station (
  station TEXT NOT NULL,
  name    TEXT NOT NULL
)`

const createMeasurementSQL = `CREATE TABLE measurement (
  station TEXT NOT NULL,
  date    TEXT NOT NULL,
  prcp    DOUBLE PRECISION,
  tobs    DOUBLE PRECISION
)`

const insertStationSQL = `INSERT INTO station (station, name) VALUES ($1, $2)`

const insertMeasurementSQL = `INSERT INTO measurement (station, date, prcp, tobs) VALUES ($1, $2, $3, $4)`

// Dataset is the content of a seeded station/measurement database.
type Dataset struct {
	Stations     []models.Station
	Observations []models.Observation
}

func f(v float64) *float64 { return &v }

// DefaultDataset is a small Hawaii-shaped snapshot ending 2017-08-23:
//   - USC00519281 has the most rows (6), one of them before 2016-08-23.
//   - 2016-08-23 and 2017-01-05 have two rows each; on 2017-01-05 the later row has a null prcp.
//   - USC00513117 has a null tobs on 2017-01-15 and a row from 2015.
func DefaultDataset() Dataset {
	return Dataset{
		Stations: []models.Station{
			{ID: "USC00519397", Name: "WAIKIKI 717.2, HI US"},
			{ID: "USC00513117", Name: "KANEOHE 838.1, HI US"},
			{ID: "USC00519281", Name: "WAIHEE 837.5, HI US"},
		},
		Observations: []models.Observation{
			{StationID: "USC00513117", Date: "2015-06-01", Prcp: f(0.02), Tobs: f(69)},
			{StationID: "USC00519281", Date: "2016-08-22", Prcp: f(0.4), Tobs: f(77)},
			{StationID: "USC00519281", Date: "2016-08-23", Prcp: f(1.79), Tobs: f(76)},
			{StationID: "USC00519397", Date: "2016-08-23", Prcp: f(0.08), Tobs: f(81)},
			{StationID: "USC00519281", Date: "2016-12-01", Prcp: f(0.12), Tobs: f(70)},
			{StationID: "USC00519281", Date: "2017-01-05", Prcp: f(0), Tobs: f(68)},
			{StationID: "USC00519397", Date: "2017-01-05", Prcp: nil, Tobs: f(66)},
			{StationID: "USC00513117", Date: "2017-01-15", Prcp: f(0.3), Tobs: nil},
			{StationID: "USC00519281", Date: "2017-01-20", Prcp: f(0.05), Tobs: f(72)},
			{StationID: "USC00519281", Date: "2017-08-18", Prcp: f(0.06), Tobs: f(79)},
			{StationID: "USC00519397", Date: "2017-08-23", Prcp: f(0), Tobs: f(81)},
		},
	}
}

// Seed creates the station and measurement tables on db and inserts ds.
// Works on sqlite3 and pgx.
func Seed(ctx context.Context, db *sql.DB, ds Dataset) error {
	for _, stmt := range []string{createStationSQL, createMeasurementSQL} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	for _, st := range ds.Stations {
		if _, err := db.ExecContext(ctx, insertStationSQL, st.ID, st.Name); err != nil {
			return fmt.Errorf("insert station %s: %w", st.ID, err)
		}
	}
	for _, o := range ds.Observations {
		if _, err := db.ExecContext(ctx, insertMeasurementSQL, o.StationID, o.Date, nullable(o.Prcp), nullable(o.Tobs)); err != nil {
			return fmt.Errorf("insert measurement %s %s: %w", o.StationID, o.Date, err)
		}
	}
	return nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// SQLiteFile writes ds to a fresh sqlite file under t.TempDir and returns its path.
func SQLiteFile(t *testing.T, ds Dataset) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hawaii.sqlite")
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Fatalf("close db: %v", closeErr)
		}
	}()
	if err := Seed(context.Background(), db, ds); err != nil {
		t.Fatalf("seed db: %v", err)
	}
	return path
}

// OpenSQLite opens path read-write for tests that need to break the dataset.
func OpenSQLite(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
