package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/climate-query-service/internal/circuitbreaker"
	"github.com/kjstillabower/climate-query-service/internal/config"
	"github.com/kjstillabower/climate-query-service/internal/models"
	"github.com/kjstillabower/climate-query-service/internal/observability"
	"github.com/kjstillabower/climate-query-service/internal/store"
	"github.com/kjstillabower/climate-query-service/internal/testhelpers"
	"github.com/kjstillabower/climate-query-service/internal/traffic"
	"github.com/kjstillabower/climate-query-service/internal/validation"
)

const windowStart = "2016-08-23"

type mockStore struct {
	precipitation []models.PrecipitationReading
	stations      []models.Station
	active        models.StationActivity
	activeOK      bool
	temps         []models.TemperatureReading
	stats         models.TemperatureStats
	err           error

	gotStation, gotSince, gotStart, gotEnd string
	calls                                  int
}

func (m *mockStore) PrecipitationSince(ctx context.Context, since string) ([]models.PrecipitationReading, error) {
	m.calls++
	m.gotSince = since
	return m.precipitation, m.err
}

func (m *mockStore) Stations(ctx context.Context) ([]models.Station, error) {
	m.calls++
	return m.stations, m.err
}

func (m *mockStore) MostActiveStation(ctx context.Context) (models.StationActivity, bool, error) {
	m.calls++
	return m.active, m.activeOK, m.err
}

func (m *mockStore) TemperatureObservations(ctx context.Context, stationID, since string) ([]models.TemperatureReading, error) {
	m.calls++
	m.gotStation, m.gotSince = stationID, since
	return m.temps, m.err
}

func (m *mockStore) TemperatureStats(ctx context.Context, start, end string) (models.TemperatureStats, error) {
	m.calls++
	m.gotStart, m.gotEnd = start, end
	return m.stats, m.err
}

func (m *mockStore) Ping(ctx context.Context) error         { return m.err }
func (m *mockStore) VerifySchema(ctx context.Context) error { return m.err }
func (m *mockStore) Close() error                           { return nil }

func fp(v float64) *float64 { return &v }

func sqliteService(t *testing.T) *ClimateService {
	t.Helper()
	path := testhelpers.SQLiteFile(t, testhelpers.DefaultDataset())
	st, err := store.Open(context.Background(), &config.Config{DatabaseDriver: config.DriverSQLite, DatabasePath: path})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewClimateService(st, nil, windowStart)
}

func TestPrecipitation_LastRowWinsPerDate(t *testing.T) {
	m := &mockStore{precipitation: []models.PrecipitationReading{
		{Date: "2016-08-23", Prcp: fp(1.79)},
		{Date: "2016-08-23", Prcp: fp(0.08)},
		{Date: "2017-01-05", Prcp: fp(0)},
		{Date: "2017-01-05", Prcp: nil},
	}}
	svc := NewClimateService(m, nil, windowStart)

	got, err := svc.Precipitation(context.Background())
	if err != nil {
		t.Fatalf("Precipitation() error = %v", err)
	}
	if m.gotSince != windowStart {
		t.Errorf("store queried since %q, want %q", m.gotSince, windowStart)
	}
	if len(got) != 2 {
		t.Fatalf("Precipitation() len = %d, want 2", len(got))
	}
	if v := got["2016-08-23"]; v == nil || *v != 0.08 {
		t.Errorf("2016-08-23 = %v, want 0.08", v)
	}
	if v, ok := got["2017-01-05"]; !ok || v != nil {
		t.Errorf("2017-01-05 = %v (present %v), want nil", v, ok)
	}
}

func TestPrecipitation_SQLiteWindowAndIdempotence(t *testing.T) {
	svc := sqliteService(t)
	ctx := context.Background()

	first, err := svc.Precipitation(ctx)
	if err != nil {
		t.Fatalf("Precipitation() error = %v", err)
	}
	for date := range first {
		if date < windowStart || date > "2017-08-23" {
			t.Errorf("date %s outside [%s, 2017-08-23]", date, windowStart)
		}
	}
	if _, ok := first["2016-08-22"]; ok {
		t.Error("2016-08-22 present, want excluded by window")
	}

	second, err := svc.Precipitation(ctx)
	if err != nil {
		t.Fatalf("Precipitation() second call error = %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("responses differ:\n%s\n%s", a, b)
	}
}

func TestStations_Flattened(t *testing.T) {
	m := &mockStore{stations: []models.Station{
		{ID: "USC00513117", Name: "KANEOHE"},
		{ID: "USC00519281", Name: "WAIHEE"},
	}}
	svc := NewClimateService(m, nil, windowStart)

	got, err := svc.Stations(context.Background())
	if err != nil {
		t.Fatalf("Stations() error = %v", err)
	}
	want := []string{"USC00513117", "KANEOHE", "USC00519281", "WAIHEE"}
	if len(got) != len(want) {
		t.Fatalf("Stations() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Stations()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStations_Empty(t *testing.T) {
	svc := NewClimateService(&mockStore{}, nil, windowStart)
	got, err := svc.Stations(context.Background())
	if err != nil {
		t.Fatalf("Stations() error = %v", err)
	}
	b, _ := json.Marshal(got)
	if string(b) != "[]" {
		t.Errorf("Stations() JSON = %s, want []", b)
	}
}

func TestTemperatureObservations_MostActiveStation(t *testing.T) {
	m := &mockStore{
		active:   models.StationActivity{StationID: "USC00519281", Observations: 2772},
		activeOK: true,
		temps: []models.TemperatureReading{
			{Date: "2016-08-23", Tobs: fp(77)},
			{Date: "2016-08-24", Tobs: nil},
		},
	}
	svc := NewClimateService(m, nil, windowStart)

	got, err := svc.TemperatureObservations(context.Background())
	if err != nil {
		t.Fatalf("TemperatureObservations() error = %v", err)
	}
	if m.gotStation != "USC00519281" || m.gotSince != windowStart {
		t.Errorf("store queried (%q, %q), want (USC00519281, %s)", m.gotStation, m.gotSince, windowStart)
	}
	b, _ := json.Marshal(got)
	if want := `["2016-08-23",77,"2016-08-24",null]`; string(b) != want {
		t.Errorf("TemperatureObservations() JSON = %s, want %s", b, want)
	}
}

func TestTemperatureObservations_NoObservations(t *testing.T) {
	m := &mockStore{}
	svc := NewClimateService(m, nil, windowStart)

	got, err := svc.TemperatureObservations(context.Background())
	if err != nil {
		t.Fatalf("TemperatureObservations() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("TemperatureObservations() = %v, want empty", got)
	}
	if m.calls != 1 {
		t.Errorf("store calls = %d, want 1 (no station lookup without an active station)", m.calls)
	}
}

func TestTemperatureObservations_SQLiteSingleStation(t *testing.T) {
	svc := sqliteService(t)
	got, err := svc.TemperatureObservations(context.Background())
	if err != nil {
		t.Fatalf("TemperatureObservations() error = %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("TemperatureObservations() len = %d, want 10", len(got))
	}
	for i := 0; i < len(got); i += 2 {
		if d := got[i].(string); d < windowStart {
			t.Errorf("date %s before window start", d)
		}
	}
}

func TestTemperatureStatsRange(t *testing.T) {
	m := &mockStore{stats: models.TemperatureStats{Min: fp(60), Avg: fp(69.5), Max: fp(80), Count: 4}}
	svc := NewClimateService(m, nil, windowStart)

	got, err := svc.TemperatureStatsRange(context.Background(), "2017-01-01", " 2017-01-31")
	if err != nil {
		t.Fatalf("TemperatureStatsRange() error = %v", err)
	}
	if m.gotStart != "2017-01-01" || m.gotEnd != "2017-01-31" {
		t.Errorf("store queried [%q, %q]", m.gotStart, m.gotEnd)
	}
	if *got[0] != 60 || *got[1] != 69.5 || *got[2] != 80 {
		t.Errorf("TemperatureStatsRange() = [%v %v %v]", *got[0], *got[1], *got[2])
	}
}

func TestTemperatureStatsFrom_NoRowsIsNulls(t *testing.T) {
	svc := NewClimateService(&mockStore{}, nil, windowStart)
	got, err := svc.TemperatureStatsFrom(context.Background(), "2030-01-01")
	if err != nil {
		t.Fatalf("TemperatureStatsFrom() error = %v", err)
	}
	b, _ := json.Marshal(got)
	if string(b) != "[null,null,null]" {
		t.Errorf("TemperatureStatsFrom() JSON = %s, want [null,null,null]", b)
	}
}

func TestTemperatureStats_InvalidInput(t *testing.T) {
	m := &mockStore{}
	svc := NewClimateService(m, nil, windowStart)
	ctx := context.Background()

	if _, err := svc.TemperatureStatsFrom(ctx, "not-a-date"); !errors.Is(err, validation.ErrInvalidDate) {
		t.Errorf("TemperatureStatsFrom() error = %v, want ErrInvalidDate", err)
	}
	if _, err := svc.TemperatureStatsRange(ctx, "2017-02-01", "2017-01-01"); !errors.Is(err, validation.ErrInvalidRange) {
		t.Errorf("TemperatureStatsRange() error = %v, want ErrInvalidRange", err)
	}
	if m.calls != 0 {
		t.Errorf("store calls = %d, want 0 for invalid input", m.calls)
	}
}

func TestStoreError_StorageUnavailable(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()

	core, logs := observer.New(zapcore.WarnLevel)
	ctx := observability.WithLogger(context.Background(), zap.New(core))
	storeErr := errors.New("disk I/O error")
	svc := NewClimateService(&mockStore{err: storeErr}, nil, windowStart)

	_, err := svc.Stations(ctx)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("Stations() error = %v, want ErrStorageUnavailable", err)
	}
	if !errors.Is(err, storeErr) {
		t.Errorf("Stations() error = %v, want cause preserved", err)
	}
	if errs, total := traffic.ErrorRate(time.Minute); errs != 1 || total != 1 {
		t.Errorf("traffic.ErrorRate() = (%d, %d), want (1, 1)", errs, total)
	}
	if logs.FilterMessage("query failed").Len() != 1 {
		t.Errorf("expected one 'query failed' warning, got %v", logs.All())
	}
}

func TestCanceledContext_NotRecordedAsError(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()

	svc := NewClimateService(&mockStore{err: context.Canceled}, nil, windowStart)
	_, err := svc.Precipitation(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Precipitation() error = %v, want context.Canceled", err)
	}
	if errs, _ := traffic.ErrorRate(time.Minute); errs != 0 {
		t.Errorf("errors recorded = %d, want 0", errs)
	}
}

func TestBreakerOpensAndRejects(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()

	m := &mockStore{err: errors.New("unable to open database file")}
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
		Component:        "store",
		IsFailure:        IsBreakerFailure,
	})
	svc := NewClimateService(m, cb, windowStart)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Stations(ctx); !errors.Is(err, ErrStorageUnavailable) {
			t.Fatalf("call %d error = %v, want ErrStorageUnavailable", i, err)
		}
	}
	if svc.BreakerState() != circuitbreaker.StateOpen {
		t.Fatalf("BreakerState() = %v, want open", svc.BreakerState())
	}

	calls := m.calls
	_, err := svc.Stations(ctx)
	if !errors.Is(err, ErrStorageUnavailable) || !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("Stations() with open breaker error = %v, want ErrStorageUnavailable wrapping ErrOpen", err)
	}
	if m.calls != calls {
		t.Errorf("store called while breaker open")
	}
}

func TestBreakerState_NoBreaker(t *testing.T) {
	svc := NewClimateService(&mockStore{}, nil, windowStart)
	if svc.BreakerState() != circuitbreaker.StateClosed {
		t.Errorf("BreakerState() = %v, want closed", svc.BreakerState())
	}
}

func TestIsBreakerFailure(t *testing.T) {
	if IsBreakerFailure(context.Canceled) {
		t.Error("IsBreakerFailure(Canceled) = true, want false")
	}
	if !IsBreakerFailure(context.DeadlineExceeded) {
		t.Error("IsBreakerFailure(DeadlineExceeded) = false, want true")
	}
}
