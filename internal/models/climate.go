package models

// Observation is one station's reading for one day. Prcp and Tobs are nil when
// the source row holds NULL.
type Observation struct {
	StationID string   `json:"station"`
	Date      string   `json:"date"`
	Prcp      *float64 `json:"prcp"`
	Tobs      *float64 `json:"tobs"`
}

type Station struct {
	ID   string `json:"station"`
	Name string `json:"name"`
}

// PrecipitationReading is a (date, prcp) pair from the precipitation window.
type PrecipitationReading struct {
	Date string
	Prcp *float64
}

// TemperatureReading is a (date, tobs) pair for a single station.
type TemperatureReading struct {
	Date string
	Tobs *float64
}

// StationActivity is a station and the number of measurement rows it owns.
type StationActivity struct {
	StationID    string
	Observations int64
}

// TemperatureStats holds min/avg/max of tobs over a date range. All three are
// nil when no row with a non-null tobs matched.
type TemperatureStats struct {
	Min   *float64
	Avg   *float64
	Max   *float64
	Count int64
}

// Values returns the stats in response order: min, avg, max.
func (s TemperatureStats) Values() [3]*float64 {
	return [3]*float64{s.Min, s.Avg, s.Max}
}
