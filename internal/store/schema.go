package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaMismatch is returned when a declared table or column is missing from the dataset.
var ErrSchemaMismatch = errors.New("dataset schema mismatch")

// Table is a dataset table the service reads. Columns are listed in the order
// queries select them.
type Table struct {
	Name    string
	Columns []string
}

// Declared dataset tables. The service never creates or alters them.
var (
	MeasurementTable = Table{Name: "measurement", Columns: []string{"station", "date", "prcp", "tobs"}}
	StationTable     = Table{Name: "station", Columns: []string{"station", "name"}}
)

// Schema lists every table VerifySchema probes.
var Schema = []Table{MeasurementTable, StationTable}

// probeSQL selects every declared column without returning rows.
func (t Table) probeSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE 1 = 0", strings.Join(t.Columns, ", "), t.Name)
}

// VerifySchema checks that every declared table exposes its declared columns.
func (s *SQLStore) VerifySchema(ctx context.Context) error {
	for _, t := range Schema {
		rows, err := s.db.QueryContext(ctx, t.probeSQL())
		if err != nil {
			if CategorizeError(err) == CategorySchema {
				return fmt.Errorf("%w: table %s (%s): %v", ErrSchemaMismatch, t.Name, strings.Join(t.Columns, ", "), err)
			}
			return fmt.Errorf("probe table %s: %w", t.Name, err)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("probe table %s: %w", t.Name, err)
		}
	}
	return nil
}
