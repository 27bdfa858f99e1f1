package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// ErrorCategory is a stable label for store error metrics (storeErrorsTotal).
type ErrorCategory string

const (
	CategoryTimeout    ErrorCategory = "timeout"
	CategoryConnection ErrorCategory = "connection"
	CategorySchema     ErrorCategory = "schema"
	CategoryCanceled   ErrorCategory = "canceled"
	CategoryUnknown    ErrorCategory = "unknown"
)

// CategorizeError maps a store error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return CategoryTimeout
	}
	if errors.Is(err, context.Canceled) {
		return CategoryCanceled
	}
	if errors.Is(err, ErrSchemaMismatch) {
		return CategorySchema
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr:
			return CategoryConnection
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42P01" || pgErr.Code == "42703":
			return CategorySchema
		case strings.HasPrefix(pgErr.Code, "08"):
			return CategoryConnection
		}
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) ||
		errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return CategoryConnection
	}

	errStr := err.Error()
	if strings.Contains(errStr, "no such table") || strings.Contains(errStr, "no such column") {
		return CategorySchema
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "unable to open") ||
		strings.Contains(errStr, "database is closed") {
		return CategoryConnection
	}
	if strings.Contains(errStr, "timeout") {
		return CategoryTimeout
	}

	return CategoryUnknown
}
