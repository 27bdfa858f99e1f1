package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kjstillabower/climate-query-service/internal/config"
)

// Open opens the configured dataset, applies pool settings and pings it.
// SQLite files are opened read-only.
func Open(ctx context.Context, cfg *config.Config) (*SQLStore, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	if cfg.DatabaseMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	}
	if cfg.DatabaseMaxIdleConns >= 0 {
		db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	}
	if cfg.DatabaseConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return New(db), nil
}

func buildDSN(cfg *config.Config) (string, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		if cfg.DatabaseDSN == "" {
			return "", fmt.Errorf("db dsn: required for driver %s", cfg.DatabaseDriver)
		}
		return cfg.DatabaseDSN, nil
	case config.DriverSQLite:
		if cfg.DatabaseDSN != "" {
			return cfg.DatabaseDSN, nil
		}
		return SQLiteReadOnlyDSN(cfg.DatabasePath), nil
	default:
		return "", fmt.Errorf("db driver: unsupported %q", cfg.DatabaseDriver)
	}
}

// SQLiteReadOnlyDSN builds a mattn/go-sqlite3 DSN that refuses writes:
// mode=ro opens the file read-only and _query_only blocks write statements.
func SQLiteReadOnlyDSN(path string) string {
	params := []string{
		"mode=ro",
		"_query_only=1",
		"_busy_timeout=5000",
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&")
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&"))
}
