//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage    = "postgres:16-alpine"
	postgresUser     = "climate"
	postgresPassword = "climate"
	postgresDB       = "climate"
)

// PostgresDSN starts a postgres container seeded with ds and returns a pgx DSN.
// Skips when INTEGRATION_SKIP_DOCKER is set.
func PostgresDSN(t *testing.T, ds Dataset) string {
	t.Helper()
	if os.Getenv("INTEGRATION_SKIP_DOCKER") != "" {
		t.Skip("INTEGRATION_SKIP_DOCKER set, skipping postgres integration test")
	}

	ctx := context.Background()
	port := nat.Port("5432/tcp")

	req := tc.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForSQL(port, "pgx", func(host string, p nat.Port) string {
			return dsn(host, p)
		}).WithStartupTimeout(60 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	url := dsn(host, mapped)

	db, err := sql.Open("pgx", url)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()
	if err := Seed(ctx, db, ds); err != nil {
		t.Fatalf("seed postgres: %v", err)
	}
	return url
}

func dsn(host string, port nat.Port) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, host, port.Port(), postgresDB)
}
