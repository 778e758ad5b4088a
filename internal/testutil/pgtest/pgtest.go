//go:build integration

// Package pgtest starts a throwaway PostgreSQL for integration tests.
package pgtest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/servicefee/migrations"
	"github.com/cuongbtq/servicefee/shared/postgresql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Start runs a migrated PostgreSQL container and returns a connected client
func Start(t *testing.T) *postgresql.Client {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("servicefee"),
		tcpostgres.WithUsername("servicefee"),
		tcpostgres.WithPassword("servicefee"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := postgresql.NewClient(&postgresql.Config{
		Host:            host,
		Port:            port.Int(),
		User:            "servicefee",
		Password:        "servicefee",
		Database:        "servicefee",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, migrations.Apply(ctx, client.GetDB()))

	return client
}

// InsertJob seeds a job posting
func InsertJob(t *testing.T, client *postgresql.Client, jobID, employerID string) {
	t.Helper()
	_, err := client.GetDB().Exec(`INSERT INTO jobs (job_id, employer_id, title) VALUES ($1, $2, 'test')`, jobID, employerID)
	require.NoError(t, err)
}
