// Package testutil starts the containers integration tests run against.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage    = "postgres:16-alpine"
	postgresPort     = "5432/tcp"
	postgresUser     = "hostel"
	postgresPassword = "hostel"
	postgresDB       = "hostel_test"
)

// StartPostgresContainer starts a disposable Postgres server
func StartPostgresContainer(ctx context.Context) (testcontainers.Container, error) {
	return testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        postgresImage,
				ExposedPorts: []string{postgresPort},
				Env: map[string]string{
					"POSTGRES_USER":     postgresUser,
					"POSTGRES_PASSWORD": postgresPassword,
					"POSTGRES_DB":       postgresDB,
				},
				WaitingFor: wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60 * time.Second),
			},
			Started: true,
		})
}

// PostgresDSN returns a connection string for a started container
func PostgresDSN(ctx context.Context, container testcontainers.Container) (string, error) {
	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := container.MappedPort(ctx, postgresPort)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port.Port(), postgresUser, postgresPassword, postgresDB), nil
}

// Postgres starts a container for the test, skipping it when no Docker provider
// is available. The container is terminated when the test ends.
func Postgres(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := StartPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := PostgresDSN(ctx, container)
	if err != nil {
		t.Fatalf("failed to get postgres endpoint: %v", err)
	}
	return dsn
}
