package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/database"
)

// PgvectorImage is PostgreSQL with the pgvector extension available.
const PgvectorImage = "pgvector/pgvector:pg16"

// ReasonerDB holds the shared test database with migrations applied.
type ReasonerDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedReasonerDB     *ReasonerDB
	sharedReasonerDBOnce sync.Once
	sharedReasonerDBErr  error
)

// GetReasonerDB returns a shared PostgreSQL container for integration tests.
// The container is created once, migrated, and reused across all tests in the run.
func GetReasonerDB(t *testing.T) *ReasonerDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedReasonerDBOnce.Do(func() {
		sharedReasonerDB, sharedReasonerDBErr = setupReasonerDB()
	})

	if sharedReasonerDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedReasonerDBErr)
	}

	return sharedReasonerDB
}

func setupReasonerDB() (*ReasonerDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PgvectorImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "reasoner_test",
			"POSTGRES_USER":     "ekaya",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://ekaya:test_password@%s:%s/reasoner_test?sslmode=disable",
		host, port.Port())

	sqlDB, err := database.OpenMigrationDB(ctx, connStr)
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	return &ReasonerDB{
		Container: container,
		DB:        db,
		ConnStr:   connStr,
	}, nil
}
