package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"treeadopt/internal/config"
	"treeadopt/internal/database"
	"treeadopt/internal/model"
	"treeadopt/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL test container with the application schema.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	// Create PostgreSQL container
	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	// Get connection string
	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	logger := zerolog.Nop()
	pool, err := database.NewPoolFromDSN(ctx, connStr, config.DatabaseConfig{MaxConnections: 10, MinConnections: 2}, logger)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	if err := database.Migrate(ctx, pool, logger); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

// SeedTrees inserts the test catalogue: oak at 500 and teak at 300.
func SeedTrees(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	trees := []struct {
		id      string
		name    string
		species string
		price   int64
		oxygen  int64
	}{
		{"oak", "Oak", "Quercus robur", 500, 100},
		{"teak", "Teak", "Tectona grandis", 300, 80},
		{"neem", "Neem", "Azadirachta indica", 250, 120},
	}

	for _, tr := range trees {
		_, err := pool.Exec(ctx,
			"INSERT INTO trees (id, name, species, price, oxygen_yield) VALUES ($1, $2, $3, $4, $5)",
			tr.id, tr.name, tr.species, decimal.NewFromInt(tr.price), decimal.NewFromInt(tr.oxygen),
		)
		if err != nil {
			t.Fatalf("failed to seed tree %s: %v", tr.id, err)
		}
	}
}

// SeedWellwisher registers an active wellwisher.
func SeedWellwisher(t *testing.T, pool *pgxpool.Pool, name string, registeredAt time.Time) model.Wellwisher {
	t.Helper()

	w := model.Wellwisher{
		ID:           uuid.New(),
		Name:         name,
		Email:        name + "@example.com",
		Active:       true,
		RegisteredAt: registeredAt,
	}
	if err := repository.NewWellwisherRepository(pool, zerolog.Nop()).Create(context.Background(), &w); err != nil {
		t.Fatalf("failed to seed wellwisher %s: %v", name, err)
	}
	return w
}

// CleanupDB cleans all data from test tables.
func CleanupDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	tables := []string{"tasks", "order_items", "orders", "wellwishers", "trees"}
	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}
}
