package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/creditflow/pkg/models"
	"github.com/dukex/creditflow/pkg/persistence"
	"github.com/dukex/creditflow/pkg/persistence/postgresql"
	"github.com/dukex/creditflow/pkg/testutil"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"executions", "client_automation_assignments", "automations", "clients", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container tests in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("creditflow_test"),
			postgres.WithUsername("creditflow"),
			postgres.WithPassword("creditflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"clients", "automations", "client_automation_assignments", "executions", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestPersistence_LedgerContract(t *testing.T) {
	testutil.RunLedgerSuite(t, func(t *testing.T) persistence.Persistence {
		t.Helper()

		store, _, _ := setupTestDB(t)

		return store
	})
}

func TestExecutions_AreAppendOnly(t *testing.T) {
	store, ctx, databaseURL := setupTestDB(t)

	client := testutil.CreateTestClient()
	automation := testutil.CreateTestAutomation()
	require.NoError(t, store.ClientRepository().Save(ctx, client))
	require.NoError(t, store.AutomationRepository().Save(ctx, automation))

	execution := testutil.CreateTestExecution(client.ID, automation.ID, models.ExecutionStatusFailed)
	require.NoError(t, store.ExecutionRepository().Append(ctx, execution))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, db.Close())
	}()

	_, err = db.ExecContext(ctx, "UPDATE executions SET status = 'success' WHERE id = $1", execution.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = db.ExecContext(ctx, "DELETE FROM executions WHERE id = $1", execution.ID)
	require.Error(t, err)

	got, err := store.ExecutionRepository().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, got.Status)
}

func TestClients_BalanceCannotGoNegative(t *testing.T) {
	store, ctx, databaseURL := setupTestDB(t)

	client := testutil.CreateTestClient(testutil.WithBalance(1))
	require.NoError(t, store.ClientRepository().Save(ctx, client))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, db.Close())
	}()

	_, err = db.ExecContext(ctx, "UPDATE clients SET credit_balance = -1 WHERE id = $1", client.ID)
	require.Error(t, err)

	testutil.AssertBalance(t, store, client.ID, 1)
}
