package localstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a PostgreSQL container and applies the migrations.
func setupPostgres(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("airhawk_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, Migrate(connStr))
	require.NoError(t, Migrate(connStr), "migrating twice is a no-op")

	store, err := NewPostgres(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgres_InsertRecentCount(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		id, err := store.Insert(ctx, logEvent(i))
		require.NoError(t, err)
		assert.Equal(t, logEvent(i).ID, id)
	}

	// Re-inserting the same event ID is ignored.
	_, err := store.Insert(ctx, logEvent(2))
	require.NoError(t, err)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, logEvent(3).ID, got[0].ID)
	assert.Equal(t, logEvent(2).ID, got[1].ID)
	assert.Equal(t, "-75", got[0].Signal)
	assert.True(t, logEvent(3).LoggedAt.Equal(got[0].LoggedAt))

	require.NoError(t, store.Ping(ctx))
}
