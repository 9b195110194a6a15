package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()
	// testcontainers panics (rather than returning an error) when no Docker
	// host can be found; route that into the same skip as the error path.
	defer func() {
		if r := recover(); r != nil {
			t.Skipf("docker not available: %v", r)
		}
	}()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("bom_test"),
		tcpostgres.WithUsername("bom"),
		tcpostgres.WithPassword("bom"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t)

	store := NewPostgres(pool)
	require.NoError(t, store.EnsureSchema(ctx))

	assert.True(t, store.Set(ctx, "session:a:offset", "4"))
	assert.True(t, store.Set(ctx, "session:a:offset", "7")) // upsert

	v, ok := store.Get(ctx, "session:a:offset")
	require.True(t, ok)
	assert.Equal(t, "7", v)

	_, ok = store.Get(ctx, "session:a:missing")
	assert.False(t, ok)

	require.True(t, store.Set(ctx, "session:a:meta", "{}"))
	require.True(t, store.Set(ctx, "session:b:meta", "{}"))

	keys, err := store.List(ctx, "session:a:")
	require.NoError(t, err)
	assert.Equal(t, []string{"session:a:meta", "session:a:offset"}, keys)

	require.NoError(t, store.Delete(ctx, "session:a:meta"))
	keys, err = store.List(ctx, "session:a:")
	require.NoError(t, err)
	assert.Equal(t, []string{"session:a:offset"}, keys)
}
