//go:build integration

package apikeys

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

func setupPostgres(t *testing.T) *PostgresRepository {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("apikeys_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(db.DB, MIGRATE_UP))

	repo, err := NewPostgresRepository(db, zaptest.NewLogger(t))
	require.NoError(t, err)
	return repo
}

func TestPostgresRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	repo := setupPostgres(t)

	svc, err := NewAPIKeyService(repo, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	first, err := svc.CreateAPIKey(ctx, "u1", CreateAPIKeyOptions{Name: "first", Scopes: MustParseScopes("read")})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := svc.CreateAPIKey(ctx, "u1", CreateAPIKeyOptions{Name: "second", TenantID: stringPtr("t1")})
	require.NoError(t, err)

	t.Run("authenticate", func(t *testing.T) {
		authCtx, err := svc.Authenticate(ctx, first.Plaintext)
		require.NoError(t, err)
		assert.Equal(t, first.APIKey.ID, authCtx.KeyID)
		assert.Equal(t, Scopes{"read"}, authCtx.Scopes)
	})

	t.Run("list newest first", func(t *testing.T) {
		keys, err := svc.ListAPIKeys(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, keys, 2)
		assert.Equal(t, second.APIKey.ID, keys[0].ID)
	})

	t.Run("last used", func(t *testing.T) {
		require.NoError(t, repo.UpdateLastUsed(ctx, first.APIKey.ID))
		record, err := repo.FindByID(ctx, first.APIKey.ID)
		require.NoError(t, err)
		assert.NotNil(t, record.LastUsedAt)
	})

	t.Run("revoke keeps the first timestamp", func(t *testing.T) {
		revoked, err := repo.Revoke(ctx, first.APIKey.ID)
		require.NoError(t, err)
		again, err := repo.Revoke(ctx, first.APIKey.ID)
		require.NoError(t, err)
		assert.True(t, revoked.RevokedAt.Equal(*again.RevokedAt))

		_, err = svc.Authenticate(ctx, first.Plaintext)
		assert.ErrorIs(t, err, ErrInvalidAPIKey)
	})

	t.Run("delete", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, second.APIKey.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.Delete(ctx, second.APIKey.ID)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("migrations roll back", func(t *testing.T) {
		require.NoError(t, RunMigrations(repo.db.DB, MIGRATE_DOWN))
		require.NoError(t, RunMigrations(repo.db.DB, MIGRATE_UP))
	})
}
