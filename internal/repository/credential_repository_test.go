package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/persistence"
)

// exerciseStore runs the shared CredentialStore contract against a backend.
func exerciseStore(t *testing.T, store CredentialStore) {
	t.Helper()
	ctx := context.Background()

	_, ok := store.Get(ctx)
	assert.False(t, ok, "fresh store should be empty")

	require.NoError(t, store.Set(ctx, "first"))
	token, ok := store.Get(ctx)
	assert.True(t, ok)
	assert.Equal(t, "first", token)

	require.NoError(t, store.Set(ctx, "second"))
	token, ok = store.Get(ctx)
	assert.True(t, ok)
	assert.Equal(t, "second", token, "Set replaces the prior value")

	require.NoError(t, store.Clear(ctx))
	_, ok = store.Get(ctx)
	assert.False(t, ok)

	require.NoError(t, store.Clear(ctx), "clearing an empty store is not an error")
}

func TestMemoryCredentialStore(t *testing.T) {
	exerciseStore(t, NewMemoryCredentialStore())
}

func TestBoltCredentialStore(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "creds.db"), 0o600, nil)
	require.NoError(t, err)
	defer db.Close()

	store, err := NewBoltCredentialStore(db, "authToken", zap.NewNop())
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestBoltCredentialStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.db")
	ctx := context.Background()

	b, err := persistence.NewBolt(path, zap.NewNop())
	require.NoError(t, err)
	store, err := NewBoltCredentialStore(b.DB, "authToken", nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "durable"))
	require.NoError(t, b.Close())

	b, err = persistence.NewBolt(path, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()
	store, err = NewBoltCredentialStore(b.DB, "authToken", nil)
	require.NoError(t, err)

	token, ok := store.Get(ctx)
	assert.True(t, ok)
	assert.Equal(t, "durable", token)
}

func TestBoltCredentialStore_SlotsAreIndependent(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "creds.db"), 0o600, nil)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	a, err := NewBoltCredentialStore(db, "a", nil)
	require.NoError(t, err)
	b, err := NewBoltCredentialStore(db, "b", nil)
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, "token-a"))
	_, ok := b.Get(ctx)
	assert.False(t, ok)
}

func TestRedisCredentialStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	store := NewRedisCredentialStore(client, "test-"+t.Name(), zap.NewNop())
	defer store.Clear(context.Background()) //nolint:errcheck
	exerciseStore(t, store)
}

func TestPostgresCredentialStore(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, persistence.RunMigrations(ctx, pool, zap.NewNop()))

	store := NewPostgresCredentialStore(pool, "test-"+t.Name(), zap.NewNop())
	defer store.Clear(ctx) //nolint:errcheck
	exerciseStore(t, store)
}
