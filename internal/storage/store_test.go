package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/risklock/livesync/internal/config"
)

const testRedisAddr = "localhost:6379"

// exerciseStore 对每种后端执行相同的契约测试
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "active_support_chat_id")
	require.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)

	require.NoError(t, store.Set(ctx, "active_support_chat_id", "12"))
	require.NoError(t, store.Set(ctx, "active_support_chat_id", "13"))

	value, err := store.Get(ctx, "active_support_chat_id")
	require.NoError(t, err)
	require.Equal(t, "13", value)

	require.NoError(t, store.Delete(ctx, "active_support_chat_id"))
	_, err = store.Get(ctx, "active_support_chat_id")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	exerciseStore(t, store)
}

func TestRedisStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}

	store := NewRedis(client, "risklock-test:")
	t.Cleanup(func() {
		client.Del(context.Background(), "risklock-test:active_support_chat_id")
		store.Close()
	})

	exerciseStore(t, store)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(config.StorageConfig{Backend: "floppy"})
	require.Error(t, err)
}
