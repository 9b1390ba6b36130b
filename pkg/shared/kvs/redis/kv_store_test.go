package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numadedup/pkg/shared/kvs"
)

// envTestRedis names a redis server to run against, e.g. "localhost:6379".
const envTestRedis = "NUMADEDUP_TEST_REDIS"

func TestRedisKVStore(t *testing.T) {
	addr := os.Getenv(envTestRedis)
	if addr == "" {
		t.Skipf("%s is not set", envTestRedis)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bucket := "numadedup-test-" + time.Now().Format("150405.000")
	store, err := NewKVRedisStoreFromOptions(ctx, bucket, &redis.UniversalOptions{Addrs: []string{addr}})
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, bucket, store.GetStoreName())

	require.NoError(t, store.PutKV(ctx, "b", []byte("2")))
	require.NoError(t, store.PutKV(ctx, "a", []byte("1")))

	v, err := store.GetValue(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	keys, err := store.GetAllKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	_, err = store.GetValue(ctx, "missing")
	assert.ErrorIs(t, err, kvs.ErrKeyNotFound)

	require.NoError(t, store.DeleteKey(ctx, "a"))
	require.NoError(t, store.DeleteKey(ctx, "b"))
	assert.ErrorIs(t, store.DeleteKey(ctx, "b"), kvs.ErrKeyNotFound)
}

func TestNewKVRedisStoreUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewKVRedisStoreFromOptions(ctx, "bucket", &redis.UniversalOptions{
		Addrs:       []string{"127.0.0.1:1"},
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	assert.Error(t, err)
}
