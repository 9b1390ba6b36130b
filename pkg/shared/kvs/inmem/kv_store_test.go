package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numadedup/pkg/shared/kvs"
)

func TestInMemKVStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewKVInMemKVStore(ctx, "bucket")
	require.NoError(t, err)
	assert.Equal(t, "bucket", store.GetStoreName())

	value := []byte("value1")
	require.NoError(t, store.PutKV(ctx, "key2", value))
	require.NoError(t, store.PutKV(ctx, "key1", []byte("value0")))
	value[0] = 'X'

	got, err := store.GetValue(ctx, "key2")
	require.NoError(t, err)
	assert.Equal(t, []byte("value1"), got)

	keys, err := store.GetAllKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"key1", "key2"}, keys)

	_, err = store.GetValue(ctx, "missing")
	assert.ErrorIs(t, err, kvs.ErrKeyNotFound)
	assert.ErrorIs(t, store.DeleteKey(ctx, "missing"), kvs.ErrKeyNotFound)

	require.NoError(t, store.DeleteKey(ctx, "key1"))
	keys, err = store.GetAllKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"key2"}, keys)

	store.Close()
	assert.Error(t, store.PutKV(ctx, "key3", nil))
	_, err = store.GetValue(ctx, "key2")
	assert.Error(t, err)
}
