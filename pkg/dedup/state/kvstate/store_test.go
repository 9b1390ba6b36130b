package kvstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/state"
	"github.com/numaproj/numadedup/pkg/shared/kvs/inmem"
)

func newTestStore(t *testing.T, cacheSize int) (state.Store, *state.Codec) {
	t.Helper()
	ctx := context.Background()
	schema, err := changelog.NewSchema(
		changelog.Field{Name: "b", Type: changelog.TypeInt64},
		changelog.Field{Name: "t", Type: changelog.TypeInt64},
	)
	require.NoError(t, err)
	kv, err := inmem.NewKVInMemKVStore(ctx, "state")
	require.NoError(t, err)
	codec := state.NewCodec(schema)
	s, err := NewKVStore(ctx, kv, codec, cacheSize)
	require.NoError(t, err)
	return s, codec
}

func TestKVStore(t *testing.T) {
	ctx := context.Background()
	// a cache of one entry forces reads through the backend
	s, _ := newTestStore(t, 1)

	_, ok, err := s.Get(ctx, `1,"x"`)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, `1,"x"`, state.DedupState{Winner: changelog.InsertRow(int64(1), int64(3)), Ordering: 3, HasEmitted: true}))
	require.NoError(t, s.Put(ctx, `2,"y"`, state.DedupState{Winner: changelog.InsertRow(int64(2), int64(4)), Ordering: 4, HasEmitted: true}))
	assert.Equal(t, 2, s.Len())

	got, ok, err := s.Get(ctx, `1,"x"`)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.Winner.Fields[1])
	assert.True(t, got.HasEmitted)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, changelog.Key(`1,"x"`), snap[0].Key)

	require.NoError(t, s.Delete(ctx, `1,"x"`))
	require.NoError(t, s.Delete(ctx, `1,"x"`))
	_, ok, err = s.Get(ctx, `1,"x"`)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Restore(ctx, snap[:1]))
	assert.Equal(t, 1, s.Len())
	_, ok, _ = s.Get(ctx, `2,"y"`)
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, `1,"x"`)
	assert.True(t, ok)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, _, err = s.Get(ctx, `1,"x"`)
	assert.ErrorIs(t, err, state.ErrStoreClosed)
}

func TestKVStoreCorruptedValue(t *testing.T) {
	ctx := context.Background()
	schema, err := changelog.NewSchema(changelog.Field{Name: "b", Type: changelog.TypeInt64})
	require.NoError(t, err)
	kv, err := inmem.NewKVInMemKVStore(ctx, "state")
	require.NoError(t, err)
	s, err := NewKVStore(ctx, kv, state.NewCodec(schema), 0)
	require.NoError(t, err)

	require.NoError(t, kv.PutKV(ctx, encodeKey("k"), []byte{0xde, 0xad}))
	_, _, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, state.ErrCorruptedState)

	require.NoError(t, kv.PutKV(ctx, "!!not-base64", []byte{0}))
	_, err = s.Snapshot(ctx)
	assert.ErrorIs(t, err, state.ErrCorruptedState)
}
