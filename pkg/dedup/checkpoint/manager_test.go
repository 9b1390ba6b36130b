package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/state"
	"github.com/numaproj/numadedup/pkg/shared/kvs"
	"github.com/numaproj/numadedup/pkg/shared/kvs/inmem"
)

func newManager(t *testing.T) (*Manager, kvs.KVStorer) {
	t.Helper()
	ctx := context.Background()
	schema, err := changelog.NewSchema(
		changelog.Field{Name: "id", Type: changelog.TypeString},
		changelog.Field{Name: "n", Type: changelog.TypeInt64},
	)
	require.NoError(t, err)
	kv, err := inmem.NewKVInMemKVStore(ctx, "checkpoints")
	require.NoError(t, err)
	return NewManager(ctx, "test", kv, state.NewCodec(schema)), kv
}

func records() []state.Record {
	return []state.Record{
		{Key: `"a"`, State: state.DedupState{Winner: changelog.InsertRow("a", int64(1)), Ordering: 10, HasEmitted: true}},
		{Key: `"b/c"`, State: state.DedupState{Winner: changelog.InsertRow("b/c", int64(2)), Ordering: 20}},
	}
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	m, kv := newManager(t)

	_, _, err := m.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	first, err := m.Save(ctx, 2, records())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Records)

	second, err := m.Save(ctx, 4, records()[:1])
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	manifest, got, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, manifest.ID)
	assert.Equal(t, 4, manifest.Partitions)
	require.Len(t, got, 1)
	assert.Equal(t, changelog.Key(`"a"`), got[0].Key)
	assert.True(t, got[0].State.HasEmitted)
	assert.Equal(t, int64(10), int64(got[0].State.Ordering))

	// the first checkpoint has been pruned
	keys, err := kv.GetAllKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestTornCheckpointIsNotLoaded(t *testing.T) {
	ctx := context.Background()
	m, kv := newManager(t)
	committed, err := m.Save(ctx, 1, records())
	require.NoError(t, err)

	// records of a checkpoint that never committed its manifest
	require.NoError(t, kv.PutKV(ctx, recordKey("torn", "x"), []byte{1, 2, 3}))
	manifest, got, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, committed.ID, manifest.ID)
	assert.Len(t, got, 2)
}

func TestLoadDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	m, kv := newManager(t)
	manifest, err := m.Save(ctx, 1, records())
	require.NoError(t, err)

	require.NoError(t, kv.DeleteKey(ctx, recordKey(manifest.ID, `"a"`)))
	_, _, err = m.Load(ctx)
	assert.ErrorIs(t, err, state.ErrCorruptedState)

	require.NoError(t, kv.PutKV(ctx, recordKey(manifest.ID, `"a"`), []byte("garbage")))
	_, _, err = m.Load(ctx)
	assert.ErrorIs(t, err, state.ErrCorruptedState)

	require.NoError(t, kv.PutKV(ctx, manifestKey, []byte("{")))
	_, err = m.Latest(ctx)
	assert.ErrorIs(t, err, state.ErrCorruptedState)
}
