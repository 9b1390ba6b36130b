package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/state"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(ctx, "test", WithInitialCapacity(4))

	_, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	row := changelog.InsertRow(int64(1), "a")
	require.NoError(t, s.Put(ctx, "k1", state.DedupState{Winner: row, Ordering: 5, HasEmitted: true}))
	require.NoError(t, s.Put(ctx, "k0", state.DedupState{Winner: changelog.InsertRow(int64(0), "z"), Ordering: 1}))
	assert.Equal(t, 2, s.Len())

	// the stored row must not alias the caller's row
	row.Fields[1] = "mutated"
	got, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", got.Winner.Fields[1])
	assert.Equal(t, int64(5), int64(got.Ordering))
	assert.True(t, got.HasEmitted)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, changelog.Key("k0"), snap[0].Key)
	assert.Equal(t, changelog.Key("k1"), snap[1].Key)

	require.NoError(t, s.Delete(ctx, "k1"))
	assert.Equal(t, 1, s.Len())

	// restore fully replaces the content
	require.NoError(t, s.Restore(ctx, snap[1:]))
	assert.Equal(t, 1, s.Len())
	_, ok, _ = s.Get(ctx, "k0")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "k1")
	assert.True(t, ok)

	require.NoError(t, s.Close())
	_, _, err = s.Get(ctx, "k1")
	assert.ErrorIs(t, err, state.ErrStoreClosed)
	assert.ErrorIs(t, s.Put(ctx, "k1", got), state.ErrStoreClosed)
	_, err = s.Snapshot(ctx)
	assert.ErrorIs(t, err, state.ErrStoreClosed)
}
