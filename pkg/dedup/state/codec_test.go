package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numadedup/pkg/changelog"
)

func testSchema(t *testing.T) *changelog.Schema {
	t.Helper()
	s, err := changelog.NewSchema(
		changelog.Field{Name: "b", Type: changelog.TypeInt64},
		changelog.Field{Name: "name", Type: changelog.TypeString, Nullable: true},
	)
	require.NoError(t, err)
	return s
}

func TestCodecRoundTrip(t *testing.T) {
	c := NewCodec(testSchema(t))
	in := DedupState{
		Winner:     changelog.InsertRow(int64(1), "alice"),
		Ordering:   42,
		HasEmitted: true,
	}
	data, err := c.Encode(in)
	require.NoError(t, err)
	out, err := c.Decode(data)
	require.NoError(t, err)
	assert.True(t, in.Winner.Equal(out.Winner))
	assert.Equal(t, in.Ordering, out.Ordering)
	assert.Equal(t, in.HasEmitted, out.HasEmitted)
}

func TestCodecDetectsCorruption(t *testing.T) {
	c := NewCodec(testSchema(t))
	data, err := c.Encode(DedupState{Winner: changelog.InsertRow(int64(1), nil), Ordering: 1})
	require.NoError(t, err)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-1] ^= 0xFF
	_, err = c.Decode(flipped)
	assert.ErrorIs(t, err, ErrCorruptedState)

	_, err = c.Decode(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrCorruptedState)

	_, err = c.Decode([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCorruptedState)

	_, err = c.Encode(DedupState{Winner: changelog.InsertRow("wrong", nil)})
	assert.ErrorIs(t, err, changelog.ErrSchemaMismatch)
}

func TestDedupStateClone(t *testing.T) {
	s := DedupState{Winner: changelog.InsertRow(int64(1), "a"), Ordering: 3}
	c := s.Clone()
	c.Winner.Fields[1] = "b"
	assert.Equal(t, "a", s.Winner.Fields[1])
}
