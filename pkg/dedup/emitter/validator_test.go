package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numadedup/pkg/changelog"
)

func ev(key string, kind changelog.Kind, v string) changelog.Event {
	return changelog.NewEvent(changelog.Key(key), changelog.InsertRow(v), kind)
}

func TestValidatorAcceptsWellFormed(t *testing.T) {
	v := NewValidator(true)
	require.NoError(t, v.Observe(
		ev("a", changelog.Insert, "1"),
		ev("b", changelog.Insert, "x"),
		ev("a", changelog.UpdateBefore, "1"),
		ev("a", changelog.UpdateAfter, "2"),
		ev("a", changelog.Delete, "2"),
		ev("a", changelog.Insert, "3"),
	))
	row, ok := v.Visible("a")
	require.True(t, ok)
	assert.Equal(t, "3", row.Fields[0])
	_, ok = v.Visible("c")
	assert.False(t, ok)
}

func TestValidatorRejects(t *testing.T) {
	tests := []struct {
		name   string
		events []changelog.Event
	}{
		{"double insert", []changelog.Event{ev("a", changelog.Insert, "1"), ev("a", changelog.Insert, "2")}},
		{"update before of another row", []changelog.Event{ev("a", changelog.Insert, "1"), ev("a", changelog.UpdateBefore, "2")}},
		{"update after without before", []changelog.Event{ev("a", changelog.Insert, "1"), ev("a", changelog.UpdateAfter, "2")}},
		{"update after of unseen key", []changelog.Event{ev("a", changelog.UpdateAfter, "1")}},
		{"insert between pair", []changelog.Event{ev("a", changelog.Insert, "1"), ev("a", changelog.UpdateBefore, "1"), ev("a", changelog.Insert, "2")}},
		{"delete of unseen key", []changelog.Event{ev("a", changelog.Delete, "1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, NewValidator(true).Observe(tt.events...), ErrMalformedChangelog)
		})
	}
}

func TestValidatorUpsert(t *testing.T) {
	v := NewValidator(false)
	require.NoError(t, v.Observe(ev("a", changelog.Insert, "1"), ev("a", changelog.UpdateAfter, "2")))
	row, _ := v.Visible("a")
	assert.Equal(t, "2", row.Fields[0])
}

func TestValidatorObserveIsAtomic(t *testing.T) {
	v := NewValidator(true)
	require.NoError(t, v.Check(ev("a", changelog.Insert, "1")))
	_, ok := v.Visible("a")
	assert.False(t, ok)

	err := v.Observe(ev("a", changelog.Insert, "1"), ev("b", changelog.Delete, "1"))
	assert.ErrorIs(t, err, ErrMalformedChangelog)
	_, ok = v.Visible("a")
	assert.False(t, ok)

	require.NoError(t, v.Observe(ev("a", changelog.Insert, "1")))
	require.NoError(t, v.Observe(ev("a", changelog.Delete, "1")))
	_, ok = v.Visible("a")
	assert.False(t, ok)
}

func TestValidatorSeed(t *testing.T) {
	v := NewValidator(true)
	require.NoError(t, v.Observe(ev("stale", changelog.Insert, "0")))
	v.Reset()
	v.Seed("a", changelog.InsertRow("1"))

	_, ok := v.Visible("stale")
	assert.False(t, ok)
	assert.ErrorIs(t, v.Check(ev("a", changelog.Insert, "2")), ErrMalformedChangelog)
	require.NoError(t, v.Observe(
		ev("a", changelog.UpdateBefore, "1"),
		ev("a", changelog.UpdateAfter, "2"),
		ev("stale", changelog.Insert, "0"),
	))
	row, ok := v.Visible("a")
	require.True(t, ok)
	assert.Equal(t, "2", row.Fields[0])
}
