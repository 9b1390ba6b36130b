package ordering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/watermark/wmb"
)

func TestParseSource(t *testing.T) {
	s, err := ParseSource("event_time")
	assert.NoError(t, err)
	assert.Equal(t, EventTime, s)
	s, err = ParseSource("")
	assert.NoError(t, err)
	assert.Equal(t, ProcessingTime, s)
	_, err = ParseSource("ingestion")
	assert.Error(t, err)
	assert.Equal(t, "EVENT_TIME", EventTime.String())
}

func TestProcessingTimeNeverDecreases(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.UnixMilli(1000))
	e := NewProcessingTimeExtractor(clk)
	assert.Equal(t, ProcessingTime, e.Source())

	v, err := e.Extract(changelog.InsertRow())
	require.NoError(t, err)
	assert.Equal(t, Value(1000), v)

	clk.SetTime(time.UnixMilli(900))
	v, err = e.Extract(changelog.InsertRow())
	require.NoError(t, err)
	assert.Equal(t, Value(1000), v)

	clk.SetTime(time.UnixMilli(1500))
	v, _ = e.Extract(changelog.InsertRow())
	assert.Equal(t, Value(1500), v)
	assert.False(t, e.IsLate(v))
	assert.Nil(t, e.Watermark())
}

func TestEventTimeExtractor(t *testing.T) {
	schema, err := changelog.NewSchema(
		changelog.Field{Name: "b", Type: changelog.TypeInt64},
		changelog.Field{Name: "t", Type: changelog.TypeInt64, Nullable: true},
		changelog.Field{Name: "ts", Type: changelog.TypeTimestamp},
		changelog.Field{Name: "s", Type: changelog.TypeString},
	)
	require.NoError(t, err)

	_, err = NewEventTimeExtractor(schema, "missing", nil)
	assert.Error(t, err)
	_, err = NewEventTimeExtractor(schema, "s", nil)
	assert.Error(t, err)

	tracker := wmb.NewTracker()
	e, err := NewEventTimeExtractor(schema, "t", tracker)
	require.NoError(t, err)
	assert.Equal(t, EventTime, e.Source())

	v, err := e.Extract(changelog.InsertRow(int64(1), int64(5), time.UnixMilli(0), "x"))
	require.NoError(t, err)
	assert.Equal(t, Value(5), v)

	_, err = e.Extract(changelog.InsertRow(int64(1), nil, time.UnixMilli(0), "x"))
	assert.ErrorIs(t, err, ErrMalformedOrdering)
	_, err = e.Extract(changelog.InsertRow(int64(1)))
	assert.ErrorIs(t, err, ErrMalformedOrdering)

	tracker.Advance(wmb.Watermark(time.UnixMilli(5)))
	assert.True(t, e.IsLate(4))
	assert.False(t, e.IsLate(5))

	ts, err := NewEventTimeExtractor(schema, "ts", nil)
	require.NoError(t, err)
	v, err = ts.Extract(changelog.InsertRow(int64(1), nil, time.UnixMilli(77), "x"))
	require.NoError(t, err)
	assert.Equal(t, Value(77), v)
	assert.NotNil(t, ts.Watermark())
}

func TestProcessingTimeRaiseFloor(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.UnixMilli(5000))
	e := NewProcessingTimeExtractor(clk)
	e.RaiseFloor(10000)
	e.RaiseFloor(7000)

	v, err := e.Extract(changelog.InsertRow())
	require.NoError(t, err)
	assert.Equal(t, Value(10000), v)

	clk.SetTime(time.UnixMilli(12000))
	v, _ = e.Extract(changelog.InsertRow())
	assert.Equal(t, Value(12000), v)
}
