package minibatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/numaproj/numadedup/pkg/changelog"
)

func TestTriggerCount(t *testing.T) {
	tr := NewTrigger(3, 0, testingclock.NewFakePassiveClock(time.Unix(0, 0)))
	assert.False(t, tr.OnElement())
	assert.False(t, tr.OnElement())
	assert.True(t, tr.OnElement())
	assert.Equal(t, 3, tr.Count())
	assert.False(t, tr.OnTick())
	tr.Reset()
	assert.Equal(t, 0, tr.Count())
	assert.False(t, tr.OnElement())
}

func TestTriggerInterval(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Unix(100, 0))
	tr := NewTrigger(0, time.Second, clk)
	assert.False(t, tr.OnTick(), "empty bundle never fires")

	assert.False(t, tr.OnElement())
	clk.SetTime(clk.Now().Add(500 * time.Millisecond))
	assert.False(t, tr.OnTick())
	clk.SetTime(clk.Now().Add(500 * time.Millisecond))
	assert.True(t, tr.OnTick())
	assert.True(t, tr.OnElement())

	tr.Reset()
	clk.SetTime(clk.Now().Add(time.Hour))
	assert.False(t, tr.OnTick())
	assert.False(t, tr.OnElement(), "the interval counts from the first row of a bundle")
}

func TestTriggerWhicheverFirst(t *testing.T) {
	clk := testingclock.NewFakePassiveClock(time.Unix(0, 0))
	tr := NewTrigger(100, time.Second, clk)
	assert.False(t, tr.OnElement())
	clk.SetTime(clk.Now().Add(2 * time.Second))
	assert.True(t, tr.OnElement())
}

func TestBundle(t *testing.T) {
	b := NewBundle()
	b.Add("k2", changelog.InsertRow(int64(2)), 1)
	b.Add("k1", changelog.InsertRow(int64(1)), 2)
	b.Add("k2", changelog.InsertRow(int64(3)), 3)
	assert.Equal(t, []changelog.Key{"k2", "k1"}, b.Keys())
	assert.Equal(t, 3, b.Len())
	rows := b.Rows("k2")
	assert.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[1].Row.Fields[0])
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Keys())
	assert.Empty(t, b.Rows("k2"))
}
