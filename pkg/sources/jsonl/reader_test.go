package jsonl

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numadedup/pkg/dedup"
	"github.com/numaproj/numadedup/pkg/shared/expr"
)

const input = `
# comment
{"id":"a","n":1}
{"id":"b","n":-1}
garbage
{"watermark":5}

{"id":"c","n":3}
`

func TestReaderStart(t *testing.T) {
	ctx := context.Background()
	schema := testSchema(t)
	filter, err := expr.NewFilter("n > 0", schema)
	require.NoError(t, err)
	r, err := NewReader(ctx, "reader-test", schema, strings.NewReader(input), WithFilter(filter))
	require.NoError(t, err)
	assert.Equal(t, "reader-test", r.GetName())

	out := make(chan dedup.Element, 10)
	require.NoError(t, r.Start(ctx, out))
	close(out)
	var got []dedup.Element
	for e := range out {
		got = append(got, e)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Row.Fields[0])
	assert.True(t, got[1].IsWatermark())
	assert.Equal(t, "c", got[2].Row.Fields[0])

	assert.Equal(t, float64(5), testutil.ToFloat64(jsonlSourceReadCount.WithLabelValues("reader-test")))
	assert.Equal(t, float64(1), testutil.ToFloat64(jsonlSourceMalformedCount.WithLabelValues("reader-test")))
	assert.Equal(t, float64(1), testutil.ToFloat64(jsonlSourceFilteredCount.WithLabelValues("reader-test")))
	require.NoError(t, r.Close())
}

func TestReaderStopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r, err := NewReader(ctx, "cancel-test", testSchema(t), strings.NewReader(input))
	require.NoError(t, err)
	cancel()
	assert.ErrorIs(t, r.Start(ctx, make(chan dedup.Element)), context.Canceled)
}

func TestReaderLineTooLong(t *testing.T) {
	ctx := context.Background()
	r, err := NewReader(ctx, "long-test", testSchema(t), strings.NewReader(`{"id":"`+strings.Repeat("x", 100)+`"}`), WithMaxLineSize(16))
	require.NoError(t, err)
	assert.Error(t, r.Start(ctx, make(chan dedup.Element, 1)))

	_, err = NewReader(ctx, "bad", testSchema(t), strings.NewReader(""), WithMaxLineSize(0))
	assert.Error(t, err)
}
