package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup"
	"github.com/numaproj/numadedup/pkg/sources/jsonl"
)

func TestWithBufferSize(t *testing.T) {
	h := &httpSource{
		bufferSize: 10,
	}
	opt := WithBufferSize(100)
	assert.NoError(t, opt(h))
	assert.Equal(t, 100, h.bufferSize)
	assert.Error(t, WithBufferSize(-1)(h))
}

func newSource(t *testing.T, opts ...Option) *httpSource {
	t.Helper()
	schema, err := changelog.NewSchema(
		changelog.Field{Name: "id", Type: changelog.TypeString},
		changelog.Field{Name: "ts", Type: changelog.TypeInt64},
	)
	require.NoError(t, err)
	s, err := NewHttpSource(context.Background(), "http-test", jsonl.NewDecoder(schema, nil), append([]Option{WithPort(0)}, opts...)...)
	require.NoError(t, err)
	return s.(*httpSource)
}

func TestHttpSource(t *testing.T) {
	h := newSource(t, WithAuthToken("secret"))
	defer func() { assert.NoError(t, h.Close()) }()
	e := httpexpect.Default(t, "http://"+h.Addr())

	e.GET("/health").Expect().Status(http.StatusServiceUnavailable)
	e.POST(RowsPath).WithHeader("Authorization", "Bearer secret").
		WithText(`{"id":"a","ts":1}`).Expect().Status(http.StatusServiceUnavailable)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := make(chan dedup.Element, 10)
	done := make(chan error, 1)
	go func() { done <- h.Start(ctx, out) }()
	require.Eventually(t, func() bool { return h.ready.Load() }, time.Second, 10*time.Millisecond)

	e.GET("/health").Expect().Status(http.StatusNoContent)
	e.POST(RowsPath).WithText(`{"id":"a","ts":1}`).Expect().Status(http.StatusForbidden)
	e.GET(RowsPath).WithHeader("Authorization", "Bearer secret").Expect().Status(http.StatusMethodNotAllowed)
	e.POST(RowsPath).WithHeader("Authorization", "Bearer secret").
		WithText("{\"id\":\"a\",\"ts\":1}\nnot json\n").
		Expect().Status(http.StatusBadRequest).Body().Contains("line 2")
	e.POST(RowsPath).WithHeader("Authorization", "Bearer secret").
		WithText("{\"id\":\"a\",\"ts\":1}\n\n{\"watermark\":7}\n{\"kind\":\"-D\",\"row\":{\"id\":\"a\",\"ts\":1}}\n").
		Expect().Status(http.StatusNoContent)

	var got []dedup.Element
	for i := 0; i < 3; i++ {
		got = append(got, <-out)
	}
	assert.Equal(t, "a", got[0].Row.Fields[0])
	assert.True(t, got[1].IsWatermark())
	assert.Equal(t, changelog.Delete, got[2].Row.Kind)
	// the rejected request queued nothing
	assert.Len(t, out, 0)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
