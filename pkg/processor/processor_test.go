package processor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/config"
	"github.com/numaproj/numadedup/pkg/dedup"
	"github.com/numaproj/numadedup/pkg/shared/expr"
	"github.com/numaproj/numadedup/pkg/watermark/wmb"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	conf := config.Defaults()
	conf.Name = "test"
	conf.Schema = []config.FieldConfig{{Name: "id", Type: "BIGINT"}, {Name: "v", Type: "STRING", Nullable: true}}
	conf.Keys = []string{"id"}
	conf.Metrics.Disable = true
	return &conf
}

func TestDedupProcessorFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":1,"v":"a"}
{"id":1,"v":"skip"}
{"id":1,"v":"b"}
`), 0o600))
	conf := testConfig(t)
	conf.Dedup.Strategy = "LAST_ROW"
	conf.Source.Path = path
	conf.Source.Filter = `v != "skip"`
	conf.Checkpoint.Backend = "memory"
	conf.Checkpoint.Schedule = "@every 1h"
	require.NoError(t, conf.Validate())

	out := new(bytes.Buffer)
	p := &DedupProcessor{Config: conf, Stdout: out}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, p.Start(ctx))
	assert.Equal(t, `{"key":"1","kind":"INSERT","row":{"id":1,"v":"a"}}
{"key":"1","kind":"UPDATE_BEFORE","row":{"id":1,"v":"a"}}
{"key":"1","kind":"UPDATE_AFTER","row":{"id":1,"v":"b"}}
`, out.String())
}

func TestDedupProcessorStdinBlackhole(t *testing.T) {
	conf := testConfig(t)
	conf.Sink.Type = "blackhole"
	conf.Parallelism = 3
	p := &DedupProcessor{Config: conf, Stdin: strings.NewReader(`{"id":1}` + "\n" + `{"id":2}` + "\n")}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	assert.NoError(t, p.Start(ctx))
}

func TestDedupProcessorMissingFile(t *testing.T) {
	conf := testConfig(t)
	conf.Source.Path = filepath.Join(t.TempDir(), "missing.jsonl")
	p := &DedupProcessor{Config: conf}
	err := p.Start(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create source")
}

func TestFeed(t *testing.T) {
	schema, err := changelog.NewSchema(changelog.Field{Name: "id", Type: changelog.TypeInt64})
	require.NoError(t, err)
	filter, err := expr.NewFilter("id > 1", schema)
	require.NoError(t, err)

	in := make(chan dedup.Element, 4)
	out := make(chan dedup.Element, 4)
	in <- dedup.RowElement(changelog.InsertRow(int64(1)))
	in <- dedup.WatermarkElement(wmb.Watermark(time.UnixMilli(5)))
	in <- dedup.RowElement(changelog.InsertRow(int64(2)))
	close(in)
	require.NoError(t, feed(context.Background(), filter, in, nil, out))
	close(out)

	var got []dedup.Element
	for e := range out {
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.True(t, got[0].IsWatermark())
	assert.Equal(t, int64(2), got[1].Row.Fields[0])
}

func TestFeedPlacesBarrierAfterForwardedRows(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	in := make(chan dedup.Element)
	barriers := make(chan *dedup.Barrier)
	out := make(chan dedup.Element, 4)
	done := make(chan error, 1)
	go func() { done <- feed(ctx, nil, in, barriers, out) }()

	in <- dedup.RowElement(changelog.InsertRow(int64(1)))
	b := dedup.NewBarrier()
	barriers <- b
	in <- dedup.RowElement(changelog.InsertRow(int64(2)))
	close(in)
	require.NoError(t, <-done)
	close(out)

	var got []dedup.Element
	for e := range out {
		got = append(got, e)
	}
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0].Row.Fields[0])
	assert.Same(t, b, got[1].Barrier)
	assert.Equal(t, int64(2), got[2].Row.Fields[0])
}

func TestNewKVStoreUnsupported(t *testing.T) {
	_, err := NewKVStore(context.Background(), testConfig(t), "etcd", "b")
	assert.Error(t, err)
}
