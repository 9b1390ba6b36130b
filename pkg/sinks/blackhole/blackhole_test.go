/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package blackhole

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/numaproj/numadedup/pkg/changelog"
)

func TestBlackhole_Collect(t *testing.T) {
	s := NewBlackhole(context.Background(), "sinks.blackhole")
	assert.Equal(t, "sinks.blackhole", s.GetName())
	events := make([]changelog.Event, 20)
	for i := range events {
		kind := changelog.Insert
		if i%4 == 1 {
			kind = changelog.UpdateBefore
		} else if i%4 == 2 {
			kind = changelog.UpdateAfter
		}
		events[i] = changelog.NewEvent("k", changelog.InsertRow(int64(i)), kind)
	}
	assert.NoError(t, s.Collect(context.Background(), events[:5]))
	assert.NoError(t, s.Collect(context.Background(), events[5:]))
	assert.Equal(t, float64(10), testutil.ToFloat64(sinkWriteCount.WithLabelValues("sinks.blackhole", "INSERT")))
	assert.Equal(t, float64(5), testutil.ToFloat64(sinkWriteCount.WithLabelValues("sinks.blackhole", "UPDATE_BEFORE")))
	assert.Equal(t, float64(5), testutil.ToFloat64(sinkWriteCount.WithLabelValues("sinks.blackhole", "UPDATE_AFTER")))
	assert.NoError(t, s.Close())
}
