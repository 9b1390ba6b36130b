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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreRegistered(t *testing.T) {
	EventsEmitted.WithLabelValues("metrics-test", "0", "INSERT").Add(2)
	assert.Equal(t, float64(2), testutil.ToFloat64(EventsEmitted.WithLabelValues("metrics-test", "0", "INSERT")))

	BundleSize.WithLabelValues("metrics-test", "0").Observe(3)
	m := &dto.Metric{}
	h, err := BundleSize.GetMetricWithLabelValues("metrics-test", "0")
	require.NoError(t, err)
	require.NoError(t, h.(interface{ Write(*dto.Metric) error }).Write(m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())

	StateKeys.WithLabelValues("metrics-test", "0").Set(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(StateKeys.WithLabelValues("metrics-test", "0")))
}
