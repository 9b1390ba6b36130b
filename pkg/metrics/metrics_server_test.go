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
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_StartMetricsServer(t *testing.T) {
	healthy := true
	ms := NewMetricsServer(WithPort(0), WithHealthCheckExecutor(func() error {
		if !healthy {
			return errors.New("state backend unreachable")
		}
		return nil
	}))
	s, err := ms.Start(context.TODO())
	require.NoError(t, err)
	require.NotNil(t, s)
	e := httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  fmt.Sprintf("http://%s", ms.Addr().String()),
		Reporter: httpexpect.NewRequireReporter(t),
	})
	e.GET("/livez").WithMaxRetries(3).WithRetryDelay(time.Second, 3*time.Second).Expect().Status(204)
	e.GET("/readyz").Expect().Status(204)
	RowsRead.WithLabelValues("server-test", "0").Inc()
	e.GET("/metrics").Expect().Status(200).Body().Contains("dedup_rows_read_total")
	healthy = false
	e.GET("/readyz").Expect().Status(500).Body().Contains("unreachable")
	assert.NoError(t, s(context.TODO()))
}

func Test_MetricsServer_Options(t *testing.T) {
	ms := NewMetricsServer()
	assert.Equal(t, DefaultMetricsPort, ms.port)
	assert.Nil(t, ms.Addr())
	ms = NewMetricsServer(WithPort(9999), WithPprof(true), nil)
	assert.Equal(t, 9999, ms.port)
	assert.True(t, ms.pprofEnabled)
}

func Test_MetricsServer_NewMetricsOptions(t *testing.T) {
	called := 0
	hc := HealthCheckerFunc(func(ctx context.Context) error {
		called++
		return nil
	})
	opts := NewMetricsOptions(context.Background(), 1234, []HealthChecker{hc, hc})
	assert.Equal(t, 4, len(opts))
	m := NewMetricsServer(opts...)
	assert.Equal(t, 1234, m.port)
	require.Len(t, m.healthCheckExecutors, 2)
	for _, ex := range m.healthCheckExecutors {
		assert.NoError(t, ex())
	}
	assert.Equal(t, 2, called)

	t.Setenv(EnvHealthCheckDisabled, "true")
	assert.Equal(t, 2, len(NewMetricsOptions(context.Background(), 1234, []HealthChecker{hc})))
}
