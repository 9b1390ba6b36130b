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
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/shared/logging"
	"github.com/numaproj/numadedup/pkg/shared/util"
)

// DefaultMetricsPort is the port the metrics server listens on when none is configured.
const DefaultMetricsPort = 2469

// metricsServer runs an HTTP server to:
// 1. Expose metrics;
// 2. Serve an endpoint to execute health checks
type metricsServer struct {
	port         int
	pprofEnabled bool
	listener     net.Listener
	// Functions that health check executes
	healthCheckExecutors []func() error
}

type Option func(*metricsServer)

// WithPort sets the listening port, 0 picks a free one
func WithPort(port int) Option {
	return func(m *metricsServer) {
		m.port = port
	}
}

// WithPprof enables the pprof debug endpoints
func WithPprof(enabled bool) Option {
	return func(m *metricsServer) {
		m.pprofEnabled = enabled
	}
}

// WithHealthCheckExecutor appends a health check executor
func WithHealthCheckExecutor(f func() error) Option {
	return func(m *metricsServer) {
		m.healthCheckExecutors = append(m.healthCheckExecutors, f)
	}
}

// NewMetricsOptions returns a metrics option list with one health check executor per checker.
func NewMetricsOptions(ctx context.Context, port int, healthCheckers []HealthChecker) []Option {
	metricsOpts := []Option{
		WithPort(port),
		WithPprof(util.LookupEnvStringOr(logging.EnvDebug, "false") == "true"),
	}
	if util.LookupEnvStringOr(EnvHealthCheckDisabled, "false") != "true" {
		for _, hc := range healthCheckers {
			hc := hc
			metricsOpts = append(metricsOpts, WithHealthCheckExecutor(func() error {
				cctx, cancel := context.WithTimeout(ctx, util.LookupEnvDurationOr(EnvHealthCheckTimeout, 30*time.Second))
				defer cancel()
				return hc.IsHealthy(cctx)
			}))
		}
	}
	return metricsOpts
}

const (
	// EnvHealthCheckDisabled turns the readiness checks off.
	EnvHealthCheckDisabled = "NUMADEDUP_HEALTH_CHECK_DISABLED"
	// EnvHealthCheckTimeout bounds each readiness check, e.g. "5s".
	EnvHealthCheckTimeout = "NUMADEDUP_HEALTH_CHECK_TIMEOUT"
)

// NewMetricsServer returns a Prometheus metrics server instance, which can be used to start an HTTP service to expose Prometheus metrics.
func NewMetricsServer(opts ...Option) *metricsServer {
	m := new(metricsServer)
	m.port = DefaultMetricsPort
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Addr returns the address the server listens on, nil before Start.
func (ms *metricsServer) Addr() net.Addr {
	if ms.listener == nil {
		return nil
	}
	return ms.listener.Addr()
}

// Start function starts the HTTP service to expose metrics, it returns a shutdown function and an error if any
func (ms *metricsServer) Start(ctx context.Context) (func(ctx context.Context) error, error) {
	log := logging.FromContext(ctx)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		for _, ex := range ms.healthCheckExecutors {
			if err := ex(); err != nil {
				log.Errorw("Failed to execute health check", zap.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if ms.pprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		log.Info("Not enabling pprof debug endpoints")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", ms.port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d, %w", ms.port, err)
	}
	ms.listener = listener
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("Starting metrics HTTP server", zap.String("addr", listener.Addr().String()))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Metrics server stopped unexpectedly", zap.Error(err))
		}
		log.Info("Metrics server shutdown")
	}()
	return httpServer.Shutdown, nil
}
