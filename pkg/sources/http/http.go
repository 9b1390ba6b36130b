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

// Package http receives operator input over HTTP. Each POST to /rows carries
// one or more JSON lines, decoded the same way as the jsonl source.
package http

import (
	"bufio"
	"bytes"
	"context"
	"crypto/subtle"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/dedup"
	"github.com/numaproj/numadedup/pkg/shared/logging"
	sharedtls "github.com/numaproj/numadedup/pkg/shared/tls"
	"github.com/numaproj/numadedup/pkg/sources"
	"github.com/numaproj/numadedup/pkg/sources/jsonl"
)

const (
	DefaultPort   = 8443
	RowsPath      = "/rows"
	maxBodyLength = 8 * 1024 * 1024
)

type httpSource struct {
	name       string
	port       int
	authToken  string
	tls        bool
	bufferSize int
	decoder    *jsonl.Decoder
	ready      *atomic.Bool
	messages   chan dedup.Element
	listener   net.Listener
	server     *http.Server
	logger     *zap.SugaredLogger
}

type Option func(*httpSource) error

// WithBufferSize sets how many elements are queued before requests block
func WithBufferSize(s int) Option {
	return func(o *httpSource) error {
		if s < 0 {
			return fmt.Errorf("buffer size must not be negative, got %d", s)
		}
		o.bufferSize = s
		return nil
	}
}

// WithPort sets the listening port, 0 picks a free one
func WithPort(p int) Option {
	return func(o *httpSource) error {
		o.port = p
		return nil
	}
}

// WithAuthToken requires "Authorization: Bearer <token>" on every POST
func WithAuthToken(token string) Option {
	return func(o *httpSource) error {
		o.authToken = token
		return nil
	}
}

// WithTLS serves HTTPS with a self-signed certificate
func WithTLS(b bool) Option {
	return func(o *httpSource) error {
		o.tls = b
		return nil
	}
}

// NewHttpSource creates a new http source and starts listening. Elements are
// only accepted once Start runs.
func NewHttpSource(ctx context.Context, name string, decoder *jsonl.Decoder, opts ...Option) (sources.Source, error) {
	h := &httpSource{
		name:       name,
		port:       DefaultPort,
		bufferSize: 1000, // default size
		decoder:    decoder,
		ready:      atomic.NewBool(false),
		logger:     logging.FromContext(ctx).With("source", name),
	}
	for _, o := range opts {
		if err := o(h); err != nil {
			return nil, err
		}
	}
	h.messages = make(chan dedup.Element, h.bufferSize)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !h.ready.Load() {
			http.Error(w, "http source not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc(RowsPath, h.handleRows)
	h.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if h.tls {
		cer, err := sharedtls.GenerateX509KeyPair()
		if err != nil {
			return nil, fmt.Errorf("failed to generate cert: %w", err)
		}
		h.server.TLSConfig = &tls.Config{Certificates: []tls.Certificate{*cer}, MinVersion: tls.VersionTLS12}
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", h.port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d, %w", h.port, err)
	}
	h.listener = ln
	go func() {
		h.logger.Infow("Starting http source server", zap.String("addr", ln.Addr().String()), zap.Bool("tls", h.tls))
		var err error
		if h.tls {
			err = h.server.ServeTLS(ln, "", "")
		} else {
			err = h.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Errorw("Http source server stopped", zap.Error(err))
		}
		h.logger.Info("Shutdown http source server")
	}()
	return h, nil
}

func (h *httpSource) handleRows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.authToken != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte("Bearer "+h.authToken)) != 1 {
		http.Error(w, "request not authorized", http.StatusForbidden)
		return
	}
	if !h.ready.Load() {
		http.Error(w, "http source not ready", http.StatusServiceUnavailable)
		return
	}
	var elements []dedup.Element
	scanner := bufio.NewScanner(http.MaxBytesReader(w, r.Body, maxBodyLength))
	scanner.Buffer(make([]byte, 0, 64*1024), maxBodyLength)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		e, err := h.decoder.Decode(line)
		if err != nil {
			httpSourceRejectCount.WithLabelValues(h.name).Inc()
			http.Error(w, fmt.Sprintf("line %d: %s", lineNo, err), http.StatusBadRequest)
			return
		}
		elements = append(elements, e)
	}
	if err := scanner.Err(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// a request is either fully queued or rejected before any element is queued
	for _, e := range elements {
		select {
		case h.messages <- e:
			httpSourceReadCount.WithLabelValues(h.name).Inc()
		case <-r.Context().Done():
			http.Error(w, "request cancelled", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetName returns the name of the source.
func (h *httpSource) GetName() string {
	return h.name
}

// Addr returns the address the server listens on.
func (h *httpSource) Addr() string {
	return h.listener.Addr().String()
}

// Start forwards received elements to out until ctx is done.
func (h *httpSource) Start(ctx context.Context, out chan<- dedup.Element) error {
	h.ready.Store(true)
	defer h.ready.Store(false)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-h.messages:
			select {
			case out <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (h *httpSource) Close() error {
	h.logger.Info("Shutting down http source server...")
	h.ready.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		return err
	}
	h.logger.Info("HTTP source server shutdown")
	return nil
}
