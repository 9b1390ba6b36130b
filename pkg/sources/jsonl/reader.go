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

// Package jsonl reads operator input from newline delimited JSON.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup"
	"github.com/numaproj/numadedup/pkg/shared/expr"
	"github.com/numaproj/numadedup/pkg/shared/logging"
	"github.com/numaproj/numadedup/pkg/sources"
)

const defaultMaxLineSize = 1024 * 1024

type options struct {
	filter      *expr.Filter
	maxLineSize int
	location    *time.Location
}

// Option to apply to the reader
type Option func(*options) error

// WithFilter drops rows the filter does not match. Watermarks always pass.
func WithFilter(f *expr.Filter) Option {
	return func(o *options) error {
		o.filter = f
		return nil
	}
}

// WithMaxLineSize sets the longest accepted line in bytes
func WithMaxLineSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("max line size must be positive, got %d", n)
		}
		o.maxLineSize = n
		return nil
	}
}

// WithLocation sets the zone of date strings that carry none
func WithLocation(loc *time.Location) Option {
	return func(o *options) error {
		o.location = loc
		return nil
	}
}

// Reader reads elements from r, one JSON object per line. Empty lines and lines
// starting with '#' are ignored, malformed lines are logged and skipped.
type Reader struct {
	name    string
	r       io.Reader
	decoder *Decoder
	opts    *options
	log     *zap.SugaredLogger
}

// NewReader returns a Reader of rows of schema.
func NewReader(ctx context.Context, name string, schema *changelog.Schema, r io.Reader, opts ...Option) (*Reader, error) {
	o := &options{maxLineSize: defaultMaxLineSize}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return &Reader{
		name:    name,
		r:       r,
		decoder: NewDecoder(schema, o.location),
		opts:    o,
		log:     logging.FromContext(ctx).With("source", name),
	}, nil
}

// GetName returns the name of the source.
func (jr *Reader) GetName() string {
	return jr.name
}

// Start sends the elements read to out until the input ends or ctx is done.
// It does not close out.
func (jr *Reader) Start(ctx context.Context, out chan<- dedup.Element) error {
	scanner := bufio.NewScanner(jr.r)
	scanner.Buffer(make([]byte, 0, 64*1024), jr.opts.maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		jsonlSourceReadCount.WithLabelValues(jr.name).Inc()
		e, ok := jr.element(lineNo, line)
		if !ok {
			continue
		}
		select {
		case out <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read line %d, %w", lineNo+1, err)
	}
	jr.log.Infow("Reached end of input", zap.Int("lines", lineNo))
	return nil
}

func (jr *Reader) element(lineNo int, line []byte) (dedup.Element, bool) {
	e, err := jr.decoder.Decode(line)
	if err != nil {
		jsonlSourceMalformedCount.WithLabelValues(jr.name).Inc()
		jr.log.Warnw("Skipping malformed line", zap.Int("line", lineNo), zap.Error(err))
		return dedup.Element{}, false
	}
	if e.IsWatermark() || jr.opts.filter == nil {
		return e, true
	}
	match, err := jr.opts.filter.Match(e.Row)
	if err != nil {
		jsonlSourceMalformedCount.WithLabelValues(jr.name).Inc()
		jr.log.Warnw("Skipping line the filter can not evaluate", zap.Int("line", lineNo), zap.Error(err))
		return dedup.Element{}, false
	}
	if !match {
		jsonlSourceFilteredCount.WithLabelValues(jr.name).Inc()
		return dedup.Element{}, false
	}
	return e, true
}

// Close is a no-op, the caller owns the underlying reader.
func (jr *Reader) Close() error {
	return nil
}

var _ sources.Source = (*Reader)(nil)
