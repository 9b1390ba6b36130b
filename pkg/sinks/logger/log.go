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

package logger

import (
	"context"
	"io"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/shared/logging"
)

// ToLog prints every changelog event as a JSON line.
type ToLog struct {
	name   string
	schema *changelog.Schema
	out    *log.Logger
	logger *zap.SugaredLogger
}

type Option func(*ToLog) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToLog) error {
		t.logger = log
		return nil
	}
}

// WithWriter replaces the default stdout destination.
func WithWriter(w io.Writer) Option {
	return func(t *ToLog) error {
		t.out = log.New(w, "", 0)
		return nil
	}
}

// NewToLog returns ToLog type.
func NewToLog(ctx context.Context, name string, schema *changelog.Schema, opts ...Option) (*ToLog, error) {
	toLog := &ToLog{
		name:   name,
		schema: schema,
		out:    log.New(os.Stdout, "", 0),
	}
	for _, o := range opts {
		if err := o(toLog); err != nil {
			return nil, err
		}
	}
	if toLog.logger == nil {
		toLog.logger = logging.FromContext(ctx)
	}
	return toLog, nil
}

// GetName returns the name.
func (t *ToLog) GetName() string {
	return t.name
}

// Collect writes the events to the log. Events are encoded before anything is
// written so that a bad event does not leave half a batch behind.
func (t *ToLog) Collect(_ context.Context, events []changelog.Event) error {
	lines := make([][]byte, 0, len(events))
	for _, e := range events {
		line, err := changelog.MarshalEventJSON(t.schema, e)
		if err != nil {
			return err
		}
		lines = append(lines, line)
	}
	for _, line := range lines {
		t.out.Println(string(line))
	}
	logSinkWriteCount.WithLabelValues(t.name).Add(float64(len(lines)))
	return nil
}

func (t *ToLog) Close() error {
	return nil
}
