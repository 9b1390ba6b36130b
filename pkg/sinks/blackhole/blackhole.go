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

	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/shared/logging"
)

// Blackhole drops every event, counting them by kind. It is used to measure
// the operator without a downstream system.
type Blackhole struct {
	name   string
	logger *zap.SugaredLogger
}

// NewBlackhole returns a new Blackhole sink.
func NewBlackhole(ctx context.Context, name string) *Blackhole {
	return &Blackhole{
		name:   name,
		logger: logging.FromContext(ctx),
	}
}

// GetName returns the name.
func (b *Blackhole) GetName() string {
	return b.name
}

// Collect counts events and drops them.
func (b *Blackhole) Collect(_ context.Context, events []changelog.Event) error {
	var counts [4]int
	for _, e := range events {
		if k := int(e.Row.Kind); k >= 0 && k < len(counts) {
			counts[k]++
		}
	}
	for k, n := range counts {
		if n > 0 {
			sinkWriteCount.WithLabelValues(b.name, changelog.Kind(k).String()).Add(float64(n))
		}
	}
	return nil
}

func (b *Blackhole) Close() error {
	b.logger.Debugw("Closed blackhole sink", "name", b.name)
	return nil
}
