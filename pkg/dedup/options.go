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

package dedup

import (
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	"github.com/numaproj/numadedup/pkg/dedup/decision"
	"github.com/numaproj/numadedup/pkg/dedup/ordering"
	"github.com/numaproj/numadedup/pkg/watermark/wmb"
)

const (
	DefaultMiniBatchSize     = 1000
	DefaultMiniBatchInterval = time.Second
	DefaultMaxInFlight       = 16
	DefaultTickInterval      = 100 * time.Millisecond
)

// Options for the dedup operator
type Options struct {
	name                 string
	partition            int
	strategy             decision.Strategy
	orderingSource       ordering.Source
	eventTimeField       string
	miniBatchEnabled     bool
	miniBatchSize        int
	miniBatchInterval    time.Duration
	compactChanges       bool
	asyncStateEnabled    bool
	maxInFlight          int
	generateUpdateBefore bool
	validateOutput       bool
	tickInterval         time.Duration
	clock                clock.WithTicker
	watermark            *wmb.Tracker
	retryBackoff         *wait.Backoff
}

type Option func(*Options) error

func DefaultOptions() *Options {
	return &Options{
		name:                 "dedup",
		strategy:             decision.FirstRow,
		orderingSource:       ordering.ProcessingTime,
		miniBatchSize:        DefaultMiniBatchSize,
		miniBatchInterval:    DefaultMiniBatchInterval,
		compactChanges:       true,
		maxInFlight:          DefaultMaxInFlight,
		generateUpdateBefore: true,
		tickInterval:         DefaultTickInterval,
		clock:                clock.RealClock{},
	}
}

// WithName sets the operator name used in logs and metrics
func WithName(name string) Option {
	return func(o *Options) error {
		o.name = name
		return nil
	}
}

// WithPartition sets the partition index the operator owns
func WithPartition(p int) Option {
	return func(o *Options) error {
		if p < 0 {
			return errors.New("partition index must not be negative")
		}
		o.partition = p
		return nil
	}
}

// WithStrategy sets FIRST_ROW or LAST_ROW selection
func WithStrategy(s decision.Strategy) Option {
	return func(o *Options) error {
		o.strategy = s
		return nil
	}
}

// WithProcessingTime orders rows by their arrival time
func WithProcessingTime() Option {
	return func(o *Options) error {
		o.orderingSource = ordering.ProcessingTime
		o.eventTimeField = ""
		return nil
	}
}

// WithEventTime orders rows by the named BIGINT or TIMESTAMP field
func WithEventTime(field string) Option {
	return func(o *Options) error {
		if field == "" {
			return errors.New("event time ordering requires a field name")
		}
		o.orderingSource = ordering.EventTime
		o.eventTimeField = field
		return nil
	}
}

// WithMiniBatch enables bundling, flushed after size rows or interval, whichever
// comes first. A zero size or interval disables that trigger.
func WithMiniBatch(size int, interval time.Duration) Option {
	return func(o *Options) error {
		if size < 0 || interval < 0 {
			return errors.New("mini-batch size and interval must not be negative")
		}
		if size == 0 && interval == 0 {
			return errors.New("mini-batch requires a size or an interval trigger")
		}
		o.miniBatchEnabled = true
		o.miniBatchSize = size
		o.miniBatchInterval = interval
		return nil
	}
}

// WithCompactChanges selects net change (true) or every intermediate change (false) per bundle
func WithCompactChanges(b bool) Option {
	return func(o *Options) error {
		o.compactChanges = b
		return nil
	}
}

// WithAsyncState lets state access for different keys overlap, with at most
// maxInFlight keys being processed at once
func WithAsyncState(maxInFlight int) Option {
	return func(o *Options) error {
		if maxInFlight < 1 {
			return errors.New("async state requires at least one in-flight request")
		}
		o.asyncStateEnabled = true
		o.maxInFlight = maxInFlight
		return nil
	}
}

// WithGenerateUpdateBefore controls whether updates carry an UPDATE_BEFORE
func WithGenerateUpdateBefore(b bool) Option {
	return func(o *Options) error {
		o.generateUpdateBefore = b
		return nil
	}
}

// WithValidateOutput checks the emitted changelog per key at runtime
func WithValidateOutput(b bool) Option {
	return func(o *Options) error {
		o.validateOutput = b
		return nil
	}
}

// WithTickInterval sets how often Run checks the bundle timer
func WithTickInterval(d time.Duration) Option {
	return func(o *Options) error {
		if d <= 0 {
			return errors.New("tick interval must be positive")
		}
		o.tickInterval = d
		return nil
	}
}

// WithClock replaces the wall clock, used in tests
func WithClock(c clock.WithTicker) Option {
	return func(o *Options) error {
		o.clock = c
		return nil
	}
}

// WithWatermarkTracker shares a watermark tracker, e.g. across partitions fed by one source
func WithWatermarkTracker(t *wmb.Tracker) Option {
	return func(o *Options) error {
		o.watermark = t
		return nil
	}
}

// WithRetryBackoff sets the backoff used while the downstream collector fails
func WithRetryBackoff(b wait.Backoff) Option {
	return func(o *Options) error {
		o.retryBackoff = &b
		return nil
	}
}
