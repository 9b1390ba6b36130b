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

// Package dedup implements the keyed deduplication operator. For every key it
// keeps a single winner row, picked by FIRST_ROW or LAST_ROW over processing
// or event time, and emits the changes of the winner as a changelog.
//
// Rows are either applied one at a time or buffered in a bundle and applied per
// key when the bundle trigger fires. Both paths run the same decision engine
// and end in the same state.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/async"
	"github.com/numaproj/numadedup/pkg/dedup/decision"
	"github.com/numaproj/numadedup/pkg/dedup/emitter"
	"github.com/numaproj/numadedup/pkg/dedup/minibatch"
	"github.com/numaproj/numadedup/pkg/dedup/ordering"
	"github.com/numaproj/numadedup/pkg/dedup/state"
	"github.com/numaproj/numadedup/pkg/metrics"
	"github.com/numaproj/numadedup/pkg/shared/logging"
	"github.com/numaproj/numadedup/pkg/watermark/wmb"
)

// ErrOperatorClosed is returned for any call after Close.
var ErrOperatorClosed = errors.New("dedup operator is closed")

const (
	reasonMalformedOrdering = "malformed_ordering"
	reasonSchemaMismatch    = "schema_mismatch"
)

// Operator deduplicates the rows of one partition. Its methods may be called
// from different goroutines but are serialized.
type Operator struct {
	sync.Mutex
	id        string
	name      string
	partition string
	schema    *changelog.Schema
	keys      *changelog.KeySelector
	extractor *ordering.Extractor
	engine    *decision.Engine
	emitter   *emitter.Emitter
	validator *emitter.Validator
	store     state.Store
	compactor *minibatch.Compactor
	trigger   *minibatch.Trigger
	bundle    *minibatch.Bundle
	executor  *async.Executor
	opts      *Options
	closed    bool
	log       *zap.SugaredLogger
}

// NewOperator returns an operator keyed by keyFields of schema, keeping its
// state in store and emitting to collector. The operator owns store and closes
// it with itself.
func NewOperator(ctx context.Context, schema *changelog.Schema, keyFields []string, store state.Store, collector emitter.Collector, opts ...Option) (*Operator, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	keys, err := changelog.NewKeySelector(schema, keyFields...)
	if err != nil {
		return nil, err
	}
	var extractor *ordering.Extractor
	if options.orderingSource == ordering.EventTime {
		if extractor, err = ordering.NewEventTimeExtractor(schema, options.eventTimeField, options.watermark); err != nil {
			return nil, err
		}
	} else {
		extractor = ordering.NewProcessingTimeExtractor(options.clock)
	}

	op := &Operator{
		id:        uuid.NewString(),
		name:      options.name,
		partition: strconv.Itoa(options.partition),
		schema:    schema,
		keys:      keys,
		extractor: extractor,
		engine:    decision.NewEngine(options.strategy),
		store:     store,
		opts:      options,
	}
	op.log = logging.FromContext(ctx).With("operator", op.name, "partition", options.partition, "instance", op.id)
	ctx = logging.WithLogger(ctx, op.log)

	emitterOpts := []emitter.Option{emitter.WithGenerateUpdateBefore(options.generateUpdateBefore)}
	if options.validateOutput {
		op.validator = emitter.NewValidator(options.generateUpdateBefore)
		emitterOpts = append(emitterOpts, emitter.WithValidator(op.validator))
	}
	if options.retryBackoff != nil {
		emitterOpts = append(emitterOpts, emitter.WithRetryBackoff(*options.retryBackoff))
	}
	op.emitter = emitter.NewEmitter(ctx, collector, emitterOpts...)

	mode := minibatch.Compact
	if !options.compactChanges {
		mode = minibatch.Verbose
	}
	parallelism := 1
	if options.asyncStateEnabled && options.miniBatchEnabled {
		parallelism = options.maxInFlight
	}
	op.compactor = minibatch.NewCompactor(ctx, op.engine, op.emitter, store, mode, parallelism)

	if options.miniBatchEnabled {
		op.trigger = minibatch.NewTrigger(options.miniBatchSize, options.miniBatchInterval, options.clock)
		op.bundle = minibatch.NewBundle()
	} else if options.asyncStateEnabled {
		op.executor = async.NewExecutor(ctx, options.maxInFlight, options.maxInFlight)
	}

	op.log.Infow("Created dedup operator",
		zap.String("strategy", options.strategy.String()),
		zap.String("ordering", extractor.Source().String()),
		zap.Bool("miniBatch", options.miniBatchEnabled),
		zap.Bool("compactChanges", options.compactChanges),
		zap.Bool("asyncState", options.asyncStateEnabled))
	return op, nil
}

// Name returns the operator name.
func (o *Operator) Name() string {
	return o.name
}

// ProcessElement handles one input row. Rows failing schema validation or
// without a valid ordering value are rejected with an error wrapping
// changelog.ErrSchemaMismatch or ordering.ErrMalformedOrdering; the operator
// stays usable. Any other error is fatal.
func (o *Operator) ProcessElement(ctx context.Context, row changelog.Row) error {
	o.Lock()
	defer o.Unlock()
	if o.closed {
		return ErrOperatorClosed
	}
	metrics.RowsRead.WithLabelValues(o.name, o.partition).Inc()

	if err := o.schema.Validate(row); err != nil {
		metrics.RowsRejected.WithLabelValues(o.name, o.partition, reasonSchemaMismatch).Inc()
		return fmt.Errorf("rejected row %s, %w", row, err)
	}
	key, err := o.keys.Key(row)
	if err != nil {
		metrics.RowsRejected.WithLabelValues(o.name, o.partition, reasonSchemaMismatch).Inc()
		return fmt.Errorf("rejected row %s, %w", row, err)
	}
	v, err := o.extractor.Extract(row)
	if err != nil {
		metrics.RowsRejected.WithLabelValues(o.name, o.partition, reasonMalformedOrdering).Inc()
		return fmt.Errorf("rejected row %s, %w", row, err)
	}
	if o.extractor.IsLate(v) {
		metrics.LateRows.WithLabelValues(o.name, o.partition).Inc()
		o.log.Debugw("Late row", zap.String("key", string(key)), zap.Int64("ordering", int64(v)), zap.String("watermark", o.extractor.Watermark().Current().String()))
	}

	switch {
	case o.bundle != nil:
		o.bundle.Add(key, row, v)
		if o.trigger.OnElement() {
			return o.flushLocked(ctx)
		}
		return nil
	case o.executor != nil:
		entries := []minibatch.Entry{{Row: row, Ordering: v}}
		return o.executor.Submit(ctx, key, func(ctx context.Context) error {
			res, err := o.compactor.Apply(ctx, key, entries)
			o.record(res, err)
			return err
		})
	default:
		res, err := o.compactor.Apply(ctx, key, []minibatch.Entry{{Row: row, Ordering: v}})
		o.record(res, err)
		return err
	}
}

// ProcessWatermark advances the event time watermark. It is ignored in processing time.
func (o *Operator) ProcessWatermark(_ context.Context, w wmb.Watermark) error {
	o.Lock()
	defer o.Unlock()
	if o.closed {
		return ErrOperatorClosed
	}
	if tracker := o.extractor.Watermark(); tracker != nil {
		tracker.Advance(w)
	}
	return nil
}

// OnTick flushes the open bundle once its interval has elapsed.
func (o *Operator) OnTick(ctx context.Context) error {
	o.Lock()
	defer o.Unlock()
	if o.closed {
		return ErrOperatorClosed
	}
	if o.trigger != nil && o.trigger.OnTick() {
		return o.flushLocked(ctx)
	}
	return nil
}

// Flush applies the open bundle and waits for in-flight async work.
func (o *Operator) Flush(ctx context.Context) error {
	o.Lock()
	defer o.Unlock()
	if o.closed {
		return ErrOperatorClosed
	}
	return o.flushLocked(ctx)
}

func (o *Operator) flushLocked(ctx context.Context) error {
	if o.executor != nil {
		return o.executor.Drain(ctx)
	}
	if o.bundle == nil || o.bundle.Len() == 0 {
		return nil
	}
	start := time.Now()
	res, err := o.compactor.Flush(ctx, o.bundle)
	o.record(res, err)
	if err != nil {
		// the bundle is kept, the store has not seen any of it
		return err
	}
	mode := "compact"
	if !o.opts.compactChanges {
		mode = "verbose"
	}
	metrics.BundleFlushes.WithLabelValues(o.name, o.partition, mode).Inc()
	metrics.BundleSize.WithLabelValues(o.name, o.partition).Observe(float64(res.Rows))
	metrics.FlushProcessingTime.WithLabelValues(o.name, o.partition).Observe(float64(time.Since(start).Microseconds()))
	o.bundle.Reset()
	o.trigger.Reset()
	return nil
}

func (o *Operator) record(res minibatch.Result, err error) {
	if err != nil {
		metrics.EmitErrors.WithLabelValues(o.name, o.partition).Inc()
		return
	}
	if res.Discarded > 0 {
		metrics.RowsDiscarded.WithLabelValues(o.name, o.partition).Add(float64(res.Discarded))
	}
	for _, e := range res.Events {
		metrics.EventsEmitted.WithLabelValues(o.name, o.partition, e.Row.Kind.String()).Inc()
	}
}

// Checkpoint applies everything received so far and returns one record per key.
func (o *Operator) Checkpoint(ctx context.Context) ([]state.Record, error) {
	o.Lock()
	defer o.Unlock()
	if o.closed {
		return nil, ErrOperatorClosed
	}
	if err := o.flushLocked(ctx); err != nil {
		return nil, fmt.Errorf("failed to flush before checkpoint, %w", err)
	}
	records, err := o.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot state, %w", err)
	}
	metrics.StateKeys.WithLabelValues(o.name, o.partition).Set(float64(len(records)))
	return records, nil
}

// Restore replaces the whole state with records. Rows buffered in the open
// bundle belong to the replaced state and are dropped. Winners already emitted
// are taken as what downstream sees, and processing-time ordering continues
// above every restored value.
func (o *Operator) Restore(ctx context.Context, records []state.Record) error {
	o.Lock()
	defer o.Unlock()
	if o.closed {
		return ErrOperatorClosed
	}
	if o.executor != nil {
		if err := o.executor.Drain(ctx); err != nil {
			return err
		}
	}
	if o.bundle != nil && o.bundle.Len() > 0 {
		o.log.Warnw("Dropping open bundle on restore", zap.Int("rows", o.bundle.Len()))
		o.bundle.Reset()
		o.trigger.Reset()
	}
	if err := o.store.Restore(ctx, records); err != nil {
		return fmt.Errorf("failed to restore state, %w", err)
	}
	if o.validator != nil {
		o.validator.Reset()
	}
	for _, rec := range records {
		o.extractor.RaiseFloor(rec.State.Ordering)
		if o.validator != nil && rec.State.HasEmitted {
			o.validator.Seed(rec.Key, rec.State.Winner)
		}
	}
	metrics.StateKeys.WithLabelValues(o.name, o.partition).Set(float64(len(records)))
	return nil
}

// Close tears the operator down. With flush set the open bundle and in-flight
// work are applied first; otherwise they are discarded and nothing of them is
// emitted. The store is closed in both cases.
func (o *Operator) Close(ctx context.Context, flush bool) error {
	o.Lock()
	defer o.Unlock()
	if o.closed {
		return nil
	}
	var err error
	if flush {
		err = multierr.Append(err, o.flushLocked(ctx))
	} else if o.bundle != nil && o.bundle.Len() > 0 {
		o.log.Infow("Discarding open bundle", zap.Int("rows", o.bundle.Len()))
		o.bundle.Reset()
	}
	if o.executor != nil {
		closeCtx := ctx
		if !flush {
			var cancel context.CancelFunc
			closeCtx, cancel = context.WithCancel(ctx)
			cancel()
		}
		if cerr := o.executor.Close(closeCtx); cerr != nil && flush {
			err = multierr.Append(err, cerr)
		}
	}
	err = multierr.Append(err, o.store.Close())
	o.closed = true
	o.log.Infow("Closed dedup operator", zap.Bool("flushed", flush), zap.Error(err))
	return err
}

// Run consumes in until it is closed or ctx is done, checking the bundle timer
// every tick. Rejected rows are logged and skipped, barriers are answered with
// a checkpoint. When in is closed, the open
// bundle is flushed before Run returns; when ctx is done it is left to Close.
func (o *Operator) Run(ctx context.Context, in <-chan Element) error {
	ticker := o.opts.clock.NewTicker(o.opts.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			o.log.Info("Context done, stopping dedup operator loop")
			return ctx.Err()
		case <-ticker.C():
			if err := o.OnTick(ctx); err != nil {
				return err
			}
		case e, ok := <-in:
			if !ok {
				return o.Flush(ctx)
			}
			if e.IsBarrier() {
				records, err := o.Checkpoint(ctx)
				e.Barrier.Complete(records, err)
				if err != nil {
					return err
				}
				continue
			}
			if e.IsWatermark() {
				if err := o.ProcessWatermark(ctx, *e.Watermark); err != nil {
					return err
				}
				continue
			}
			if err := o.ProcessElement(ctx, e.Row); err != nil {
				if IsRejected(err) {
					o.log.Warnw("Skipping rejected row", zap.Error(err))
					continue
				}
				return err
			}
		}
	}
}

// IsRejected reports whether err rejects a single row rather than failing the operator.
func IsRejected(err error) bool {
	return errors.Is(err, ordering.ErrMalformedOrdering) || errors.Is(err, changelog.ErrSchemaMismatch)
}
