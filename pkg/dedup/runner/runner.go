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

// Package runner runs one dedup operator per partition. Rows are routed to a
// partition by the murmur3 hash of their key, so that every key is owned by
// exactly one operator. Watermarks are broadcast to every partition.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup"
	"github.com/numaproj/numadedup/pkg/dedup/state"
	"github.com/numaproj/numadedup/pkg/partition"
	"github.com/numaproj/numadedup/pkg/shared/logging"
)

// ErrNotRunning is returned by Checkpoint when Run has stopped before the
// barrier was answered.
var ErrNotRunning = errors.New("runner is not running")

// OperatorFactory creates the operator owning a partition.
type OperatorFactory func(ctx context.Context, partition int) (*dedup.Operator, error)

// Runner fans rows out to partitioned operators.
type Runner struct {
	keys      *changelog.KeySelector
	operators []*dedup.Operator
	opts      *options
	inputs    []chan dedup.Element
	routed    []*atomic.Int64
	// done is closed when Run returns
	done chan struct{}
	log  *zap.SugaredLogger
}

// NewRunner creates n operators with newOperator. keys selects the key columns
// used for routing, and must match the keys of the operators.
func NewRunner(ctx context.Context, keys *changelog.KeySelector, n int, newOperator OperatorFactory, opts ...Option) (*Runner, error) {
	if n < 1 {
		return nil, fmt.Errorf("partition count must be positive, got %d", n)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	r := &Runner{
		keys: keys,
		opts: o,
		done: make(chan struct{}),
		log:  logging.FromContext(ctx).With("partitions", n),
	}
	for i := 0; i < n; i++ {
		op, err := newOperator(ctx, i)
		if err != nil {
			_ = r.Close(ctx, false)
			return nil, fmt.Errorf("failed to create operator of partition %d, %w", i, err)
		}
		r.operators = append(r.operators, op)
		r.routed = append(r.routed, atomic.NewInt64(0))
	}
	return r, nil
}

// Partitions returns the number of partitions.
func (r *Runner) Partitions() int {
	return len(r.operators)
}

// Run routes in to the partitions until in is closed or ctx is done. A fatal
// error in any partition stops all of them. Barriers read from in are answered
// with a checkpoint of every partition.
func (r *Runner) Run(ctx context.Context, in <-chan dedup.Element) error {
	defer close(r.done)
	g, gctx := errgroup.WithContext(ctx)
	r.inputs = make([]chan dedup.Element, len(r.operators))
	for i := range r.operators {
		r.inputs[i] = make(chan dedup.Element, r.opts.bufferSize)
		op, ch := r.operators[i], r.inputs[i]
		g.Go(func() error {
			return op.Run(gctx, ch)
		})
	}

	g.Go(func() error {
		defer func() {
			for _, ch := range r.inputs {
				close(ch)
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case e, ok := <-in:
				if !ok {
					r.log.Info("Input closed, draining partitions")
					return nil
				}
				if err := r.route(gctx, e); err != nil {
					return err
				}
			}
		}
	})
	err := g.Wait()
	r.logSkew()
	return err
}

func (r *Runner) route(ctx context.Context, e dedup.Element) error {
	if e.IsBarrier() {
		records, err := r.checkpointPartitions(ctx)
		e.Barrier.Complete(records, err)
		return err
	}
	if e.IsWatermark() {
		for _, ch := range r.inputs {
			if err := send(ctx, ch, e); err != nil {
				return err
			}
		}
		return nil
	}
	p := 0
	// a row without its key columns is rejected by the operator of partition 0
	if key, err := r.keys.Key(e.Row); err == nil {
		p = partition.For(key, len(r.inputs))
	}
	r.routed[p].Inc()
	return send(ctx, r.inputs[p], e)
}

func send(ctx context.Context, ch chan<- dedup.Element, e dedup.Element) error {
	select {
	case ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// checkpointPartitions puts a barrier behind every row routed so far and
// collects the answers. Nothing is routed until all partitions answered.
func (r *Runner) checkpointPartitions(ctx context.Context) ([]state.Record, error) {
	barriers := make([]*dedup.Barrier, 0, len(r.inputs))
	for _, ch := range r.inputs {
		b := dedup.NewBarrier()
		if err := send(ctx, ch, dedup.BarrierElement(b)); err != nil {
			return nil, err
		}
		barriers = append(barriers, b)
	}
	var all []state.Record
	for i, b := range barriers {
		records, err := b.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to checkpoint partition %d, %w", i, err)
		}
		all = append(all, records...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })
	r.logSkew()
	return all, nil
}

// Checkpoint sends a barrier on in, the channel given to Run, and waits for
// the checkpoint it cuts. The checkpoint covers every element sent on in
// before it. Records are sorted by key.
func (r *Runner) Checkpoint(ctx context.Context, in chan<- dedup.Element) ([]state.Record, error) {
	b := dedup.NewBarrier()
	select {
	case in <- dedup.BarrierElement(b):
	case <-r.done:
		return nil, ErrNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.Await(ctx, b)
}

// Await waits for a barrier already sent on the input of Run.
func (r *Runner) Await(ctx context.Context, b *dedup.Barrier) ([]state.Record, error) {
	select {
	case <-b.Done():
		return b.Result()
	case <-r.done:
		select {
		case <-b.Done():
			return b.Result()
		default:
			return nil, ErrNotRunning
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Restore distributes records to the partitions owning their keys. It must be
// called before Run. The partition count may differ from the one the records
// were taken with.
func (r *Runner) Restore(ctx context.Context, records []state.Record) error {
	perPartition := make([][]state.Record, len(r.operators))
	for _, rec := range records {
		p := partition.For(rec.Key, len(r.operators))
		perPartition[p] = append(perPartition[p], rec)
	}
	for i, op := range r.operators {
		if err := op.Restore(ctx, perPartition[i]); err != nil {
			return fmt.Errorf("failed to restore partition %d, %w", i, err)
		}
	}
	r.log.Infow("Restored partitions", zap.Int("records", len(records)))
	return nil
}

// Close closes every operator, flushing them first if flush is set.
func (r *Runner) Close(ctx context.Context, flush bool) error {
	var err error
	for _, op := range r.operators {
		err = multierr.Append(err, op.Close(ctx, flush))
	}
	return err
}

// logSkew reports how evenly rows spread over the partitions.
func (r *Runner) logSkew() {
	if len(r.routed) < 2 {
		return
	}
	counts := make(stats.Float64Data, len(r.routed))
	for i, c := range r.routed {
		counts[i] = float64(c.Load())
	}
	mean, _ := stats.Mean(counts)
	if mean == 0 {
		return
	}
	stddev, _ := stats.StandardDeviation(counts)
	peak, _ := stats.Max(counts)
	r.log.Infow("Partition load", zap.Float64("meanRows", mean), zap.Float64("stddev", stddev), zap.Float64("maxOverMean", peak/mean))
}
