// Package minibatch buffers rows into bundles and folds each key of a bundle
// through the decision engine in one pass.
package minibatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/decision"
	"github.com/numaproj/numadedup/pkg/dedup/emitter"
	"github.com/numaproj/numadedup/pkg/dedup/state"
	"github.com/numaproj/numadedup/pkg/shared/logging"
)

// Mode selects what a flush emits per key.
type Mode int8

const (
	// Compact emits only the net change between the state before and after the bundle.
	Compact Mode = iota
	// Verbose emits every intermediate change in arrival order.
	Verbose
)

// Result summarizes one flush.
type Result struct {
	Keys      int
	Rows      int
	Discarded int
	Events    []changelog.Event
}

// Compactor applies bundles to a state store.
type Compactor struct {
	engine      *decision.Engine
	emitter     *emitter.Emitter
	store       state.Store
	mode        Mode
	parallelism int
	log         *zap.SugaredLogger
}

// NewCompactor returns a Compactor. With parallelism > 1 the state of different
// keys is read and written concurrently, with at most parallelism requests in flight.
func NewCompactor(ctx context.Context, engine *decision.Engine, em *emitter.Emitter, store state.Store, mode Mode, parallelism int) *Compactor {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Compactor{
		engine:      engine,
		emitter:     em,
		store:       store,
		mode:        mode,
		parallelism: parallelism,
		log:         logging.FromContext(ctx),
	}
}

type keyResult struct {
	next    state.DedupState
	exists  bool
	changed bool
}

type loaded struct {
	cur    state.DedupState
	exists bool
}

// Flush applies every row of b. All events of the bundle are emitted in one
// batch before any state is written, so a flush that fails leaves the store as
// it was before the bundle. The bundle is not reset.
func (c *Compactor) Flush(ctx context.Context, b *Bundle) (Result, error) {
	keys := b.Keys()
	res := Result{Keys: len(keys), Rows: b.Len()}
	if len(keys) == 0 {
		return res, nil
	}

	states := make([]loaded, len(keys))
	err := c.forEach(ctx, len(keys), func(ctx context.Context, i int) error {
		cur, ok, err := c.store.Get(ctx, keys[i])
		if err != nil {
			return fmt.Errorf("failed to get state of key %s, %w", keys[i], err)
		}
		states[i] = loaded{cur: cur, exists: ok}
		return nil
	})
	if err != nil {
		return res, err
	}

	results := make([]keyResult, len(keys))
	for i, key := range keys {
		kr, events, discarded := c.fold(key, states[i].cur, states[i].exists, b.Rows(key))
		results[i] = kr
		res.Events = append(res.Events, events...)
		res.Discarded += discarded
	}

	if err = c.emitter.Emit(ctx, res.Events); err != nil {
		return res, err
	}

	err = c.forEach(ctx, len(keys), func(ctx context.Context, i int) error {
		return c.write(ctx, keys[i], results[i])
	})
	if err != nil {
		return res, err
	}
	c.log.Debugw("Flushed bundle", zap.Int("keys", res.Keys), zap.Int("rows", res.Rows), zap.Int("events", len(res.Events)))
	return res, nil
}

// Apply processes the rows of a single key right away: read, decide, emit, write.
// It is the unbuffered path and yields the same state and events as a one-key
// bundle.
func (c *Compactor) Apply(ctx context.Context, key changelog.Key, entries []Entry) (Result, error) {
	res := Result{Keys: 1, Rows: len(entries)}
	cur, exists, err := c.store.Get(ctx, key)
	if err != nil {
		return res, fmt.Errorf("failed to get state of key %s, %w", key, err)
	}
	kr, events, discarded := c.fold(key, cur, exists, entries)
	res.Events, res.Discarded = events, discarded
	if err = c.emitter.Emit(ctx, events); err != nil {
		return res, err
	}
	return res, c.write(ctx, key, kr)
}

// fold runs entries through the engine in arrival order starting from cur.
func (c *Compactor) fold(key changelog.Key, cur state.DedupState, exists bool, entries []Entry) (keyResult, []changelog.Event, int) {
	var events []changelog.Event
	discarded := 0
	changed := false
	before := emitter.Visible(cur, exists)
	for _, e := range entries {
		d := c.engine.Decide(cur, exists, e.Row, e.Ordering)
		if !d.Changed() {
			discarded++
			continue
		}
		changed = true
		cur, exists = d.Next, d.Exists
		if c.mode == Verbose {
			after := winnerOf(cur, exists)
			events = append(events, c.emitter.Transition(key, before, after)...)
			before = after
		}
	}
	if c.mode == Compact {
		events = c.emitter.Transition(key, before, winnerOf(cur, exists))
	}
	if exists && !cur.HasEmitted {
		// downstream now reflects the winner, either through the events above or
		// because it already saw an identical row
		cur.HasEmitted = true
		changed = true
	}
	return keyResult{next: cur, exists: exists, changed: changed}, events, discarded
}

func winnerOf(s state.DedupState, exists bool) changelog.Row {
	if !exists {
		return changelog.Row{}
	}
	return s.Winner
}

func (c *Compactor) write(ctx context.Context, key changelog.Key, kr keyResult) error {
	if !kr.changed {
		return nil
	}
	if !kr.exists {
		if err := c.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete state of key %s, %w", key, err)
		}
		return nil
	}
	if err := c.store.Put(ctx, key, kr.next); err != nil {
		return fmt.Errorf("failed to put state of key %s, %w", key, err)
	}
	return nil
}

// forEach calls fn for 0..n-1, concurrently when parallelism allows it.
func (c *Compactor) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if c.parallelism == 1 {
		for i := 0; i < n; i++ {
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return fn(gCtx, i)
		})
	}
	return g.Wait()
}
