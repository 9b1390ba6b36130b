// Package emitter turns winner transitions into changelog events and hands them
// to the downstream collector.
package emitter

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/state"
	"github.com/numaproj/numadedup/pkg/shared/logging"
)

// Collector receives emitted events. A failed Collect is retried with the same
// events, so a collector must not keep a partially accepted batch.
type Collector interface {
	Collect(ctx context.Context, events []changelog.Event) error
}

// CollectorFunc adapts a function to a Collector.
type CollectorFunc func(ctx context.Context, events []changelog.Event) error

func (f CollectorFunc) Collect(ctx context.Context, events []changelog.Event) error {
	return f(ctx, events)
}

// Emitter produces the minimal event sequence for a transition of the visible
// winner of a key.
type Emitter struct {
	collector Collector
	opts      *options
	log       *zap.SugaredLogger
}

// NewEmitter returns an Emitter writing to collector.
func NewEmitter(ctx context.Context, collector Collector, opts ...Option) *Emitter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Emitter{
		collector: collector,
		opts:      o,
		log:       logging.FromContext(ctx),
	}
}

// Visible returns the row downstream currently sees for a key, or the zero Row
// if nothing has been emitted for it.
func Visible(s state.DedupState, exists bool) changelog.Row {
	if !exists || !s.HasEmitted {
		return changelog.Row{}
	}
	return s.Winner
}

// Transition returns the events that move downstream from before to after. A
// zero Row means "no row". Identical fields produce no events.
func (e *Emitter) Transition(key changelog.Key, before, after changelog.Row) []changelog.Event {
	switch {
	case before.IsZero() && after.IsZero():
		return nil
	case before.IsZero():
		return []changelog.Event{changelog.NewEvent(key, after, changelog.Insert)}
	case after.IsZero():
		return []changelog.Event{changelog.NewEvent(key, before, changelog.Delete)}
	case before.FieldsEqual(after):
		return nil
	case e.opts.generateUpdateBefore:
		return []changelog.Event{
			changelog.NewEvent(key, before, changelog.UpdateBefore),
			changelog.NewEvent(key, after, changelog.UpdateAfter),
		}
	default:
		return []changelog.Event{changelog.NewEvent(key, after, changelog.UpdateAfter)}
	}
}

// Emit hands events to the collector, retrying until it succeeds or ctx is done.
// The caller is blocked for the whole time, which holds back further input.
func (e *Emitter) Emit(ctx context.Context, events []changelog.Event) error {
	if len(events) == 0 {
		return nil
	}
	if e.opts.validator != nil {
		if err := e.opts.validator.Check(events...); err != nil {
			return err
		}
	}
	attempt := 0
	err := wait.ExponentialBackoff(e.opts.retryBackoff, func() (done bool, err error) {
		attempt++
		cerr := e.collector.Collect(ctx, events)
		if cerr == nil {
			return true, nil
		}
		e.log.Errorw("Failed to collect changelog events, retrying", zap.Int("events", len(events)), zap.Int("attempt", attempt), zap.Error(cerr))
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
			return false, nil
		}
	})
	if err != nil {
		return fmt.Errorf("failed to emit %d events after %d attempts, %w", len(events), attempt, err)
	}
	if e.opts.validator != nil {
		// checked above, the key views only change here
		return e.opts.validator.Observe(events...)
	}
	return nil
}

// GenerateUpdateBefore reports whether updates carry an UPDATE_BEFORE.
func (e *Emitter) GenerateUpdateBefore() bool {
	return e.opts.generateUpdateBefore
}
