// Package async runs per-key work concurrently across keys while keeping the
// work of any single key in submission order.
package async

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/partition"
	"github.com/numaproj/numadedup/pkg/shared/logging"
)

// ErrExecutorClosed is returned by Submit after Close.
var ErrExecutorClosed = errors.New("async executor is closed")

// Task is the work submitted for one key.
type Task func(ctx context.Context) error

type keyedTask struct {
	key  changelog.Key
	task Task
}

// Executor hashes every key onto one of its lanes. A lane runs its tasks one at
// a time, so tasks of one key complete in the order they were submitted while
// tasks of keys on other lanes run concurrently. After the first failed task
// the remaining tasks are skipped and the error is reported by Submit and Drain.
type Executor struct {
	lanes    []chan keyedTask
	ctx      context.Context
	cancel   context.CancelFunc
	pending  sync.WaitGroup
	workers  sync.WaitGroup
	inFlight *atomic.Int64
	closed   *atomic.Bool
	errMu    sync.Mutex
	err      error
	log      *zap.SugaredLogger
}

// NewExecutor starts lanes workers, each buffering up to queueSize tasks.
// Submit blocks while the lane of a key is full.
func NewExecutor(ctx context.Context, lanes, queueSize int) *Executor {
	if lanes < 1 {
		lanes = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	cctx, cancel := context.WithCancel(ctx)
	e := &Executor{
		lanes:    make([]chan keyedTask, lanes),
		ctx:      cctx,
		cancel:   cancel,
		inFlight: atomic.NewInt64(0),
		closed:   atomic.NewBool(false),
		log:      logging.FromContext(ctx),
	}
	for i := range e.lanes {
		e.lanes[i] = make(chan keyedTask, queueSize)
		e.workers.Add(1)
		go e.run(e.lanes[i])
	}
	return e
}

func (e *Executor) run(lane chan keyedTask) {
	defer e.workers.Done()
	for kt := range lane {
		if e.Err() == nil && e.ctx.Err() == nil {
			if err := kt.task(e.ctx); err != nil {
				e.fail(err)
				e.log.Errorw("Async task failed", zap.String("key", string(kt.key)), zap.Error(err))
			}
		}
		e.inFlight.Dec()
		e.pending.Done()
	}
}

func (e *Executor) fail(err error) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

// Err returns the first task error.
func (e *Executor) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

// Submit queues task for key. Submit, Drain and Close must be called from one
// goroutine.
func (e *Executor) Submit(ctx context.Context, key changelog.Key, task Task) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	if err := e.Err(); err != nil {
		return err
	}
	lane := e.lanes[partition.For(key, len(e.lanes))]
	e.pending.Add(1)
	e.inFlight.Inc()
	select {
	case lane <- keyedTask{key: key, task: task}:
		return nil
	case <-ctx.Done():
		e.inFlight.Dec()
		e.pending.Done()
		return ctx.Err()
	}
}

// Drain waits until every submitted task has completed and returns the first
// task error, if any.
func (e *Executor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return e.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight returns the number of submitted tasks that have not completed.
func (e *Executor) InFlight() int64 {
	return e.inFlight.Load()
}

// Close waits for queued tasks to finish and stops the workers. Tasks still
// queued after ctx is done are skipped.
func (e *Executor) Close(ctx context.Context) error {
	if e.closed.Swap(true) {
		return nil
	}
	drainErr := e.Drain(ctx)
	if drainErr != nil {
		e.cancel()
	}
	for _, lane := range e.lanes {
		close(lane)
	}
	e.workers.Wait()
	e.cancel()
	return drainErr
}
