package dedup

import (
	"context"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/state"
	"github.com/numaproj/numadedup/pkg/watermark/wmb"
)

// Element is one item of the operator input: a row, a watermark advance for
// event time, or a checkpoint barrier.
type Element struct {
	Row       changelog.Row
	Watermark *wmb.Watermark
	Barrier   *Barrier
}

// RowElement wraps a row.
func RowElement(row changelog.Row) Element {
	return Element{Row: row}
}

// WatermarkElement wraps a watermark advance.
func WatermarkElement(w wmb.Watermark) Element {
	return Element{Watermark: &w}
}

// BarrierElement wraps a checkpoint barrier.
func BarrierElement(b *Barrier) Element {
	return Element{Barrier: b}
}

// IsWatermark reports whether e carries a watermark.
func (e Element) IsWatermark() bool {
	return e.Watermark != nil
}

// IsBarrier reports whether e carries a checkpoint barrier.
func (e Element) IsBarrier() bool {
	return e.Barrier != nil
}

// Barrier requests a checkpoint from the Run loop. The checkpoint covers
// exactly the elements received before the barrier.
type Barrier struct {
	done    chan struct{}
	records []state.Record
	err     error
}

// NewBarrier returns a barrier that can be completed once.
func NewBarrier() *Barrier {
	return &Barrier{done: make(chan struct{})}
}

// Complete hands the checkpoint result to the waiters.
func (b *Barrier) Complete(records []state.Record, err error) {
	b.records, b.err = records, err
	close(b.done)
}

// Done is closed once the barrier is completed.
func (b *Barrier) Done() <-chan struct{} {
	return b.done
}

// Result returns the checkpoint, it is only valid after Done is closed.
func (b *Barrier) Result() ([]state.Record, error) {
	return b.records, b.err
}

// Wait blocks until the checkpoint is taken or ctx is done.
func (b *Barrier) Wait(ctx context.Context) ([]state.Record, error) {
	select {
	case <-b.done:
		return b.records, b.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
