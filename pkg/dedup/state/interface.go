// Package state defines the per-key dedup state and the store that keeps it.
package state

import (
	"context"
	"errors"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/ordering"
)

var (
	// ErrCorruptedState is returned when a persisted state record can not be decoded.
	ErrCorruptedState = errors.New("corrupted dedup state")
	// ErrStoreClosed is returned for any access after Close.
	ErrStoreClosed = errors.New("state store is closed")
)

// DedupState is the state kept for one key: the current winner, the ordering
// value it won with, and whether the winner has been emitted downstream.
type DedupState struct {
	Winner     changelog.Row
	Ordering   ordering.Value
	HasEmitted bool
}

// Clone returns a copy that does not alias the winner row.
func (s DedupState) Clone() DedupState {
	return DedupState{
		Winner:     s.Winner.Clone(),
		Ordering:   s.Ordering,
		HasEmitted: s.HasEmitted,
	}
}

// Record is one checkpoint record.
type Record struct {
	Key   changelog.Key
	State DedupState
}

// Store keeps DedupState per key. A store is owned by one partition; stores that
// are used with async state access must additionally tolerate concurrent calls
// for different keys.
type Store interface {
	// Get returns the state of key, and false if the key has never been seen.
	Get(ctx context.Context, key changelog.Key) (DedupState, bool, error)
	// Put replaces the state of key.
	Put(ctx context.Context, key changelog.Key, s DedupState) error
	// Delete evicts the state of key.
	Delete(ctx context.Context, key changelog.Key) error
	// Snapshot returns a point-in-time copy of every record.
	Snapshot(ctx context.Context) ([]Record, error)
	// Restore replaces the whole content of the store with records.
	Restore(ctx context.Context, records []Record) error
	// Len returns the number of keys held.
	Len() int
	// Close releases resources held by the store.
	Close() error
}
