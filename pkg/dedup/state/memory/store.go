package memory

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/state"
	"github.com/numaproj/numadedup/pkg/shared/logging"
)

// memoryStore implements state.Store with a flat map from key to DedupState.
// Rows are copied on the way in and out, so entries never alias each other or the caller.
type memoryStore struct {
	name    string
	closed  bool
	storage map[changelog.Key]state.DedupState
	log     *zap.SugaredLogger
	sync.RWMutex
}

var _ state.Store = (*memoryStore)(nil)

// NewMemoryStore returns an in-memory state.Store.
func NewMemoryStore(ctx context.Context, name string, opts ...Option) state.Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &memoryStore{
		name:    name,
		storage: make(map[changelog.Key]state.DedupState, o.initialCapacity),
		log:     logging.FromContext(ctx).With("store", name),
	}
}

func (m *memoryStore) Get(_ context.Context, key changelog.Key) (state.DedupState, bool, error) {
	m.RLock()
	defer m.RUnlock()
	if m.closed {
		return state.DedupState{}, false, state.ErrStoreClosed
	}
	s, ok := m.storage[key]
	if !ok {
		return state.DedupState{}, false, nil
	}
	return s.Clone(), true, nil
}

func (m *memoryStore) Put(_ context.Context, key changelog.Key, s state.DedupState) error {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		m.log.Errorw(state.ErrStoreClosed.Error(), zap.String("key", string(key)))
		return state.ErrStoreClosed
	}
	m.storage[key] = s.Clone()
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key changelog.Key) error {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return state.ErrStoreClosed
	}
	delete(m.storage, key)
	return nil
}

// Snapshot returns the records sorted by key, so that two snapshots of the same content are identical.
func (m *memoryStore) Snapshot(_ context.Context) ([]state.Record, error) {
	m.RLock()
	defer m.RUnlock()
	if m.closed {
		return nil, state.ErrStoreClosed
	}
	records := make([]state.Record, 0, len(m.storage))
	for k, s := range m.storage {
		records = append(records, state.Record{Key: k, State: s.Clone()})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})
	return records, nil
}

func (m *memoryStore) Restore(_ context.Context, records []state.Record) error {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return state.ErrStoreClosed
	}
	storage := make(map[changelog.Key]state.DedupState, len(records))
	for _, r := range records {
		storage[r.Key] = r.State.Clone()
	}
	m.storage = storage
	m.log.Infow("Restored state store", zap.Int("keys", len(storage)))
	return nil
}

func (m *memoryStore) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.storage)
}

// Close closes the store, no more reads or writes are accepted.
func (m *memoryStore) Close() error {
	m.Lock()
	defer m.Unlock()
	m.closed = true
	return nil
}
