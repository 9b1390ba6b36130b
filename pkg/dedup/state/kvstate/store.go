// Package kvstate keeps dedup state in a kvs.KVStorer bucket with an LRU read
// cache in front of it. It is the store used with async state access, where
// round-trips to the backend are worth overlapping.
package kvstate

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/state"
	"github.com/numaproj/numadedup/pkg/shared/kvs"
	"github.com/numaproj/numadedup/pkg/shared/logging"
)

const defaultCacheSize = 10000

type kvStore struct {
	kv     kvs.KVStorer
	codec  *state.Codec
	cache  *lru.Cache[changelog.Key, state.DedupState]
	closed *atomic.Bool
	log    *zap.SugaredLogger
}

var _ state.Store = (*kvStore)(nil)

// NewKVStore returns a state.Store on kv. cacheSize <= 0 uses the default size.
func NewKVStore(ctx context.Context, kv kvs.KVStorer, codec *state.Codec, cacheSize int) (state.Store, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[changelog.Key, state.DedupState](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create state cache, %w", err)
	}
	return &kvStore{
		kv:     kv,
		codec:  codec,
		cache:  cache,
		closed: atomic.NewBool(false),
		log:    logging.FromContext(ctx).With("store", kv.GetStoreName()),
	}, nil
}

func encodeKey(key changelog.Key) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeKey(s string) (changelog.Key, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: invalid key %q", state.ErrCorruptedState, s)
	}
	return changelog.Key(b), nil
}

func (s *kvStore) Get(ctx context.Context, key changelog.Key) (state.DedupState, bool, error) {
	if s.closed.Load() {
		return state.DedupState{}, false, state.ErrStoreClosed
	}
	if cached, ok := s.cache.Get(key); ok {
		return cached.Clone(), true, nil
	}
	data, err := s.kv.GetValue(ctx, encodeKey(key))
	if errors.Is(err, kvs.ErrKeyNotFound) {
		return state.DedupState{}, false, nil
	}
	if err != nil {
		return state.DedupState{}, false, fmt.Errorf("failed to read state of key %s, %w", key, err)
	}
	ds, err := s.codec.Decode(data)
	if err != nil {
		return state.DedupState{}, false, err
	}
	s.cache.Add(key, ds.Clone())
	return ds, true, nil
}

func (s *kvStore) Put(ctx context.Context, key changelog.Key, ds state.DedupState) error {
	if s.closed.Load() {
		return state.ErrStoreClosed
	}
	data, err := s.codec.Encode(ds)
	if err != nil {
		return err
	}
	if err = s.kv.PutKV(ctx, encodeKey(key), data); err != nil {
		// the backend may or may not hold the new value, drop the cached one
		s.cache.Remove(key)
		return fmt.Errorf("failed to write state of key %s, %w", key, err)
	}
	s.cache.Add(key, ds.Clone())
	return nil
}

func (s *kvStore) Delete(ctx context.Context, key changelog.Key) error {
	if s.closed.Load() {
		return state.ErrStoreClosed
	}
	s.cache.Remove(key)
	if err := s.kv.DeleteKey(ctx, encodeKey(key)); err != nil && !errors.Is(err, kvs.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete state of key %s, %w", key, err)
	}
	return nil
}

func (s *kvStore) Snapshot(ctx context.Context) ([]state.Record, error) {
	if s.closed.Load() {
		return nil, state.ErrStoreClosed
	}
	keys, err := s.kv.GetAllKeys(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]state.Record, 0, len(keys))
	for _, k := range keys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, err
		}
		data, err := s.kv.GetValue(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("failed to read state of key %s, %w", key, err)
		}
		ds, err := s.codec.Decode(data)
		if err != nil {
			return nil, err
		}
		records = append(records, state.Record{Key: key, State: ds})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})
	return records, nil
}

func (s *kvStore) Restore(ctx context.Context, records []state.Record) error {
	if s.closed.Load() {
		return state.ErrStoreClosed
	}
	s.cache.Purge()
	keys, err := s.kv.GetAllKeys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err = s.kv.DeleteKey(ctx, k); err != nil && !errors.Is(err, kvs.ErrKeyNotFound) {
			return err
		}
	}
	for _, r := range records {
		data, err := s.codec.Encode(r.State)
		if err != nil {
			return err
		}
		if err = s.kv.PutKV(ctx, encodeKey(r.Key), data); err != nil {
			return err
		}
	}
	s.log.Infow("Restored state store", zap.Int("keys", len(records)), zap.Int("evicted", len(keys)))
	return nil
}

// Len returns the number of keys in the backend, 0 if they can not be listed.
func (s *kvStore) Len() int {
	keys, err := s.kv.GetAllKeys(context.Background())
	if err != nil {
		s.log.Warnw("Failed to list state keys", zap.Error(err))
		return 0
	}
	return len(keys)
}

func (s *kvStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cache.Purge()
	s.kv.Close()
	return nil
}
