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

/*
Package inmem implements the KV store in memory. It is used by tests and by
single process deployments that do not need durable checkpoints.
*/
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/shared/kvs"
	"github.com/numaproj/numadedup/pkg/shared/logging"
)

// inMemStore implements the KV store backed up by a map.
type inMemStore struct {
	bucketName string
	kv         map[string][]byte
	lock       sync.RWMutex
	isClosed   bool
	log        *zap.SugaredLogger
}

var _ kvs.KVStorer = (*inMemStore)(nil)

// NewKVInMemKVStore returns inMemStore.
func NewKVInMemKVStore(ctx context.Context, bucketName string) (kvs.KVStorer, error) {
	s := &inMemStore{
		bucketName: bucketName,
		kv:         make(map[string][]byte),
		log:        logging.FromContext(ctx).With("bucketName", bucketName),
	}
	return s, nil
}

// GetAllKeys returns all the keys in the key-value store, sorted.
func (kv *inMemStore) GetAllKeys(_ context.Context) ([]string, error) {
	kv.lock.RLock()
	defer kv.lock.RUnlock()
	if kv.isClosed {
		return nil, fmt.Errorf("kv store is closed")
	}
	keys := make([]string, 0, len(kv.kv))
	for key := range kv.kv {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// GetValue returns a copy of the value for a given key.
func (kv *inMemStore) GetValue(_ context.Context, k string) ([]byte, error) {
	kv.lock.RLock()
	defer kv.lock.RUnlock()
	if kv.isClosed {
		return nil, fmt.Errorf("kv store is closed")
	}
	val, ok := kv.kv[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, k)
	}
	var out = make([]byte, len(val))
	copy(out, val)
	return out, nil
}

// GetStoreName returns the store name.
func (kv *inMemStore) GetStoreName() string {
	return kv.bucketName
}

// DeleteKey deletes the key from the in mem key-value store.
func (kv *inMemStore) DeleteKey(_ context.Context, k string) error {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	if _, ok := kv.kv[k]; !ok {
		return fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, k)
	}
	delete(kv.kv, k)
	return nil
}

// PutKV puts an element to the in mem key-value store.
func (kv *inMemStore) PutKV(_ context.Context, k string, v []byte) error {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	if kv.isClosed {
		return fmt.Errorf("kv store is closed")
	}
	var val = make([]byte, len(v))
	copy(val, v)
	kv.kv[k] = val
	return nil
}

// Close closes the store, the content is kept but no longer accessible.
func (kv *inMemStore) Close() {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	kv.isClosed = true
	kv.log.Debugw("Closed in-memory kv store", zap.Int("keys", len(kv.kv)))
}
