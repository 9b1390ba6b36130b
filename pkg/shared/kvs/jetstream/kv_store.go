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
Package jetstream implements the KV store using a JetStream key-value bucket.
*/
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/shared/kvs"
	"github.com/numaproj/numadedup/pkg/shared/logging"
)

// jetStreamStore implements the KV store backed up by Jetstream.
type jetStreamStore struct {
	kvName string
	conn   *nats.Conn
	kv     nats.KeyValue
	log    *zap.SugaredLogger
	opts   *options
}

var _ kvs.KVStorer = (*jetStreamStore)(nil)

// NewKVJetStreamKVStore returns a KV store bound to the bucket kvName.
func NewKVJetStreamKVStore(ctx context.Context, kvName string, conn *nats.Conn, opts ...Option) (kvs.KVStorer, error) {
	kvOpts := defaultOptions()
	for _, o := range opts {
		o(kvOpts)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get jetstream context: %w", err)
	}
	kv, err := js.KeyValue(kvName)
	if errors.Is(err, nats.ErrBucketNotFound) && kvOpts.createBucket {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  kvName,
			History: kvOpts.history,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind kv store: %w", err)
	}

	return &jetStreamStore{
		kvName: kvName,
		conn:   conn,
		kv:     kv,
		opts:   kvOpts,
		log:    logging.FromContext(ctx).With("kvName", kvName),
	}, nil
}

// GetAllKeys returns all the keys in the key-value store.
func (jss *jetStreamStore) GetAllKeys(_ context.Context) ([]string, error) {
	keys, err := jss.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// GetValue returns the value for a given key.
func (jss *jetStreamStore) GetValue(_ context.Context, k string) ([]byte, error) {
	entry, err := jss.kv.Get(k)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, k)
	}
	if err != nil {
		return nil, err
	}
	return entry.Value(), nil
}

// GetStoreName returns the store name.
func (jss *jetStreamStore) GetStoreName() string {
	return jss.kv.Bucket()
}

// DeleteKey deletes the key from the JS key-value store.
func (jss *jetStreamStore) DeleteKey(ctx context.Context, k string) error {
	// JetStream accepts deletes of missing keys, keep the same contract as the other backends.
	if _, err := jss.GetValue(ctx, k); err != nil {
		return err
	}
	// will return error if nats connection is closed
	return jss.kv.Delete(k)
}

// PutKV puts an element to the JS key-value store.
func (jss *jetStreamStore) PutKV(_ context.Context, k string, v []byte) error {
	// will return error if nats connection is closed
	_, err := jss.kv.Put(k, v)
	return err
}

// Close closes the nats connection if the store owns it.
func (jss *jetStreamStore) Close() {
	if jss.opts.ownsConn && !jss.conn.IsClosed() {
		jss.conn.Close()
		jss.log.Infow("Closed nats connection", zap.String("kvName", jss.kvName))
	}
}
