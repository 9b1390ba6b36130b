/*
Package redis implements the KV store on a redis hash, one hash per bucket.
*/
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/shared/kvs"
	"github.com/numaproj/numadedup/pkg/shared/logging"
)

// redisStore implements the KV store backed up by a redis hash.
type redisStore struct {
	bucketName string
	client     redis.UniversalClient
	ownsClient bool
	log        *zap.SugaredLogger
}

var _ kvs.KVStorer = (*redisStore)(nil)

// NewKVRedisStore returns a KV store on the hash named bucketName. The client is
// closed with the store when ownsClient is set.
func NewKVRedisStore(ctx context.Context, bucketName string, client redis.UniversalClient, ownsClient bool) (kvs.KVStorer, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		if ownsClient {
			_ = client.Close()
		}
		return nil, fmt.Errorf("failed to ping redis, %w", err)
	}
	return &redisStore{
		bucketName: bucketName,
		client:     client,
		ownsClient: ownsClient,
		log:        logging.FromContext(ctx).With("bucketName", bucketName),
	}, nil
}

// NewKVRedisStoreFromOptions creates the redis client from options and owns it.
func NewKVRedisStoreFromOptions(ctx context.Context, bucketName string, options *redis.UniversalOptions) (kvs.KVStorer, error) {
	return NewKVRedisStore(ctx, bucketName, redis.NewUniversalClient(options), true)
}

// GetAllKeys returns all the fields of the bucket hash, sorted.
func (rs *redisStore) GetAllKeys(ctx context.Context) ([]string, error) {
	keys, err := rs.client.HKeys(ctx, rs.bucketName).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// GetValue returns the value for a given key.
func (rs *redisStore) GetValue(ctx context.Context, k string) ([]byte, error) {
	val, err := rs.client.HGet(ctx, rs.bucketName, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, k)
	}
	return val, err
}

// GetStoreName returns the hash name.
func (rs *redisStore) GetStoreName() string {
	return rs.bucketName
}

// DeleteKey deletes the key from the bucket hash.
func (rs *redisStore) DeleteKey(ctx context.Context, k string) error {
	n, err := rs.client.HDel(ctx, rs.bucketName, k).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, k)
	}
	return nil
}

// PutKV puts an element into the bucket hash.
func (rs *redisStore) PutKV(ctx context.Context, k string, v []byte) error {
	return rs.client.HSet(ctx, rs.bucketName, k, v).Err()
}

// Close closes the redis client if the store owns it.
func (rs *redisStore) Close() {
	if !rs.ownsClient {
		return
	}
	if err := rs.client.Close(); err != nil {
		rs.log.Errorw("Failed to close redis client", zap.Error(err))
	}
}
