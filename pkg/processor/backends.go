package processor

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/numaproj/numadedup/pkg/config"
	"github.com/numaproj/numadedup/pkg/dedup/state"
	"github.com/numaproj/numadedup/pkg/dedup/state/kvstate"
	"github.com/numaproj/numadedup/pkg/dedup/state/memory"
	jsclient "github.com/numaproj/numadedup/pkg/shared/clients/jetstream"
	"github.com/numaproj/numadedup/pkg/shared/kvs"
	"github.com/numaproj/numadedup/pkg/shared/kvs/inmem"
	jetstreamkv "github.com/numaproj/numadedup/pkg/shared/kvs/jetstream"
	rediskv "github.com/numaproj/numadedup/pkg/shared/kvs/redis"
)

// NewKVStore returns a KV store named bucket on backend. The returned store
// owns its connection.
func NewKVStore(ctx context.Context, conf *config.Config, backend, bucket string) (kvs.KVStorer, error) {
	switch backend {
	case "memory":
		return inmem.NewKVInMemKVStore(ctx, bucket)
	case "redis":
		return rediskv.NewKVRedisStoreFromOptions(ctx, bucket, &redis.UniversalOptions{
			Addrs:    conf.Redis.Addrs,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
	case "jetstream":
		conn, err := jsclient.Connect(ctx, conf.NATS.URL, jsclient.WithClientName(conf.Name))
		if err != nil {
			return nil, err
		}
		kv, err := jetstreamkv.NewKVJetStreamKVStore(ctx, bucket, conn, jetstreamkv.WithCreateBucket(true), jetstreamkv.WithOwnedConn())
		if err != nil {
			conn.Close()
			return nil, err
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unsupported kv backend %q", backend)
	}
}

// newStateStore returns the state store of one partition.
func newStateStore(ctx context.Context, conf *config.Config, codec *state.Codec, partition int) (state.Store, error) {
	if conf.State.Backend == "memory" {
		return memory.NewMemoryStore(ctx, fmt.Sprintf("%s-%d", conf.Name, partition)), nil
	}
	kv, err := NewKVStore(ctx, conf, conf.State.Backend, fmt.Sprintf("%s-%d", conf.State.Bucket, partition))
	if err != nil {
		return nil, fmt.Errorf("failed to create state store of partition %d, %w", partition, err)
	}
	return kvstate.NewKVStore(ctx, kv, codec, conf.State.CacheSize)
}
