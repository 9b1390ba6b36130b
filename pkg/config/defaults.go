package config

import (
	"time"

	"github.com/numaproj/numadedup/pkg/dedup"
	"github.com/numaproj/numadedup/pkg/metrics"
)

// Defaults returns the values of every option left empty in a file.
func Defaults() Config {
	yes := true
	return Config{
		Name:        "dedup",
		Parallelism: 1,
		Log:         LogConfig{Level: "info"},
		Dedup: DedupConfig{
			Strategy:       "FIRST_ROW",
			OrderingSource: "PROCESSING_TIME",
			MiniBatch: MiniBatchConfig{
				Size:     dedup.DefaultMiniBatchSize,
				Interval: dedup.DefaultMiniBatchInterval,
			},
			CompactChanges:       &yes,
			AsyncState:           AsyncStateConfig{MaxInFlight: dedup.DefaultMaxInFlight},
			GenerateUpdateBefore: &yes,
		},
		State: StateConfig{
			Backend: "memory",
			Bucket:  "numadedup-state",
		},
		Checkpoint: CheckpointConfig{
			Backend:  "none",
			Bucket:   "numadedup-checkpoints",
			Schedule: "@every 1m",
			Restore:  &yes,
		},
		Source: SourceConfig{
			Type:     "jsonl",
			Path:     "-",
			Timezone: "UTC",
			HTTP:     HTTPSourceConfig{Port: 8443},
		},
		Sink: SinkConfig{
			Type: "log",
		},
		Redis: RedisConfig{
			Addrs: []string{"localhost:6379"},
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Metrics: MetricsConfig{
			Port: metrics.DefaultMetricsPort,
		},
	}
}

// interval with negative meaning disabled
func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
