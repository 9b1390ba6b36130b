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

// Package config loads the configuration of a dedup job from a YAML file,
// with NUMADEDUP_ environment overrides, e.g. NUMADEDUP_DEDUP_STRATEGY=LAST_ROW.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/imdario/mergo"
	"github.com/spf13/viper"
)

const EnvPrefix = "NUMADEDUP"

// Config is the configuration of one dedup job.
type Config struct {
	Name        string           `json:"name"`
	Schema      []FieldConfig    `json:"schema"`
	Keys        []string         `json:"keys"`
	Parallelism int              `json:"parallelism"`
	Log         LogConfig        `json:"log"`
	Dedup       DedupConfig      `json:"dedup"`
	State       StateConfig      `json:"state"`
	Checkpoint  CheckpointConfig `json:"checkpoint"`
	Source      SourceConfig     `json:"source"`
	Sink        SinkConfig       `json:"sink"`
	Redis       RedisConfig      `json:"redis"`
	NATS        NATSConfig       `json:"nats"`
	Metrics     MetricsConfig    `json:"metrics"`
}

type FieldConfig struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type LogConfig struct {
	Level string `json:"level"`
}

type DedupConfig struct {
	// Strategy is FIRST_ROW or LAST_ROW.
	Strategy string `json:"strategy"`
	// OrderingSource is PROCESSING_TIME or EVENT_TIME.
	OrderingSource       string           `json:"orderingSource"`
	EventTimeField       string           `json:"eventTimeField"`
	MiniBatch            MiniBatchConfig  `json:"miniBatch"`
	CompactChanges       *bool            `json:"compactChanges"`
	AsyncState           AsyncStateConfig `json:"asyncState"`
	GenerateUpdateBefore *bool            `json:"generateUpdateBefore"`
	ValidateOutput       bool             `json:"validateOutput"`
}

type MiniBatchConfig struct {
	Enabled bool `json:"enabled"`
	// Size is the row count trigger, negative disables it.
	Size int `json:"size"`
	// Interval is the time trigger, negative disables it.
	Interval time.Duration `json:"interval"`
}

type AsyncStateConfig struct {
	Enabled     bool `json:"enabled"`
	MaxInFlight int  `json:"maxInFlight"`
}

type StateConfig struct {
	// Backend is memory, redis or jetstream.
	Backend   string `json:"backend"`
	Bucket    string `json:"bucket"`
	CacheSize int    `json:"cacheSize"`
}

type CheckpointConfig struct {
	// Backend is none, memory, redis or jetstream.
	Backend string `json:"backend"`
	Bucket  string `json:"bucket"`
	// Schedule is a cron spec, e.g. "@every 30s" or "*/5 * * * *".
	Schedule string `json:"schedule"`
	// Restore loads the committed checkpoint at start.
	Restore *bool `json:"restore"`
}

type SourceConfig struct {
	// Type is jsonl, http or kafka.
	Type string `json:"type"`
	// Path of the jsonl input, "-" for stdin.
	Path string `json:"path"`
	// Filter is an expression rows must match, e.g. "amount > 0".
	Filter string `json:"filter"`
	// Timezone of date strings without one.
	Timezone string            `json:"timezone"`
	HTTP     HTTPSourceConfig  `json:"http"`
	Kafka    KafkaSourceConfig `json:"kafka"`
}

type HTTPSourceConfig struct {
	Port      int    `json:"port"`
	AuthToken string `json:"authToken"`
	TLS       bool   `json:"tls"`
}

type SASLConfig struct {
	Mechanism string `json:"mechanism"`
	User      string `json:"user"`
	Password  string `json:"password"`
}

type KafkaSourceConfig struct {
	Brokers       []string   `json:"brokers"`
	Topic         string     `json:"topic"`
	ConsumerGroup string     `json:"consumerGroup"`
	SaramaConfig  string     `json:"saramaConfig"`
	SASL          SASLConfig `json:"sasl"`
}

type SinkConfig struct {
	// Type is log, kafka or blackhole.
	Type  string          `json:"type"`
	Kafka KafkaSinkConfig `json:"kafka"`
}

type KafkaSinkConfig struct {
	Brokers      []string   `json:"brokers"`
	Topic        string     `json:"topic"`
	SaramaConfig string     `json:"saramaConfig"`
	SASL         SASLConfig `json:"sasl"`
}

type RedisConfig struct {
	Addrs    []string `json:"addrs"`
	Password string   `json:"password"`
	DB       int      `json:"db"`
}

type NATSConfig struct {
	URL string `json:"url"`
}

type MetricsConfig struct {
	Port    int  `json:"port"`
	Pprof   bool `json:"pprof"`
	Disable bool `json:"disable"`
}

// envKeys are bound explicitly, viper only resolves environment variables for
// keys it knows about when unmarshalling.
var envKeys = []string{
	"name", "keys", "parallelism", "log.level",
	"dedup.strategy", "dedup.orderingSource", "dedup.eventTimeField",
	"dedup.miniBatch.enabled", "dedup.miniBatch.size", "dedup.miniBatch.interval",
	"dedup.compactChanges", "dedup.asyncState.enabled", "dedup.asyncState.maxInFlight",
	"dedup.generateUpdateBefore", "dedup.validateOutput",
	"state.backend", "state.bucket", "state.cacheSize",
	"checkpoint.backend", "checkpoint.bucket", "checkpoint.schedule", "checkpoint.restore",
	"source.type", "source.path", "source.filter", "source.timezone",
	"source.http.port", "source.http.authToken", "source.http.tls",
	"source.kafka.brokers", "source.kafka.topic", "source.kafka.consumerGroup",
	"source.kafka.sasl.user", "source.kafka.sasl.password",
	"sink.type", "sink.kafka.brokers", "sink.kafka.topic",
	"sink.kafka.sasl.user", "sink.kafka.sasl.password",
	"redis.addrs", "redis.password", "redis.db", "nats.url",
	"metrics.port", "metrics.pprof", "metrics.disable",
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration file. %w", err)
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed unmarshal configuration file. %w", err)
	}
	// a set *bool is kept even when it points to false
	if err := mergo.Merge(c, Defaults(), mergo.WithoutDereference); err != nil {
		return nil, fmt.Errorf("failed to apply defaults, %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watcher keeps the configuration current while the file changes.
type Watcher struct {
	conf *Config
	lock *sync.RWMutex
}

// Get returns the last valid configuration.
func (w *Watcher) Get() *Config {
	w.lock.RLock()
	defer w.lock.RUnlock()
	return w.conf
}

// Watch loads the file at path and reloads it on every change. onReload is
// called with each new valid configuration, onErrorReloading when a change can
// not be loaded, in which case the previous configuration stays current.
func Watch(path string, onReload func(*Config), onErrorReloading func(error)) (*Watcher, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	conf, err := decode(v)
	if err != nil {
		return nil, err
	}
	w := &Watcher{conf: conf, lock: new(sync.RWMutex)}
	v.OnConfigChange(func(e fsnotify.Event) {
		cf, err := decode(v)
		if err != nil {
			onErrorReloading(fmt.Errorf("failed to reload %s, %w", e.Name, err))
			return
		}
		w.lock.Lock()
		w.conf = cf
		w.lock.Unlock()
		onReload(cf)
	})
	v.WatchConfig()
	return w, nil
}
