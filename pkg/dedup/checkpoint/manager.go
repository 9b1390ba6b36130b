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

// Package checkpoint persists dedup state records to a KV bucket.
//
// A checkpoint writes every record under "cp.<id>." and then commits the
// manifest key "latest" naming <id>. Load only reads the committed id, so a
// checkpoint that failed half way is never loaded. Records of older checkpoints
// are removed after the manifest is committed.
package checkpoint

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/state"
	"github.com/numaproj/numadedup/pkg/metrics"
	"github.com/numaproj/numadedup/pkg/shared/kvs"
	"github.com/numaproj/numadedup/pkg/shared/logging"
)

const (
	manifestKey  = "latest"
	recordPrefix = "cp."
)

// ErrNoCheckpoint is returned by Load when nothing has been committed yet.
var ErrNoCheckpoint = errors.New("no committed checkpoint")

// Manifest describes a committed checkpoint.
type Manifest struct {
	ID         string    `json:"id"`
	Operator   string    `json:"operator"`
	Partitions int       `json:"partitions"`
	Records    int       `json:"records"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Manager saves and loads checkpoints of one operator.
type Manager struct {
	// saveLock keeps a commit and its pruning apart from other saves
	saveLock sync.Mutex
	name     string
	kv       kvs.KVStorer
	codec    *state.Codec
	log      *zap.SugaredLogger
}

// NewManager returns a Manager for the operator name storing in kv.
func NewManager(ctx context.Context, name string, kv kvs.KVStorer, codec *state.Codec) *Manager {
	return &Manager{
		name:  name,
		kv:    kv,
		codec: codec,
		log:   logging.FromContext(ctx).With("operator", name, "bucket", kv.GetStoreName()),
	}
}

func recordKey(id string, key changelog.Key) string {
	return recordPrefix + id + "." + base64.RawURLEncoding.EncodeToString([]byte(key))
}

// Save writes records taken from partitions partitions and commits them.
func (m *Manager) Save(ctx context.Context, partitions int, records []state.Record) (Manifest, error) {
	m.saveLock.Lock()
	defer m.saveLock.Unlock()
	manifest, err := m.save(ctx, partitions, records)
	if err != nil {
		metrics.CheckpointErrors.WithLabelValues(m.name).Inc()
		return Manifest{}, err
	}
	metrics.CheckpointsTotal.WithLabelValues(m.name).Inc()
	metrics.CheckpointRecords.WithLabelValues(m.name).Set(float64(manifest.Records))
	return manifest, nil
}

func (m *Manager) save(ctx context.Context, partitions int, records []state.Record) (Manifest, error) {
	manifest := Manifest{
		ID:         uuid.NewString(),
		Operator:   m.name,
		Partitions: partitions,
		Records:    len(records),
		CreatedAt:  time.Now().UTC(),
	}
	for _, r := range records {
		data, err := m.codec.Encode(r.State)
		if err != nil {
			return Manifest{}, fmt.Errorf("failed to encode state of key %s, %w", r.Key, err)
		}
		if err = m.kv.PutKV(ctx, recordKey(manifest.ID, r.Key), data); err != nil {
			return Manifest{}, fmt.Errorf("failed to write checkpoint record, %w", err)
		}
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return Manifest{}, err
	}
	if err = m.kv.PutKV(ctx, manifestKey, data); err != nil {
		return Manifest{}, fmt.Errorf("failed to commit checkpoint %s, %w", manifest.ID, err)
	}
	m.log.Infow("Committed checkpoint", zap.String("id", manifest.ID), zap.Int("records", manifest.Records))
	m.prune(ctx, manifest.ID)
	return manifest, nil
}

// prune deletes the records of every checkpoint other than keep. Failures are
// only logged, the next checkpoint retries them.
func (m *Manager) prune(ctx context.Context, keep string) {
	keys, err := m.kv.GetAllKeys(ctx)
	if err != nil {
		m.log.Warnw("Failed to list keys for pruning", zap.Error(err))
		return
	}
	current := recordPrefix + keep + "."
	for _, k := range keys {
		if !strings.HasPrefix(k, recordPrefix) || strings.HasPrefix(k, current) {
			continue
		}
		if err := m.kv.DeleteKey(ctx, k); err != nil && !errors.Is(err, kvs.ErrKeyNotFound) {
			m.log.Warnw("Failed to prune checkpoint record", zap.String("key", k), zap.Error(err))
		}
	}
}

// Latest returns the manifest of the committed checkpoint.
func (m *Manager) Latest(ctx context.Context) (Manifest, error) {
	data, err := m.kv.GetValue(ctx, manifestKey)
	if errors.Is(err, kvs.ErrKeyNotFound) {
		return Manifest{}, ErrNoCheckpoint
	}
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if err = json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("%w: invalid manifest, %v", state.ErrCorruptedState, err)
	}
	return manifest, nil
}

// Load returns the committed checkpoint. Records are sorted by their encoded key.
func (m *Manager) Load(ctx context.Context) (Manifest, []state.Record, error) {
	manifest, err := m.Latest(ctx)
	if err != nil {
		return Manifest{}, nil, err
	}
	keys, err := m.kv.GetAllKeys(ctx)
	if err != nil {
		return Manifest{}, nil, err
	}
	prefix := recordPrefix + manifest.ID + "."
	records := make([]state.Record, 0, manifest.Records)
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(k, prefix))
		if err != nil {
			return Manifest{}, nil, fmt.Errorf("%w: invalid record key %q", state.ErrCorruptedState, k)
		}
		data, err := m.kv.GetValue(ctx, k)
		if err != nil {
			return Manifest{}, nil, fmt.Errorf("failed to read checkpoint record, %w", err)
		}
		s, err := m.codec.Decode(data)
		if err != nil {
			return Manifest{}, nil, fmt.Errorf("key %s, %w", string(raw), err)
		}
		records = append(records, state.Record{Key: changelog.Key(raw), State: s})
	}
	if len(records) != manifest.Records {
		return Manifest{}, nil, fmt.Errorf("%w: checkpoint %s has %d records, manifest says %d", state.ErrCorruptedState, manifest.ID, len(records), manifest.Records)
	}
	m.log.Infow("Loaded checkpoint", zap.String("id", manifest.ID), zap.Int("records", len(records)))
	return manifest, records, nil
}
