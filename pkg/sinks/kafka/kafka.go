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

package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/shared/logging"
	"github.com/numaproj/numadedup/pkg/shared/util"
)

// HeaderKind is the record header carrying the change kind.
const HeaderKind = "kind"

// ToKafka produce the changelog to a kafka topic. Records are keyed by the dedup
// key, so that all events of a key land on one topic partition in order.
type ToKafka struct {
	name     string
	producer sarama.SyncProducer
	topic    string
	schema   *changelog.Schema
	log      *zap.SugaredLogger
}

// Config holds the connection settings of the kafka sink.
type Config struct {
	Brokers []string
	Topic   string
	// SaramaConfig is a YAML document unmarshalled into sarama.Config.
	SaramaConfig  string
	SASLMechanism string
	SASLUser      string
	SASLPassword  string
}

type Option func(*ToKafka) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToKafka) error {
		t.log = log
		return nil
	}
}

// WithProducer uses producer instead of dialing the brokers.
func WithProducer(producer sarama.SyncProducer) Option {
	return func(t *ToKafka) error {
		t.producer = producer
		return nil
	}
}

// NewToKafka returns ToKafka type.
func NewToKafka(ctx context.Context, name string, schema *changelog.Schema, cfg Config, opts ...Option) (*ToKafka, error) {
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	toKafka := &ToKafka{
		name:   name,
		topic:  cfg.Topic,
		schema: schema,
	}
	for _, o := range opts {
		if err := o(toKafka); err != nil {
			return nil, err
		}
	}
	if toKafka.log == nil {
		toKafka.log = logging.FromContext(ctx)
	}
	toKafka.log = toKafka.log.With("sinkType", "kafka").With("topic", cfg.Topic)
	if toKafka.producer != nil {
		return toKafka, nil
	}

	config, err := util.NewSaramaConfig(cfg.SaramaConfig, util.SASL{Mechanism: cfg.SASLMechanism, User: cfg.SASLUser, Password: cfg.SASLPassword})
	if err != nil {
		return nil, err
	}
	// the whole batch must be acknowledged before the events count as emitted
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer. %w", err)
	}
	toKafka.producer = producer
	return toKafka, nil
}

// GetName returns the name.
func (tk *ToKafka) GetName() string {
	return tk.name
}

// Collect sends the events as one batch. A failed batch is returned as an error
// and the caller resends the whole batch, so the topic may hold duplicates of
// the events that made it before the failure.
func (tk *ToKafka) Collect(_ context.Context, events []changelog.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, e := range events {
		value, err := changelog.MarshalEventJSON(tk.schema, e)
		if err != nil {
			return err
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: tk.topic,
			Key:   sarama.StringEncoder(e.Key),
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte(HeaderKind), Value: []byte(e.Row.Kind.ShortString())},
			},
		})
	}
	if err := tk.producer.SendMessages(msgs); err != nil {
		var pErrs sarama.ProducerErrors
		failed := len(msgs)
		if errors.As(err, &pErrs) {
			failed = len(pErrs)
		}
		kafkaSinkWriteErrors.WithLabelValues(tk.name).Add(float64(failed))
		tk.log.Errorw("SendMessages failed", zap.Int("failed", failed), zap.Int("total", len(msgs)), zap.Error(err))
		return fmt.Errorf("failed to send %d of %d events to kafka, %w", failed, len(msgs), err)
	}
	kafkaSinkWriteCount.WithLabelValues(tk.name).Add(float64(len(msgs)))
	return nil
}

func (tk *ToKafka) Close() error {
	tk.log.Info("Closing kafka producer...")
	return tk.producer.Close()
}
