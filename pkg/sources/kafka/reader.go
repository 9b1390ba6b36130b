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

// Package kafka reads operator input from a kafka topic with a consumer group.
// Record values are JSON objects in the jsonl source format.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/dedup"
	"github.com/numaproj/numadedup/pkg/shared/logging"
	"github.com/numaproj/numadedup/pkg/shared/util"
	"github.com/numaproj/numadedup/pkg/sources"
	"github.com/numaproj/numadedup/pkg/sources/jsonl"
)

// Config holds the connection settings of the kafka source.
type Config struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// SaramaConfig is a YAML document unmarshalled into sarama.Config.
	SaramaConfig  string
	SASLMechanism string
	SASLUser      string
	SASLPassword  string
}

type kafkaSource struct {
	name    string
	topic   string
	group   sarama.ConsumerGroup
	decoder *jsonl.Decoder
	logger  *zap.SugaredLogger
}

type Option func(*kafkaSource) error

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *kafkaSource) error {
		o.logger = l
		return nil
	}
}

// WithConsumerGroup uses group instead of dialing the brokers
func WithConsumerGroup(group sarama.ConsumerGroup) Option {
	return func(o *kafkaSource) error {
		o.group = group
		return nil
	}
}

// NewKafkaSource returns a source consuming cfg.Topic as cfg.ConsumerGroup.
func NewKafkaSource(ctx context.Context, name string, decoder *jsonl.Decoder, cfg Config, opts ...Option) (sources.Source, error) {
	if cfg.Topic == "" || cfg.ConsumerGroup == "" {
		return nil, errors.New("kafka topic and consumer group are required")
	}
	ks := &kafkaSource{
		name:    name,
		topic:   cfg.Topic,
		decoder: decoder,
	}
	for _, o := range opts {
		if err := o(ks); err != nil {
			return nil, err
		}
	}
	if ks.logger == nil {
		ks.logger = logging.FromContext(ctx)
	}
	ks.logger = ks.logger.With("sourceType", "kafka", "topic", cfg.Topic, "consumerGroup", cfg.ConsumerGroup)
	if ks.group != nil {
		return ks, nil
	}

	config, err := util.NewSaramaConfig(cfg.SaramaConfig, util.SASL{Mechanism: cfg.SASLMechanism, User: cfg.SASLUser, Password: cfg.SASLPassword})
	if err != nil {
		return nil, err
	}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group. %w", err)
	}
	ks.group = group
	return ks, nil
}

// GetName returns the name of the source.
func (ks *kafkaSource) GetName() string {
	return ks.name
}

// Start consumes until ctx is done. A rebalance ends a session, after which
// the group is joined again.
func (ks *kafkaSource) Start(ctx context.Context, out chan<- dedup.Element) error {
	handler := newConsumerHandler(ks.name, ks.decoder, out, ks.logger)
	go func() {
		select {
		case <-handler.ready:
			ks.logger.Info("Kafka consumer group session started")
		case <-ctx.Done():
		}
	}()
	for {
		if err := ks.group.Consume(ctx, []string{ks.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("kafka consumer group failed, %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (ks *kafkaSource) Close() error {
	ks.logger.Info("Closing kafka consumer group...")
	return ks.group.Close()
}
