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
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/numaproj/numadedup/pkg/dedup"
	"github.com/numaproj/numadedup/pkg/sources/jsonl"
)

// consumerHandler decodes the records of its claims and passes them on. An
// offset is marked once its element has been handed to out.
type consumerHandler struct {
	name        string
	decoder     *jsonl.Decoder
	out         chan<- dedup.Element
	ready       chan bool
	readyCloser sync.Once
	logger      *zap.SugaredLogger
}

func newConsumerHandler(name string, decoder *jsonl.Decoder, out chan<- dedup.Element, logger *zap.SugaredLogger) *consumerHandler {
	return &consumerHandler{
		name:    name,
		decoder: decoder,
		out:     out,
		ready:   make(chan bool),
		logger:  logger,
	}
}

// Setup is run at the beginning of a new session, before ConsumeClaim
func (consumer *consumerHandler) Setup(sarama.ConsumerGroupSession) error {
	consumer.readyCloser.Do(func() {
		close(consumer.ready)
	})
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited
func (consumer *consumerHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	sess.Commit()
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages().
func (consumer *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := consumer.handle(session.Context(), msg); err != nil {
				consumer.logger.Info("context was canceled, stopping consumer claim")
				return nil
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			consumer.logger.Info("context was canceled, stopping consumer claim")
			return nil
		}
	}
}

func (consumer *consumerHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	kafkaSourceReadCount.WithLabelValues(consumer.name).Inc()
	e, err := consumer.decoder.Decode(msg.Value)
	if err != nil {
		// a record that can never be decoded is skipped, not retried
		kafkaSourceMalformedCount.WithLabelValues(consumer.name).Inc()
		consumer.logger.Warnw("Skipping malformed record", zap.String("topic", msg.Topic), zap.Int32("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}
	select {
	case consumer.out <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
