package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup/decision"
	"github.com/numaproj/numadedup/pkg/dedup/ordering"
	"github.com/numaproj/numadedup/pkg/shared/expr"
)

// Validate reports every problem of c at once.
func (c *Config) Validate() error {
	var err error
	schema, serr := c.BuildSchema()
	if serr != nil {
		err = multierr.Append(err, serr)
	}
	if len(c.Keys) == 0 {
		err = multierr.Append(err, fmt.Errorf("at least one key field is required"))
	} else if schema != nil {
		if _, kerr := changelog.NewKeySelector(schema, c.Keys...); kerr != nil {
			err = multierr.Append(err, kerr)
		}
	}
	if c.Parallelism < 1 {
		err = multierr.Append(err, fmt.Errorf("parallelism must be positive, got %d", c.Parallelism))
	}
	if _, perr := decision.ParseStrategy(c.Dedup.Strategy); perr != nil {
		err = multierr.Append(err, perr)
	}
	src, oerr := ordering.ParseSource(c.Dedup.OrderingSource)
	if oerr != nil {
		err = multierr.Append(err, oerr)
	}
	if oerr == nil && src == ordering.EventTime {
		switch {
		case c.Dedup.EventTimeField == "":
			err = multierr.Append(err, fmt.Errorf("dedup.eventTimeField is required for event time ordering"))
		case schema != nil:
			if i := schema.IndexOf(c.Dedup.EventTimeField); i < 0 {
				err = multierr.Append(err, fmt.Errorf("event time field %q not found in schema", c.Dedup.EventTimeField))
			} else if t := schema.Fields[i].Type; t != changelog.TypeInt64 && t != changelog.TypeTimestamp {
				err = multierr.Append(err, fmt.Errorf("event time field %q must be BIGINT or TIMESTAMP, got %s", c.Dedup.EventTimeField, t))
			}
		}
	}
	if mb := c.Dedup.MiniBatch; mb.Enabled && mb.Size <= 0 && mb.Interval <= 0 {
		err = multierr.Append(err, fmt.Errorf("dedup.miniBatch requires a positive size or interval"))
	}
	if c.Dedup.AsyncState.Enabled && c.Dedup.AsyncState.MaxInFlight < 1 {
		err = multierr.Append(err, fmt.Errorf("dedup.asyncState.maxInFlight must be positive"))
	}
	err = multierr.Append(err, oneOf("state.backend", c.State.Backend, "memory", "redis", "jetstream"))
	err = multierr.Append(err, oneOf("checkpoint.backend", c.Checkpoint.Backend, "none", "memory", "redis", "jetstream"))
	err = multierr.Append(err, oneOf("source.type", c.Source.Type, "jsonl", "http", "kafka"))
	err = multierr.Append(err, oneOf("sink.type", c.Sink.Type, "log", "kafka", "blackhole"))
	if c.Checkpoint.Backend != "none" {
		if _, cerr := cron.ParseStandard(c.Checkpoint.Schedule); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("invalid checkpoint.schedule %q, %w", c.Checkpoint.Schedule, cerr))
		}
	}
	if _, lerr := time.LoadLocation(c.Source.Timezone); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("invalid source.timezone, %w", lerr))
	}
	if c.Source.Filter != "" && schema != nil {
		if _, ferr := expr.NewFilter(c.Source.Filter, schema); ferr != nil {
			err = multierr.Append(err, ferr)
		}
	}
	if c.Source.Type == "kafka" && (c.Source.Kafka.Topic == "" || c.Source.Kafka.ConsumerGroup == "" || len(c.Source.Kafka.Brokers) == 0) {
		err = multierr.Append(err, fmt.Errorf("source.kafka requires brokers, topic and consumerGroup"))
	}
	if c.Sink.Type == "kafka" && (c.Sink.Kafka.Topic == "" || len(c.Sink.Kafka.Brokers) == 0) {
		err = multierr.Append(err, fmt.Errorf("sink.kafka requires brokers and topic"))
	}
	return err
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %v, got %q", name, allowed, value)
}
