package config

import (
	"fmt"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/dedup"
	"github.com/numaproj/numadedup/pkg/dedup/decision"
	"github.com/numaproj/numadedup/pkg/dedup/ordering"
)

// BuildSchema returns the row schema.
func (c *Config) BuildSchema() (*changelog.Schema, error) {
	if len(c.Schema) == 0 {
		return nil, fmt.Errorf("schema must have at least one field")
	}
	fields := make([]changelog.Field, 0, len(c.Schema))
	for _, f := range c.Schema {
		t, err := changelog.ParseFieldType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("schema field %q, %w", f.Name, err)
		}
		fields = append(fields, changelog.Field{Name: f.Name, Type: t, Nullable: f.Nullable})
	}
	return changelog.NewSchema(fields...)
}

// ToOperatorOptions returns the options of the operator owning partition.
func (c *Config) ToOperatorOptions(partition int) ([]dedup.Option, error) {
	strategy, err := decision.ParseStrategy(c.Dedup.Strategy)
	if err != nil {
		return nil, err
	}
	src, err := ordering.ParseSource(c.Dedup.OrderingSource)
	if err != nil {
		return nil, err
	}
	opts := []dedup.Option{
		dedup.WithName(c.Name),
		dedup.WithPartition(partition),
		dedup.WithStrategy(strategy),
		dedup.WithCompactChanges(c.Dedup.CompactChanges == nil || *c.Dedup.CompactChanges),
		dedup.WithGenerateUpdateBefore(c.Dedup.GenerateUpdateBefore == nil || *c.Dedup.GenerateUpdateBefore),
		dedup.WithValidateOutput(c.Dedup.ValidateOutput),
	}
	if src == ordering.EventTime {
		opts = append(opts, dedup.WithEventTime(c.Dedup.EventTimeField))
	} else {
		opts = append(opts, dedup.WithProcessingTime())
	}
	if mb := c.Dedup.MiniBatch; mb.Enabled {
		size := mb.Size
		if size < 0 {
			size = 0
		}
		opts = append(opts, dedup.WithMiniBatch(size, nonNegative(mb.Interval)))
	}
	if c.Dedup.AsyncState.Enabled {
		opts = append(opts, dedup.WithAsyncState(c.Dedup.AsyncState.MaxInFlight))
	}
	return opts, nil
}

// CheckpointEnabled reports whether checkpoints are taken.
func (c *Config) CheckpointEnabled() bool {
	return c.Checkpoint.Backend != "none"
}

// RestoreEnabled reports whether the committed checkpoint is loaded at start.
func (c *Config) RestoreEnabled() bool {
	return c.CheckpointEnabled() && (c.Checkpoint.Restore == nil || *c.Checkpoint.Restore)
}
