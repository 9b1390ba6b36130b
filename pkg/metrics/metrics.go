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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelVersion   = "version"
	LabelPlatform  = "platform"
	LabelOperator  = "operator"
	LabelPartition = "partition"
	LabelReason    = "reason"
	LabelKind      = "kind"
	LabelMode      = "mode"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A metric with a constant value '1', labeled by numadedup binary version and platform",
	}, []string{LabelVersion, LabelPlatform})
)

// Dedup operator metrics
var (
	// RowsRead is used to indicate the number of rows received by an operator partition
	RowsRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "dedup",
		Name:      "rows_read_total",
		Help:      "Total number of rows read",
	}, []string{LabelOperator, LabelPartition})

	// RowsRejected is used to indicate the number of rows rejected before reaching the decision engine
	RowsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "dedup",
		Name:      "rows_rejected_total",
		Help:      "Total number of rejected rows",
	}, []string{LabelOperator, LabelPartition, LabelReason})

	// LateRows is used to indicate the number of event time rows behind the watermark
	LateRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "dedup",
		Name:      "late_rows_total",
		Help:      "Total number of rows behind the watermark",
	}, []string{LabelOperator, LabelPartition})

	// RowsDiscarded is used to indicate the number of rows that did not change the winner
	RowsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "dedup",
		Name:      "rows_discarded_total",
		Help:      "Total number of discarded rows",
	}, []string{LabelOperator, LabelPartition})

	// EventsEmitted is used to indicate the number of changelog events emitted, by kind
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "dedup",
		Name:      "events_emitted_total",
		Help:      "Total number of emitted changelog events",
	}, []string{LabelOperator, LabelPartition, LabelKind})

	// EmitErrors is used to indicate the number of emissions that failed for good
	EmitErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "dedup",
		Name:      "emit_error_total",
		Help:      "Total number of failed emissions",
	}, []string{LabelOperator, LabelPartition})

	// StateKeys is the number of keys held by the state store of a partition
	StateKeys = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "dedup",
		Name:      "state_keys",
		Help:      "Number of keys in the state store",
	}, []string{LabelOperator, LabelPartition})
)

// Mini-batch metrics
var (
	// BundleFlushes is used to indicate the number of flushed bundles
	BundleFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "minibatch",
		Name:      "flush_total",
		Help:      "Total number of bundle flushes",
	}, []string{LabelOperator, LabelPartition, LabelMode})

	// BundleSize is a histogram of the rows per flushed bundle
	BundleSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "minibatch",
		Name:      "bundle_size",
		Help:      "Rows per flushed bundle",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{LabelOperator, LabelPartition})

	// FlushProcessingTime is a histogram to observe bundle flush latency
	FlushProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "minibatch",
		Name:      "flush_processing_time",
		Help:      "Processing times of bundle flushes (100 microseconds to 10 minutes)",
		Buckets:   prometheus.ExponentialBucketsRange(100, 60000000*10, 10),
	}, []string{LabelOperator, LabelPartition})
)

// Checkpoint metrics
var (
	// CheckpointsTotal is used to indicate the number of committed checkpoints
	CheckpointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "checkpoint",
		Name:      "total",
		Help:      "Total number of committed checkpoints",
	}, []string{LabelOperator})

	// CheckpointErrors is used to indicate the number of failed checkpoints
	CheckpointErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "checkpoint",
		Name:      "error_total",
		Help:      "Total number of failed checkpoints",
	}, []string{LabelOperator})

	// CheckpointRecords is the number of records in the last committed checkpoint
	CheckpointRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "checkpoint",
		Name:      "records",
		Help:      "Number of records in the last committed checkpoint",
	}, []string{LabelOperator})
)
