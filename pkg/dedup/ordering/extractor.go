// Package ordering derives the comparable ordering value of a row, either from
// a processing-time clock read at arrival or from an event-time field of the row.
package ordering

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"k8s.io/utils/clock"

	"github.com/numaproj/numadedup/pkg/changelog"
	"github.com/numaproj/numadedup/pkg/watermark/wmb"
)

// ErrMalformedOrdering is returned when a row does not carry a usable event time.
var ErrMalformedOrdering = errors.New("malformed ordering value")

// Source is the time domain ordering values are drawn from.
type Source int8

const (
	ProcessingTime Source = iota
	EventTime
)

func (s Source) String() string {
	switch s {
	case ProcessingTime:
		return "PROCESSING_TIME"
	case EventTime:
		return "EVENT_TIME"
	default:
		return "UNKNOWN"
	}
}

// ParseSource parses PROCESSING_TIME (or PROC_TIME) and EVENT_TIME, case-insensitively.
func ParseSource(s string) (Source, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "PROCESSING_TIME", "PROC_TIME", "PROCTIME":
		return ProcessingTime, nil
	case "EVENT_TIME", "ROWTIME":
		return EventTime, nil
	default:
		return ProcessingTime, fmt.Errorf("unknown ordering source %q", s)
	}
}

// Value is an ordering value in epoch milliseconds.
type Value int64

// Extractor assigns ordering values. It is owned by a single partition and is not
// safe for concurrent use.
type Extractor struct {
	source    Source
	clock     clock.PassiveClock
	last      Value
	fieldIdx  int
	fieldName string
	watermark *wmb.Tracker
}

// NewProcessingTimeExtractor reads clk at arrival. Values never decrease even if
// the wall clock steps backwards.
func NewProcessingTimeExtractor(clk clock.PassiveClock) *Extractor {
	return &Extractor{
		source:   ProcessingTime,
		clock:    clk,
		last:     Value(-1 << 63),
		fieldIdx: -1,
	}
}

// NewEventTimeExtractor reads the named BIGINT (epoch millis) or TIMESTAMP field.
// tracker is only consulted for lateness reporting.
func NewEventTimeExtractor(schema *changelog.Schema, field string, tracker *wmb.Tracker) (*Extractor, error) {
	idx := schema.IndexOf(field)
	if idx < 0 {
		return nil, fmt.Errorf("event time field %q not found in schema", field)
	}
	switch t := schema.Fields[idx].Type; t {
	case changelog.TypeInt64, changelog.TypeTimestamp:
	default:
		return nil, fmt.Errorf("event time field %q must be BIGINT or TIMESTAMP, got %s", field, t)
	}
	if tracker == nil {
		tracker = wmb.NewTracker()
	}
	return &Extractor{
		source:    EventTime,
		fieldIdx:  idx,
		fieldName: field,
		watermark: tracker,
	}, nil
}

// Source returns the configured time domain.
func (e *Extractor) Source() Source {
	return e.source
}

// Extract returns the ordering value of row. Event-time rows without a valid
// time field are rejected with ErrMalformedOrdering.
func (e *Extractor) Extract(row changelog.Row) (Value, error) {
	if e.source == ProcessingTime {
		v := Value(e.clock.Now().UnixMilli())
		if v < e.last {
			v = e.last
		}
		e.last = v
		return v, nil
	}
	if e.fieldIdx >= len(row.Fields) {
		return 0, fmt.Errorf("%w: field %q missing", ErrMalformedOrdering, e.fieldName)
	}
	switch v := row.Fields[e.fieldIdx].(type) {
	case int64:
		return Value(v), nil
	case time.Time:
		return Value(v.UnixMilli()), nil
	case nil:
		return 0, fmt.Errorf("%w: field %q is null", ErrMalformedOrdering, e.fieldName)
	default:
		return 0, fmt.Errorf("%w: field %q has type %T", ErrMalformedOrdering, e.fieldName, v)
	}
}

// RaiseFloor makes later processing-time values at least v, so values keep
// increasing across a restore onto a clock that reads earlier. It has no
// effect in event time.
func (e *Extractor) RaiseFloor(v Value) {
	if e.source == ProcessingTime && v > e.last {
		e.last = v
	}
}

// IsLate reports whether an event-time value is behind the current watermark.
// Late rows are still deduplicated; lateness is only reported.
func (e *Extractor) IsLate(v Value) bool {
	if e.source != EventTime {
		return false
	}
	return e.watermark.Current().IsLate(int64(v))
}

// Watermark returns the tracker used for lateness checks, nil in processing time.
func (e *Extractor) Watermark() *wmb.Tracker {
	return e.watermark
}
