package jsonl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// jsonlSourceReadCount is used to indicate the number of lines read by the jsonl source
var jsonlSourceReadCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "jsonl_source",
	Name:      "read_total",
	Help:      "Total number of lines read",
}, []string{"source"})

// jsonlSourceMalformedCount is used to indicate the number of lines skipped as malformed
var jsonlSourceMalformedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "jsonl_source",
	Name:      "malformed_total",
	Help:      "Total number of malformed lines skipped",
}, []string{"source"})

// jsonlSourceFilteredCount is used to indicate the number of rows dropped by the filter
var jsonlSourceFilteredCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "jsonl_source",
	Name:      "filtered_total",
	Help:      "Total number of rows dropped by the filter expression",
}, []string{"source"})
