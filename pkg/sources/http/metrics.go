package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// httpSourceReadCount is used to indicate the number of elements read by the http source
var httpSourceReadCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "http_source",
	Name:      "read_total",
	Help:      "Total number of elements Read",
}, []string{"source"})

// httpSourceRejectCount is used to indicate the number of requests rejected for a malformed line
var httpSourceRejectCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "http_source",
	Name:      "rejected_requests_total",
	Help:      "Total number of requests rejected for a malformed line",
}, []string{"source"})
