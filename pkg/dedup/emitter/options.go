package emitter

import (
	"math"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

type options struct {
	generateUpdateBefore bool
	retryBackoff         wait.Backoff
	validator            *Validator
}

func defaultOptions() *options {
	return &options{
		generateUpdateBefore: true,
		retryBackoff: wait.Backoff{
			Factor:   1,
			Jitter:   0.1,
			Steps:    math.MaxInt,
			Duration: 100 * time.Millisecond,
		},
	}
}

// Option configures an Emitter.
type Option func(*options)

// WithGenerateUpdateBefore controls whether an update is emitted as an
// UPDATE_BEFORE/UPDATE_AFTER pair (true) or as a lone UPDATE_AFTER (false).
func WithGenerateUpdateBefore(b bool) Option {
	return func(o *options) {
		o.generateUpdateBefore = b
	}
}

// WithRetryBackoff sets the backoff used while the collector keeps failing.
func WithRetryBackoff(b wait.Backoff) Option {
	return func(o *options) {
		o.retryBackoff = b
	}
}

// WithValidator checks every batch of events before it is handed to the collector.
func WithValidator(v *Validator) Option {
	return func(o *options) {
		o.validator = v
	}
}
