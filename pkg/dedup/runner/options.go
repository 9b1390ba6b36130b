package runner

const defaultBufferSize = 64

type options struct {
	bufferSize int
}

func defaultOptions() *options {
	return &options{
		bufferSize: defaultBufferSize,
	}
}

// Option to apply to the runner
type Option func(*options)

// WithBufferSize sets the channel buffer between the router and each partition
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.bufferSize = n
		}
	}
}
