package memory

type options struct {
	initialCapacity int
}

func defaultOptions() *options {
	return &options{
		initialCapacity: 1024,
	}
}

type Option func(*options)

// WithInitialCapacity sets the initial capacity of the key map.
func WithInitialCapacity(n int) Option {
	return func(o *options) {
		o.initialCapacity = n
	}
}
