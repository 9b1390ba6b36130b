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

package jetstream

// options for the JetStream KV store.
type options struct {
	// createBucket creates the bucket if it does not exist yet.
	createBucket bool
	// history is the number of historical values kept per key when the bucket is created.
	history uint8
	// ownsConn closes the nats connection with the store.
	ownsConn bool
}

func defaultOptions() *options {
	return &options{
		createBucket: true,
		history:      1,
	}
}

// Option is a function on the options of the KV store
type Option func(*options)

// WithCreateBucket sets whether a missing bucket is created
func WithCreateBucket(create bool) Option {
	return func(o *options) {
		o.createBucket = create
	}
}

// WithHistory sets the per key history of a created bucket
func WithHistory(h uint8) Option {
	return func(o *options) {
		o.history = h
	}
}

// WithOwnedConn makes Close also close the nats connection
func WithOwnedConn() Option {
	return func(o *options) {
		o.ownsConn = true
	}
}
