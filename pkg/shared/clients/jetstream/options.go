package jetstream

import (
	"time"
)

type options struct {
	name          string
	reconnect     bool
	reconnectWait time.Duration
	user          string
	password      string
}

func defaultOptions() *options {
	return &options{
		name:          "numadedup",
		reconnect:     true,
		reconnectWait: 2 * time.Second,
	}
}

type Option func(*options)

// NoReconnect disables auto reconnect.
func NoReconnect() Option {
	return func(o *options) {
		o.reconnect = false
	}
}

// WithReconnectWait sets the wait between reconnect attempts.
func WithReconnectWait(d time.Duration) Option {
	return func(o *options) {
		o.reconnectWait = d
	}
}

// WithClientName sets the connection name reported to the server.
func WithClientName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithUserInfo sets the user and password to authenticate with.
func WithUserInfo(user, password string) Option {
	return func(o *options) {
		o.user = user
		o.password = password
	}
}
