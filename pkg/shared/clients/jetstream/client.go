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

// Package jetstream connects to the NATS server backing the jetstream state
// and checkpoint buckets.
package jetstream

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/numaproj/numadedup/pkg/shared/logging"
)

// Connect returns a connection to url that reconnects on its own.
func Connect(ctx context.Context, url string, opts ...Option) (*nats.Conn, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	log := logging.FromContext(ctx).With("url", url)
	natsOpts := []nats.Option{
		nats.Name(o.name),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Errorw("Nats: connection lost", "error", err)
			} else {
				log.Info("Nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(nnc *nats.Conn) {
			log.Info("Nats: reconnected to nats server")
		}),
	}
	if o.reconnect {
		// Retry forever
		natsOpts = append(natsOpts, nats.MaxReconnects(-1), nats.ReconnectWait(o.reconnectWait))
	} else {
		natsOpts = append(natsOpts, nats.NoReconnect())
	}
	if o.user != "" {
		natsOpts = append(natsOpts, nats.UserInfo(o.user, o.password))
	}
	nc, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats url=%s: %w", url, err)
	}
	log.Info("Nats: connected to nats server")
	return nc, nil
}
