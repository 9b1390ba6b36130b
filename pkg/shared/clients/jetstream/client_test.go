package jetstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	natstest "github.com/numaproj/numadedup/pkg/shared/clients/nats/test"
)

func TestConnect(t *testing.T) {
	s := natstest.RunJetStreamServer(t)

	nc, err := Connect(context.Background(), s.ClientURL(), WithClientName("test"), NoReconnect())
	require.NoError(t, err)
	defer nc.Close()
	assert.True(t, nc.IsConnected())
	_, err = nc.JetStream()
	assert.NoError(t, err)
}

func TestConnectFails(t *testing.T) {
	_, err := Connect(context.Background(), "nats://127.0.0.1:1", NoReconnect())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to nats")
}
