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
package util

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSaramaConfig(t *testing.T) {
	t.Run("yaml overrides", func(t *testing.T) {
		conf, err := NewSaramaConfig(`
admin:
  retry:
    max: 7
producer:
  maxMessageBytes: 2048
consumer:
  fetch:
    min: 16
`, SASL{})
		require.NoError(t, err)
		assert.Equal(t, 2048, conf.Producer.MaxMessageBytes)
		assert.Equal(t, 7, conf.Admin.Retry.Max)
		assert.Equal(t, int32(16), conf.Consumer.Fetch.Min)
		assert.Equal(t, "numadedup", conf.ClientID)
		assert.False(t, conf.Net.SASL.Enable)
	})

	t.Run("empty yaml keeps defaults", func(t *testing.T) {
		conf, err := NewSaramaConfig("", SASL{})
		require.NoError(t, err)
		assert.Equal(t, sarama.NewConfig().Producer.MaxMessageBytes, conf.Producer.MaxMessageBytes)
	})

	t.Run("scram", func(t *testing.T) {
		conf, err := NewSaramaConfig("", SASL{Mechanism: "SCRAM-SHA-512", User: "u", Password: "p"})
		require.NoError(t, err)
		assert.True(t, conf.Net.SASL.Enable)
		assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA512), conf.Net.SASL.Mechanism)
	})

	t.Run("not yaml", func(t *testing.T) {
		_, err := NewSaramaConfig("welcome", SASL{})
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := NewSaramaConfig("net:\n  maxOpenRequests: 0\n", SASL{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed validating sarama config")
	})
}
