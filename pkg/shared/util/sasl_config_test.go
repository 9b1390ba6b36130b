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

func TestSetSCRAMConfig(t *testing.T) {
	t.Run("sha512", func(t *testing.T) {
		config := sarama.NewConfig()
		require.NoError(t, SetSCRAMConfig(config, "scram-sha-512", "user", "pass"))
		assert.True(t, config.Net.SASL.Enable)
		assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA512), config.Net.SASL.Mechanism)
		assert.Equal(t, "user", config.Net.SASL.User)
		client := config.Net.SASL.SCRAMClientGeneratorFunc()
		require.NoError(t, client.Begin("user", "pass", ""))
		first, err := client.Step("")
		require.NoError(t, err)
		assert.Contains(t, first, "n=user")
		assert.False(t, client.Done())
		assert.NoError(t, config.Validate())
	})

	t.Run("sha256", func(t *testing.T) {
		config := sarama.NewConfig()
		require.NoError(t, SetSCRAMConfig(config, "SCRAM-SHA-256", "user", "pass"))
		assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA256), config.Net.SASL.Mechanism)
	})

	t.Run("unsupported", func(t *testing.T) {
		assert.Error(t, SetSCRAMConfig(sarama.NewConfig(), "PLAIN", "user", "pass"))
		assert.Error(t, SetSCRAMConfig(sarama.NewConfig(), "SCRAM-SHA-256", "", "pass"))
	})
}
