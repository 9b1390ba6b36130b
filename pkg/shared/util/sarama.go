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
	"bytes"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/spf13/viper"
)

// SASL holds the optional SCRAM credentials of a kafka client.
type SASL struct {
	Mechanism string
	User      string
	Password  string
}

// NewSaramaConfig builds a sarama config from a YAML document, e.g.
//
//	producer:
//	  maxMessageBytes: 600
//
// and enables SCRAM authentication when auth names a mechanism.
func NewSaramaConfig(yaml string, auth SASL) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "numadedup"
	if yaml != "" {
		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewBufferString(yaml)); err != nil {
			return nil, fmt.Errorf("failed to read sarama config, %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unable to decode into struct, %w", err)
		}
	}
	if auth.Mechanism != "" {
		if err := SetSCRAMConfig(cfg, auth.Mechanism, auth.User, auth.Password); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed validating sarama config, %w", err)
	}
	return cfg, nil
}
