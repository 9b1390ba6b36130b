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
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLookupEnvStringOr(t *testing.T) {
	assert.Equal(t, "fallback", LookupEnvStringOr("NUMADEDUP_FAKE_STRING", "fallback"))
	t.Setenv("NUMADEDUP_FAKE_STRING", "")
	assert.Equal(t, "fallback", LookupEnvStringOr("NUMADEDUP_FAKE_STRING", "fallback"))
	t.Setenv("NUMADEDUP_FAKE_STRING", "set")
	assert.Equal(t, "set", LookupEnvStringOr("NUMADEDUP_FAKE_STRING", "fallback"))
}

func TestLookupEnvBoolOr(t *testing.T) {
	assert.False(t, LookupEnvBoolOr("NUMADEDUP_FAKE_BOOL", false))
	t.Setenv("NUMADEDUP_FAKE_BOOL", "true")
	assert.True(t, LookupEnvBoolOr("NUMADEDUP_FAKE_BOOL", false))
	t.Setenv("NUMADEDUP_FAKE_BOOL", "maybe")
	assert.Panics(t, func() { LookupEnvBoolOr("NUMADEDUP_FAKE_BOOL", false) })
}

func TestLookupEnvDurationOr(t *testing.T) {
	assert.Equal(t, time.Second, LookupEnvDurationOr("NUMADEDUP_FAKE_DURATION", time.Second))
	t.Setenv("NUMADEDUP_FAKE_DURATION", "30s")
	assert.Equal(t, 30*time.Second, LookupEnvDurationOr("NUMADEDUP_FAKE_DURATION", time.Second))
}
