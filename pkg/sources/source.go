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

// Package sources defines where operator input comes from.
package sources

import (
	"context"

	"github.com/numaproj/numadedup/pkg/dedup"
)

// Source produces operator elements.
type Source interface {
	// GetName returns the name of the source.
	GetName() string
	// Start sends elements to out until the input ends or ctx is done. It does
	// not close out.
	Start(ctx context.Context, out chan<- dedup.Element) error
	// Close releases the resources of the source.
	Close() error
}
