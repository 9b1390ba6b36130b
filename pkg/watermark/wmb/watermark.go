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

package wmb

import (
	"time"

	"go.uber.org/atomic"
)

// Watermark is a monotonic lower bound on the event time of future rows.
type Watermark time.Time

// InitialWatermark is the watermark before any advance has been observed.
var InitialWatermark = Watermark(time.UnixMilli(-1))

func (w Watermark) String() string {
	var location, _ = time.LoadLocation("UTC")
	var t = time.Time(w).In(location)
	return t.Format(time.RFC3339Nano)
}

func (w Watermark) UnixMilli() int64 {
	return time.Time(w).UnixMilli()
}

func (w Watermark) AfterWatermark(compare Watermark) bool {
	return time.Time(w).After(time.Time(compare))
}

func (w Watermark) BeforeWatermark(compare Watermark) bool {
	return time.Time(w).Before(time.Time(compare))
}

// IsLate returns true if the event time eventMillis is already behind the watermark.
func (w Watermark) IsLate(eventMillis int64) bool {
	return eventMillis < w.UnixMilli()
}

// Tracker keeps the current watermark of a partition. Advances that would move
// the watermark backwards are ignored. Reads are safe from other goroutines.
type Tracker struct {
	current *atomic.Int64
}

// NewTracker returns a Tracker at InitialWatermark.
func NewTracker() *Tracker {
	return &Tracker{current: atomic.NewInt64(InitialWatermark.UnixMilli())}
}

// Advance moves the watermark to w if w is ahead of the current one, and reports whether it moved.
func (t *Tracker) Advance(w Watermark) bool {
	next := w.UnixMilli()
	for {
		cur := t.current.Load()
		if next <= cur {
			return false
		}
		if t.current.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Current returns the current watermark.
func (t *Tracker) Current() Watermark {
	return Watermark(time.UnixMilli(t.current.Load()))
}
