// Copyright 2021-2024 EMQ Technologies Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package timex holds the clock used to measure alignments.
package timex

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is the process clock. Under go test it is a mock that only moves through Add.
var Clock = newClock()

func newClock() clock.Clock {
	if testing.Testing() {
		return clock.NewMock()
	}
	return clock.New()
}

func GetNow() time.Time {
	return Clock.Now()
}

func Since(t time.Time) time.Duration {
	return Clock.Since(t)
}

// Add advances the mock clock. It does nothing on the real clock.
func Add(d time.Duration) {
	if m, ok := Clock.(*clock.Mock); ok {
		m.Add(d)
	}
}
