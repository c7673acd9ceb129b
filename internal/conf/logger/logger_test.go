// Copyright 2024 EMQ Technologies Co., Ltd.
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

//go:build !windows

package logger

import (
	"log/syslog"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestInitLogger(t *testing.T) {
	assert.True(t, IsTesting)
	assert.NotNil(t, Log)
	assert.Equal(t, logrus.DebugLevel, Log.GetLevel())
}

func TestTaskEntry(t *testing.T) {
	e := TaskEntry("rule1", "op1")
	assert.Equal(t, "rule1", e.Data["rule"])
	assert.Equal(t, "op1", e.Data["op"])
	assert.Same(t, Log, e.Logger)
}

func TestSyslogPriority(t *testing.T) {
	assert.Equal(t, syslog.LOG_DEBUG, syslogPriority("debug"))
	assert.Equal(t, syslog.LOG_WARNING, syslogPriority("warn"))
	assert.Equal(t, syslog.LOG_ERR, syslogPriority("error"))
	assert.Equal(t, syslog.LOG_INFO, syslogPriority("info"))
	assert.Equal(t, syslog.LOG_INFO, syslogPriority("unknown"))
}
