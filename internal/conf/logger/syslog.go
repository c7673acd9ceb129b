// Copyright 2023-2024 EMQ Technologies Co., Ltd.
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

	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
)

func syslogPriority(level string) syslog.Priority {
	switch level {
	case "debug":
		return syslog.LOG_DEBUG
	case "warn":
		return syslog.LOG_WARNING
	case "error":
		return syslog.LOG_ERR
	default:
		return syslog.LOG_INFO
	}
}

// InitSyslog forwards the task logs to a syslog daemon in addition to the configured output.
func InitSyslog(network, address, level, tag string) error {
	hook, err := logrus_syslog.NewSyslogHook(network, address, syslogPriority(level), tag)
	if err != nil {
		Log.Error("Unable to connect to syslog daemon")
		return err
	}
	Log.Infof("Setting up syslog network %s, address %s, level %s, tag %s", network, address, level, tag)
	Log.AddHook(hook)
	return nil
}
