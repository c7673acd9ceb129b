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

package logger

import (
	"io"
	"testing"

	filename "github.com/keepeye/logrus-filename"
	"github.com/sirupsen/logrus"
)

var (
	Log *logrus.Logger
	// LogFile is the rotating file output, set once file logging is enabled.
	LogFile   io.Closer
	IsTesting = testing.Testing()
)

func init() {
	Log = newLogger()
}

// newLogger discards everything until conf.InitLogger picks the outputs. Tests log at debug level.
func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	hook := filename.NewHook()
	hook.Field = "file"
	l.AddHook(hook)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
	if IsTesting {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// TaskEntry is the logger of one task. Every line carries the rule and op of the task.
func TaskEntry(ruleId, opId string) *logrus.Entry {
	return Log.WithFields(logrus.Fields{"rule": ruleId, "op": opId})
}

func CloseLogger() {
	if LogFile != nil {
		_ = LogFile.Close()
		LogFile = nil
	}
}
