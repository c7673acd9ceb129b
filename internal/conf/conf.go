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

package conf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	rotatelogs "github.com/yisaer/file-rotatelogs"

	"github.com/lf-edge/streamalign/internal/conf/logger"
	"github.com/lf-edge/streamalign/internal/pkg/def"
)

const (
	ConfFileName = "streamalign.yaml"
	logFileName  = "streamalign.log"

	SpillTypeFile   = "file"
	SpillTypePebble = "pebble"
	SpillTypeMemory = "memory"

	defaultReadBufferSize  = 32 * 1024
	defaultWriteBufferSize = 32 * 1024
)

var (
	Config    *AlignConf
	Log       *logrus.Logger
	IsTesting bool
)

// SpillConf configures where records overflowed during an alignment are persisted.
type SpillConf struct {
	Type            string `json:"type" yaml:"type"`
	Path            string `json:"path" yaml:"path"`
	Codec           string `json:"codec" yaml:"codec"`
	Compression     string `json:"compression" yaml:"compression"`
	ReadBufferSize  int    `json:"readBufferSize" yaml:"readBufferSize"`
	WriteBufferSize int    `json:"writeBufferSize" yaml:"writeBufferSize"`
}

func (sc *SpillConf) Validate() error {
	var errs error
	switch sc.Type {
	case SpillTypeFile, SpillTypePebble, SpillTypeMemory:
	case "":
		sc.Type = SpillTypeFile
	default:
		Log.Warnf("unknown spill type %s, set to %s", sc.Type, SpillTypeFile)
		errs = errors.Join(errs, fmt.Errorf("invalidSpillType:spill type must be one of file, pebble or memory but got %s", sc.Type))
		sc.Type = SpillTypeFile
	}
	if sc.Path == "" {
		sc.Path = filepath.Join(os.TempDir(), "streamalign", "spill")
	}
	if sc.Codec == "" {
		sc.Codec = "msgpack"
	}
	if sc.Compression == "none" {
		sc.Compression = ""
	}
	if sc.ReadBufferSize <= 0 {
		sc.ReadBufferSize = defaultReadBufferSize
		Log.Warnf("readBufferSize is less than or equal to 0, set to %d", defaultReadBufferSize)
		errs = errors.Join(errs, errors.New("readBufferSize:readBufferSize must be positive"))
	}
	if sc.WriteBufferSize <= 0 {
		sc.WriteBufferSize = defaultWriteBufferSize
		Log.Warnf("writeBufferSize is less than or equal to 0, set to %d", defaultWriteBufferSize)
		errs = errors.Join(errs, errors.New("writeBufferSize:writeBufferSize must be positive"))
	}
	return errs
}

type CheckpointConf struct {
	Qos string `json:"qos" yaml:"qos"`
}

func (cc *CheckpointConf) Validate() error {
	if _, err := def.ParseQos(cc.Qos); err != nil {
		Log.Warnf("invalid qos %s, set to %s", cc.Qos, def.ExactlyOnce)
		cc.Qos = def.ExactlyOnce.String()
		return fmt.Errorf("invalidQos:%v", err)
	}
	return nil
}

func (cc *CheckpointConf) GetQos() def.Qos {
	q, err := def.ParseQos(cc.Qos)
	if err != nil {
		return def.ExactlyOnce
	}
	return q
}

type SyslogConf struct {
	Enable  bool   `yaml:"enable"`
	Network string `yaml:"network"`
	Address string `yaml:"address"`
	Tag     string `yaml:"tag"`
	Level   string `yaml:"level"`
}

type AlignConf struct {
	Basic struct {
		Debug          bool        `yaml:"debug"`
		ConsoleLog     bool        `yaml:"consoleLog"`
		FileLog        bool        `yaml:"fileLog"`
		LogPath        string      `yaml:"logPath"`
		RotateTime     int         `yaml:"rotateTime"`
		MaxAge         int         `yaml:"maxAge"`
		Syslog         *SyslogConf `yaml:"syslog"`
		Prometheus     bool        `yaml:"prometheus"`
		PrometheusPort int         `yaml:"prometheusPort"`
	}
	Checkpoint    CheckpointConf
	Spill         SpillConf
	OpenTelemetry struct {
		EnableRemoteCollector bool   `yaml:"enableRemoteCollector"`
		ServiceName           string `yaml:"serviceName"`
		RemoteEndpoint        string `yaml:"remoteEndpoint"`
		LocalTraceCapacity    int    `yaml:"localTraceCapacity"`
	}
}

func (c *AlignConf) Validate() error {
	var errs error
	if err := c.Checkpoint.Validate(); err != nil {
		errs = errors.Join(errs, err)
	}
	if err := c.Spill.Validate(); err != nil {
		errs = errors.Join(errs, err)
	}
	if c.Basic.Prometheus && (c.Basic.PrometheusPort <= 0 || c.Basic.PrometheusPort > 65535) {
		Log.Warnf("invalid basic.prometheusPort configuration %d, set to 20499", c.Basic.PrometheusPort)
		errs = errors.Join(errs, errors.New("invalidPrometheusPort:prometheusPort must between 0 and 65535"))
		c.Basic.PrometheusPort = 20499
	}
	if c.OpenTelemetry.ServiceName == "" {
		c.OpenTelemetry.ServiceName = "streamalign"
	}
	if c.OpenTelemetry.LocalTraceCapacity <= 0 {
		c.OpenTelemetry.LocalTraceCapacity = 2048
	}
	return errs
}

func DefaultConf() *AlignConf {
	c := &AlignConf{}
	c.Basic.ConsoleLog = true
	c.Basic.RotateTime = 24
	c.Basic.MaxAge = 72
	c.Basic.PrometheusPort = 20499
	c.Checkpoint.Qos = def.ExactlyOnce.String()
	c.Spill = SpillConf{
		Type:            SpillTypeFile,
		Codec:           "msgpack",
		ReadBufferSize:  defaultReadBufferSize,
		WriteBufferSize: defaultWriteBufferSize,
	}
	return c
}

// InitConf loads the yaml file at p on top of the defaults. An empty path keeps the defaults.
// Invalid values are replaced and only reported in the log.
func InitConf(p string) error {
	kc := DefaultConf()
	if p != "" {
		if err := LoadConfigFromPath(p, kc); err != nil {
			return err
		}
	}
	if err := kc.Validate(); err != nil {
		Log.Warnf("invalid configuration fixed with defaults: %v", err)
	}
	Config = kc
	InitLogger()
	return nil
}

// InitLogger applies the basic section of Config to the process logger.
func InitLogger() {
	if Config == nil {
		return
	}
	if Config.Basic.Debug {
		Log.SetLevel(logrus.DebugLevel)
	} else if !IsTesting {
		Log.SetLevel(logrus.InfoLevel)
	}
	if Config.Basic.FileLog {
		dir := Config.Basic.LogPath
		if dir == "" {
			dir = "log"
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			Log.Errorf("Failed to create log dir %s: %v", dir, err)
			return
		}
		file := filepath.Join(dir, logFileName)
		logWriter, err := rotatelogs.New(
			file+".%Y-%m-%d_%H-%M-%S",
			rotatelogs.WithLinkName(file),
			rotatelogs.WithRotationTime(time.Hour*time.Duration(Config.Basic.RotateTime)),
			rotatelogs.WithMaxAge(time.Hour*time.Duration(Config.Basic.MaxAge)),
		)
		if err != nil {
			fmt.Println("Failed to init log file settings..." + err.Error())
			Log.Infof("Failed to log to file, using default stderr.")
		} else {
			logger.LogFile = logWriter
			if Config.Basic.ConsoleLog {
				Log.SetOutput(io.MultiWriter(os.Stdout, logWriter))
			} else {
				Log.SetOutput(logWriter)
			}
		}
	} else if Config.Basic.ConsoleLog {
		Log.SetOutput(os.Stdout)
	}
	if s := Config.Basic.Syslog; s != nil && s.Enable {
		if err := logger.InitSyslog(s.Network, s.Address, s.Level, s.Tag); err != nil {
			Log.Warnf("syslog is not enabled: %v", err)
		}
	}
}

func init() {
	Log = logger.Log
	IsTesting = logger.IsTesting
}
