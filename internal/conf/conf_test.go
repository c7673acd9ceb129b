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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lf-edge/streamalign/internal/pkg/def"
)

const testYaml = `
basic:
  debug: true
  consoleLog: false
  prometheus: true
  prometheusPort: 9090
checkpoint:
  qos: atLeastOnce
spill:
  type: pebble
  path: /tmp/spill
  compression: zstd
  readBufferSize: 1024
openTelemetry:
  enableRemoteCollector: false
`

func TestLoadConfig(t *testing.T) {
	c := DefaultConf()
	err := loadConfig([]byte(testYaml), "STREAMALIGN", nil, c)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.True(t, c.Basic.Debug)
	assert.False(t, c.Basic.ConsoleLog)
	assert.Equal(t, 9090, c.Basic.PrometheusPort)
	assert.Equal(t, def.AtLeastOnce, c.Checkpoint.GetQos())
	assert.Equal(t, SpillConf{
		Type:            SpillTypePebble,
		Path:            "/tmp/spill",
		Codec:           "msgpack",
		Compression:     "zstd",
		ReadBufferSize:  1024,
		WriteBufferSize: defaultWriteBufferSize,
	}, c.Spill)
	assert.Equal(t, "streamalign", c.OpenTelemetry.ServiceName)
}

func TestEnvOverride(t *testing.T) {
	c := DefaultConf()
	env := []string{
		"STREAMALIGN__SPILL__TYPE=memory",
		"STREAMALIGN__SPILL__WRITEBUFFERSIZE=2048",
		"STREAMALIGN__BASIC__DEBUG=false",
		"OTHER__SPILL__TYPE=file",
	}
	err := loadConfig([]byte(testYaml), "STREAMALIGN", env, c)
	require.NoError(t, err)
	assert.Equal(t, SpillTypeMemory, c.Spill.Type)
	assert.Equal(t, 2048, c.Spill.WriteBufferSize)
	assert.False(t, c.Basic.Debug)
}

func TestEnvOverrideNotSection(t *testing.T) {
	c := DefaultConf()
	err := loadConfig([]byte(testYaml), "STREAMALIGN", []string{"STREAMALIGN__SPILL__TYPE__X=1"}, c)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := DefaultConf()
	c.Spill.Type = "tape"
	c.Spill.ReadBufferSize = -1
	c.Spill.Compression = "none"
	c.Checkpoint.Qos = "twice"
	c.Basic.Prometheus = true
	c.Basic.PrometheusPort = 0
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalidSpillType")
	assert.Contains(t, err.Error(), "readBufferSize")
	assert.Contains(t, err.Error(), "invalidQos")
	assert.Contains(t, err.Error(), "invalidPrometheusPort")
	// invalid values are replaced
	assert.Equal(t, SpillTypeFile, c.Spill.Type)
	assert.Equal(t, defaultReadBufferSize, c.Spill.ReadBufferSize)
	assert.Equal(t, "", c.Spill.Compression)
	assert.Equal(t, def.ExactlyOnce, c.Checkpoint.GetQos())
	assert.Equal(t, 20499, c.Basic.PrometheusPort)
	assert.NoError(t, c.Validate())
}

func TestInitConf(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ConfFileName)
	require.NoError(t, os.WriteFile(p, []byte(testYaml), 0o644))
	require.NoError(t, InitConf(p))
	assert.Equal(t, SpillTypePebble, Config.Spill.Type)
	assert.Equal(t, "STREAMALIGN", getPrefix(p))

	require.Error(t, InitConf(filepath.Join(dir, "missing.yaml")))

	require.NoError(t, InitConf(""))
	assert.Equal(t, SpillTypeFile, Config.Spill.Type)
}
