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

package context

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithMeta(t *testing.T) {
	ctx := Background().WithMeta("rule1", "op1")
	assert.Equal(t, "rule1", ctx.GetRuleId())
	assert.Equal(t, "op1", ctx.GetOpId())
	assert.Equal(t, 0, ctx.GetInstanceId())

	entry, ok := ctx.GetLogger().(*logrus.Entry)
	require.True(t, ok)
	assert.Equal(t, "rule1", entry.Data["rule"])
	assert.Equal(t, "op1", entry.Data["op"])

	ictx := ctx.WithInstance(2)
	assert.Equal(t, 2, ictx.GetInstanceId())
	assert.Equal(t, "op1", ictx.GetOpId())
	// the instance context keeps the logger fields
	entry, ok = ictx.GetLogger().(*logrus.Entry)
	require.True(t, ok)
	assert.Equal(t, "rule1", entry.Data["rule"])
}

func TestWithCancel(t *testing.T) {
	ctx, cancel := Background().WithMeta("rule1", "op1").WithCancel()
	assert.NoError(t, ctx.Err())
	cancel()
	<-ctx.Done()
	assert.Error(t, ctx.Err())
	assert.Equal(t, "op1", ctx.GetOpId())
}

func TestDefaultLogger(t *testing.T) {
	entry, ok := Background().GetLogger().(*logrus.Entry)
	require.True(t, ok)
	assert.Equal(t, "default", entry.Data["caller"])
}
