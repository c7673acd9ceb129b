// Copyright 2022-2024 EMQ Technologies Co., Ltd.
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
	"github.com/lf-edge/streamalign/contract/api"
	"github.com/lf-edge/streamalign/internal/conf/logger"
	"github.com/lf-edge/streamalign/internal/topo/context"
)

// NewMockContext creates a task context whose log lines are marked as test output.
func NewMockContext(ruleId string, opId string) api.StreamContext {
	contextLogger := logger.Log.WithField("test", true)
	ctx := context.WithValue(context.Background(), context.LoggerKey, contextLogger)
	return ctx.WithMeta(ruleId, opId)
}
