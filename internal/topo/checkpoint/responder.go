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

package checkpoint

import (
	"github.com/lf-edge/streamalign/contract/api"
)

// SignalNotifier forwards the checkpoint outcomes of a task to a coordinator as signals.
type SignalNotifier struct {
	name      string
	responder chan<- *Signal
}

func NewSignalNotifier(name string, responder chan<- *Signal) *SignalNotifier {
	return &SignalNotifier{
		name:      name,
		responder: responder,
	}
}

func (n *SignalNotifier) OnCheckpointReady(ctx api.StreamContext, meta CheckpointMeta) error {
	ctx.GetLogger().Debugf("complete checkpoint %d on task %s", meta.CheckpointId, n.name)
	return n.send(ctx, ACK, meta.CheckpointId)
}

func (n *SignalNotifier) OnCheckpointAborted(ctx api.StreamContext, checkpointId int64) error {
	ctx.GetLogger().Debugf("decline checkpoint %d on task %s", checkpointId, n.name)
	return n.send(ctx, DEC, checkpointId)
}

func (n *SignalNotifier) send(ctx api.StreamContext, m Message, checkpointId int64) error {
	signal := &Signal{
		Message: m,
		Barrier: Barrier{CheckpointId: checkpointId, OpId: n.name},
	}
	select {
	case n.responder <- signal:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
