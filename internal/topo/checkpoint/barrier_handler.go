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
	"github.com/lf-edge/streamalign/internal/conf"
	"github.com/lf-edge/streamalign/internal/pkg/def"
	"github.com/lf-edge/streamalign/internal/topo/spill"
	"github.com/lf-edge/streamalign/metrics"
	"github.com/lf-edge/streamalign/pkg/errorx"
	"github.com/lf-edge/streamalign/pkg/model"
)

// BarrierHandler sits between the channel source and the task. It consumes the control
// records and returns the data records the task must process.
type BarrierHandler interface {
	// Next returns the next data record. It returns false at the end of the input, once
	// all buffered records are delivered too.
	Next(ctx api.StreamContext) (*model.Record, bool, error)
	// RegisterNotifier binds the notifier. It panics if called twice.
	RegisterNotifier(n Notifier)
	// IsIdle reports whether no buffered record waits for replay.
	IsIdle() bool
	CurrentCheckpointId() int64
	// Cleanup releases all resources. Calling it again is a no-op.
	Cleanup(ctx api.StreamContext) error
}

// NewBarrierHandler creates the handler of a task for the qos. Only exactly once needs the
// spill store configured by c.
func NewBarrierHandler(ctx api.StreamContext, qos def.Qos, source ChannelSource, c *conf.SpillConf) (BarrierHandler, error) {
	switch qos {
	case def.ExactlyOnce:
		store, err := spill.NewStore(ctx, c)
		if err != nil {
			return nil, err
		}
		return NewBarrierAligner(ctx, source, store), nil
	case def.AtLeastOnce:
		return NewBarrierTracker(ctx, source), nil
	default:
		return NewPassThroughHandler(ctx, source), nil
	}
}

// checkpointNotifier is shared by the handlers to reach the registered notifier and
// to count the outcomes.
type checkpointNotifier struct {
	notifier Notifier
	ruleId   string
	opId     string
}

func (n *checkpointNotifier) RegisterNotifier(notifier Notifier) {
	if n.notifier != nil {
		panic("checkpoint notifier is already registered")
	}
	n.notifier = notifier
}

func (n *checkpointNotifier) notifyReady(ctx api.StreamContext, meta CheckpointMeta) error {
	ctx.GetLogger().Debugf("checkpoint %d is ready with %d bytes buffered in %dns", meta.CheckpointId, meta.BytesBufferedInAlignment, meta.AlignmentDurationNanos)
	metrics.ObserveCheckpointReady(n.ruleId, n.opId, durationOf(meta.AlignmentDurationNanos), meta.BytesBufferedInAlignment)
	if n.notifier == nil {
		return errorx.NewWithCode(errorx.NotifierErr, "no checkpoint notifier registered")
	}
	if err := n.notifier.OnCheckpointReady(ctx, meta); err != nil {
		return errorx.WrapNotifierErr(err, "notify checkpoint %d ready", meta.CheckpointId)
	}
	return nil
}

func (n *checkpointNotifier) notifyAbort(ctx api.StreamContext, checkpointId int64) error {
	ctx.GetLogger().Debugf("checkpoint %d is aborted", checkpointId)
	metrics.IncCheckpointAborted(n.ruleId, n.opId)
	if n.notifier == nil {
		return errorx.NewWithCode(errorx.NotifierErr, "no checkpoint notifier registered")
	}
	if err := n.notifier.OnCheckpointAborted(ctx, checkpointId); err != nil {
		return errorx.WrapNotifierErr(err, "notify checkpoint %d aborted", checkpointId)
	}
	return nil
}

func checkChannel(r *model.Record, total int) error {
	if r == nil {
		return errorx.NewProtocolErr("received nil record")
	}
	if r.Channel < 0 || r.Channel >= total {
		return errorx.NewProtocolErr("received %s from channel %d out of range [0, %d)", r.Kind, r.Channel, total)
	}
	return nil
}

// PassThroughHandler serves at most once tasks. Control records are dropped.
type PassThroughHandler struct {
	checkpointNotifier
	source  ChannelSource
	cleaned bool
}

func NewPassThroughHandler(ctx api.StreamContext, source ChannelSource) *PassThroughHandler {
	return &PassThroughHandler{
		checkpointNotifier: checkpointNotifier{ruleId: ctx.GetRuleId(), opId: ctx.GetOpId()},
		source:             source,
	}
}

func (h *PassThroughHandler) Next(ctx api.StreamContext) (*model.Record, bool, error) {
	if h.cleaned {
		return nil, false, errorx.New("barrier handler is cleaned up")
	}
	for {
		r, ok, err := h.source.Next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		if err := checkChannel(r, h.source.NumChannels()); err != nil {
			return nil, false, err
		}
		if r.IsData() {
			return r, true, nil
		}
		ctx.GetLogger().Debugf("drop %s for at most once", r)
	}
}

func (h *PassThroughHandler) IsIdle() bool {
	return true
}

func (h *PassThroughHandler) CurrentCheckpointId() int64 {
	return NoCheckpoint
}

func (h *PassThroughHandler) Cleanup(_ api.StreamContext) error {
	h.cleaned = true
	return nil
}
