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
	"time"

	"github.com/lf-edge/streamalign/contract/api"
	"github.com/lf-edge/streamalign/pkg/errorx"
	"github.com/lf-edge/streamalign/pkg/model"
	"github.com/lf-edge/streamalign/pkg/timex"
)

const maxCheckpointsToTrack = 50

type checkpointBarrierCount struct {
	checkpointId int64
	timestamp    int64
	start        time.Time
	barrierCount int
	aborted      bool
}

// markAborted returns true only the first time
func (c *checkpointBarrierCount) markAborted() bool {
	if c.aborted {
		return false
	}
	c.aborted = true
	return true
}

// BarrierTracker serves at least once tasks. It only counts the barriers per checkpoint and
// never blocks a channel, so records after a barrier may be part of the checkpoint.
// Not thread safe!
type BarrierTracker struct {
	checkpointNotifier
	source            ChannelSource
	totalChannels     int
	closedChannels    []bool
	numClosedChannels int
	// ascending by checkpoint id
	pendingCheckpoints        []*checkpointBarrierCount
	latestPendingCheckpointId int64
	cleaned                   bool
	err                       error
}

func NewBarrierTracker(ctx api.StreamContext, source ChannelSource) *BarrierTracker {
	n := source.NumChannels()
	ctx.GetLogger().Infof("create barrier tracker for %d channels", n)
	return &BarrierTracker{
		checkpointNotifier:        checkpointNotifier{ruleId: ctx.GetRuleId(), opId: ctx.GetOpId()},
		source:                    source,
		totalChannels:             n,
		closedChannels:            make([]bool, n),
		latestPendingCheckpointId: NoCheckpoint,
	}
}

func (h *BarrierTracker) Next(ctx api.StreamContext) (*model.Record, bool, error) {
	if h.err != nil {
		return nil, false, h.err
	}
	if h.cleaned {
		return nil, false, errorx.New("barrier tracker is cleaned up")
	}
	for {
		r, ok, err := h.source.Next(ctx)
		if err == nil && ok {
			err = checkChannel(r, h.totalChannels)
		}
		if err == nil && ok {
			switch r.Kind {
			case model.KindData:
				return r, true, nil
			case model.KindBarrier:
				err = h.processBarrier(ctx, r)
			case model.KindCancelMarker:
				err = h.processCancel(ctx, r)
			case model.KindChannelClosed:
				err = h.processClose(ctx, r)
			default:
				err = errorx.NewProtocolErr("received %s from channel %d", r.Kind, r.Channel)
			}
		}
		if err != nil {
			ctx.GetLogger().Errorf("barrier tracker failed: %v", err)
			h.err = err
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
	}
}

func (h *BarrierTracker) processBarrier(ctx api.StreamContext, b *model.Record) error {
	id := b.CheckpointId
	if h.closedChannels[b.Channel] {
		ctx.GetLogger().Warnf("discard barrier %d from closed channel %d", id, b.Channel)
		return nil
	}
	if h.totalChannels == 1 {
		if id > h.latestPendingCheckpointId {
			h.latestPendingCheckpointId = id
			return h.notifyReady(ctx, CheckpointMeta{CheckpointId: id, Timestamp: b.Timestamp})
		}
		return nil
	}
	pos := -1
	for i, c := range h.pendingCheckpoints {
		if c.checkpointId == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		// an older id can never complete any more
		if id <= h.latestPendingCheckpointId {
			ctx.GetLogger().Debugf("discard stale barrier %d", id)
			return nil
		}
		h.latestPendingCheckpointId = id
		h.pendingCheckpoints = append(h.pendingCheckpoints, &checkpointBarrierCount{
			checkpointId: id,
			timestamp:    b.Timestamp,
			start:        timex.GetNow(),
		})
		if len(h.pendingCheckpoints) > maxCheckpointsToTrack {
			h.pendingCheckpoints = h.pendingCheckpoints[1:]
		}
		pos = len(h.pendingCheckpoints) - 1
	}
	c := h.pendingCheckpoints[pos]
	c.barrierCount++
	if c.barrierCount+h.numClosedChannels >= h.totalChannels {
		return h.completeUpTo(ctx, pos)
	}
	return nil
}

// completeUpTo removes the pending checkpoint at pos together with all older ones, which are
// subsumed, and triggers it unless it was aborted.
func (h *BarrierTracker) completeUpTo(ctx api.StreamContext, pos int) error {
	c := h.pendingCheckpoints[pos]
	h.pendingCheckpoints = h.pendingCheckpoints[pos+1:]
	if c.aborted {
		return nil
	}
	return h.notifyReady(ctx, CheckpointMeta{
		CheckpointId:           c.checkpointId,
		Timestamp:              c.timestamp,
		AlignmentDurationNanos: timex.Since(c.start).Nanoseconds(),
	})
}

func (h *BarrierTracker) processCancel(ctx api.StreamContext, m *model.Record) error {
	id := m.CheckpointId
	if h.closedChannels[m.Channel] {
		ctx.GetLogger().Warnf("discard cancel marker %d from closed channel %d", id, m.Channel)
		return nil
	}
	if h.totalChannels == 1 {
		if id > h.latestPendingCheckpointId {
			h.latestPendingCheckpointId = id
			return h.notifyAbort(ctx, id)
		}
		return nil
	}
	// all older checkpoints are aborted by the cancel
	for len(h.pendingCheckpoints) > 0 && h.pendingCheckpoints[0].checkpointId < id {
		c := h.pendingCheckpoints[0]
		h.pendingCheckpoints = h.pendingCheckpoints[1:]
		if c.markAborted() {
			if err := h.notifyAbort(ctx, c.checkpointId); err != nil {
				return err
			}
		}
	}
	if len(h.pendingCheckpoints) > 0 && h.pendingCheckpoints[0].checkpointId == id {
		c := h.pendingCheckpoints[0]
		if c.markAborted() {
			if err := h.notifyAbort(ctx, id); err != nil {
				return err
			}
		}
		// keep counting to forget the checkpoint once every channel reported
		c.barrierCount++
		if c.barrierCount+h.numClosedChannels >= h.totalChannels {
			h.pendingCheckpoints = h.pendingCheckpoints[1:]
		}
		return nil
	}
	if id > h.latestPendingCheckpointId {
		h.latestPendingCheckpointId = id
		marker := &checkpointBarrierCount{checkpointId: id, aborted: true, barrierCount: 1}
		h.pendingCheckpoints = append([]*checkpointBarrierCount{marker}, h.pendingCheckpoints...)
		if len(h.pendingCheckpoints) > maxCheckpointsToTrack {
			h.pendingCheckpoints = h.pendingCheckpoints[:maxCheckpointsToTrack]
		}
		return h.notifyAbort(ctx, id)
	}
	return nil
}

func (h *BarrierTracker) processClose(ctx api.StreamContext, c *model.Record) error {
	if h.closedChannels[c.Channel] {
		return nil
	}
	h.closedChannels[c.Channel] = true
	h.numClosedChannels++
	ctx.GetLogger().Infof("channel %d closed, %d of %d channels closed", c.Channel, h.numClosedChannels, h.totalChannels)
	// the newest checkpoint which is complete now subsumes all older ones
	for i := len(h.pendingCheckpoints) - 1; i >= 0; i-- {
		if h.pendingCheckpoints[i].barrierCount+h.numClosedChannels >= h.totalChannels {
			return h.completeUpTo(ctx, i)
		}
	}
	return nil
}

// IsIdle is always true as nothing is buffered.
func (h *BarrierTracker) IsIdle() bool {
	return true
}

func (h *BarrierTracker) CurrentCheckpointId() int64 {
	return h.latestPendingCheckpointId
}

func (h *BarrierTracker) Cleanup(_ api.StreamContext) error {
	h.cleaned = true
	h.pendingCheckpoints = nil
	return nil
}
