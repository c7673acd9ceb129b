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
	"errors"
	"time"

	"github.com/golang-collections/collections/queue"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lf-edge/streamalign/contract/api"
	"github.com/lf-edge/streamalign/internal/topo/spill"
	"github.com/lf-edge/streamalign/metrics"
	"github.com/lf-edge/streamalign/pkg/errorx"
	"github.com/lf-edge/streamalign/pkg/model"
	"github.com/lf-edge/streamalign/pkg/timex"
	"github.com/lf-edge/streamalign/pkg/tracer"
)

// BarrierAligner serves exactly once tasks. Once a channel delivers the barrier of a
// checkpoint, its data is spilled until all live channels delivered the same barrier.
// The spilled data is then replayed before any new record is read.
// Not thread safe!
type BarrierAligner struct {
	checkpointNotifier
	source        ChannelSource
	store         spill.Store
	totalChannels int

	blockedChannels     []bool
	closedChannels      []bool
	numBarriersReceived int
	numClosedChannels   int
	currentCheckpointId int64
	// timestamp of the first barrier of the current alignment
	currentTimestamp        int64
	startOfAlignment        time.Time
	latestAlignmentDuration time.Duration

	currentReplay spill.Segment
	// next record of currentReplay, read ahead so that the segment is disposed with its last record
	replayNext  *model.Record
	replayQueue *queue.Queue

	span       trace.Span
	endOfInput bool
	cleaned    bool
	err        error
}

func NewBarrierAligner(ctx api.StreamContext, source ChannelSource, store spill.Store) *BarrierAligner {
	n := source.NumChannels()
	ctx.GetLogger().Infof("create barrier aligner for %d channels", n)
	return &BarrierAligner{
		checkpointNotifier:  checkpointNotifier{ruleId: ctx.GetRuleId(), opId: ctx.GetOpId()},
		source:              source,
		store:               store,
		totalChannels:       n,
		blockedChannels:     make([]bool, n),
		closedChannels:      make([]bool, n),
		currentCheckpointId: NoCheckpoint,
		replayQueue:         queue.New(),
	}
}

func (h *BarrierAligner) Next(ctx api.StreamContext) (*model.Record, bool, error) {
	if h.err != nil {
		return nil, false, h.err
	}
	if h.cleaned {
		return nil, false, errorx.New("barrier aligner is cleaned up")
	}
	r, ok, err := h.next(ctx)
	if err != nil {
		ctx.GetLogger().Errorf("barrier aligner failed: %v", err)
		h.err = err
	}
	return r, ok, err
}

func (h *BarrierAligner) next(ctx api.StreamContext) (*model.Record, bool, error) {
	for {
		if h.currentReplay != nil {
			r := h.replayNext
			next, ok, err := h.currentReplay.Next()
			if err != nil {
				return nil, false, err
			}
			if ok {
				h.replayNext = next
				return r, true, nil
			}
			if err := h.finishReplay(ctx); err != nil {
				return nil, false, err
			}
			return r, true, nil
		}
		if h.replayQueue.Len() > 0 {
			if err := h.startReplay(ctx); err != nil {
				return nil, false, err
			}
			continue
		}
		if h.endOfInput {
			return nil, false, nil
		}
		r, ok, err := h.source.Next(ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			h.endOfInput = true
			if err := h.onEndOfInput(ctx); err != nil {
				return nil, false, err
			}
			continue
		}
		if err := checkChannel(r, h.totalChannels); err != nil {
			return nil, false, err
		}
		switch r.Kind {
		case model.KindData:
			if h.blockedChannels[r.Channel] {
				if err := h.store.Append(r); err != nil {
					return nil, false, err
				}
				continue
			}
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
		if err != nil {
			return nil, false, err
		}
	}
}

func (h *BarrierAligner) processBarrier(ctx api.StreamContext, b *model.Record) error {
	logger := ctx.GetLogger()
	id := b.CheckpointId
	if h.closedChannels[b.Channel] {
		logger.Warnf("discard barrier %d from closed channel %d", id, b.Channel)
		return nil
	}
	if h.totalChannels == 1 {
		if id > h.currentCheckpointId {
			h.currentCheckpointId = id
			return h.notifyReady(ctx, CheckpointMeta{CheckpointId: id, Timestamp: b.Timestamp})
		}
		return nil
	}
	if h.numBarriersReceived > 0 {
		switch {
		case id == h.currentCheckpointId:
			if err := h.onBarrier(ctx, b.Channel); err != nil {
				return err
			}
		case id > h.currentCheckpointId:
			logger.Warnf("received checkpoint barrier for checkpoint %d before completing current checkpoint %d, skipping current checkpoint", id, h.currentCheckpointId)
			aborted := h.currentCheckpointId
			if err := h.releaseBlocksAndResetBarriers(ctx); err != nil {
				return err
			}
			h.endSpan(false)
			if err := h.notifyAbort(ctx, aborted); err != nil {
				return err
			}
			h.beginNewAlignment(ctx, b)
		default:
			logger.Debugf("discard stale barrier %d, current checkpoint is %d", id, h.currentCheckpointId)
			return nil
		}
	} else if id > h.currentCheckpointId {
		h.beginNewAlignment(ctx, b)
	} else {
		logger.Debugf("discard stale barrier %d, current checkpoint is %d", id, h.currentCheckpointId)
		return nil
	}
	if h.numBarriersReceived+h.numClosedChannels == h.totalChannels {
		return h.completeAlignment(ctx)
	}
	return nil
}

func (h *BarrierAligner) processCancel(ctx api.StreamContext, c *model.Record) error {
	logger := ctx.GetLogger()
	id := c.CheckpointId
	if h.closedChannels[c.Channel] {
		logger.Warnf("discard cancel marker %d from closed channel %d", id, c.Channel)
		return nil
	}
	if h.totalChannels == 1 {
		if id > h.currentCheckpointId {
			h.currentCheckpointId = id
			return h.notifyAbort(ctx, id)
		}
		return nil
	}
	if h.numBarriersReceived > 0 {
		switch {
		case id == h.currentCheckpointId:
			logger.Debugf("checkpoint %d canceled, aborting alignment", id)
			if err := h.releaseBlocksAndResetBarriers(ctx); err != nil {
				return err
			}
			h.endSpan(false)
			return h.notifyAbort(ctx, id)
		case id > h.currentCheckpointId:
			logger.Warnf("checkpoint %d canceled before completing current checkpoint %d, skipping current checkpoint", id, h.currentCheckpointId)
			aborted := h.currentCheckpointId
			if err := h.releaseBlocksAndResetBarriers(ctx); err != nil {
				return err
			}
			h.endSpan(false)
			h.currentCheckpointId = id
			h.startOfAlignment = time.Time{}
			h.latestAlignmentDuration = 0
			if err := h.notifyAbort(ctx, aborted); err != nil {
				return err
			}
			return h.notifyAbort(ctx, id)
		}
		return nil
	}
	if id > h.currentCheckpointId {
		// the checkpoint starts as canceled, its barriers are stale from now on
		h.currentCheckpointId = id
		h.startOfAlignment = time.Time{}
		h.latestAlignmentDuration = 0
		return h.notifyAbort(ctx, id)
	}
	return nil
}

func (h *BarrierAligner) processClose(ctx api.StreamContext, c *model.Record) error {
	logger := ctx.GetLogger()
	if h.closedChannels[c.Channel] {
		logger.Debugf("channel %d is already closed", c.Channel)
		return nil
	}
	h.closedChannels[c.Channel] = true
	h.numClosedChannels++
	logger.Infof("channel %d closed, %d of %d channels closed", c.Channel, h.numClosedChannels, h.totalChannels)
	if h.numBarriersReceived > 0 {
		logger.Warnf("channel %d closed during the alignment of checkpoint %d, aborting it", c.Channel, h.currentCheckpointId)
		aborted := h.currentCheckpointId
		if err := h.releaseBlocksAndResetBarriers(ctx); err != nil {
			return err
		}
		h.endSpan(false)
		return h.notifyAbort(ctx, aborted)
	}
	return nil
}

func (h *BarrierAligner) onEndOfInput(ctx api.StreamContext) error {
	if h.numBarriersReceived == 0 {
		return nil
	}
	ctx.GetLogger().Warnf("input ended during the alignment of checkpoint %d, aborting it", h.currentCheckpointId)
	aborted := h.currentCheckpointId
	if err := h.releaseBlocksAndResetBarriers(ctx); err != nil {
		return err
	}
	h.endSpan(false)
	return h.notifyAbort(ctx, aborted)
}

func (h *BarrierAligner) onBarrier(ctx api.StreamContext, channel int) error {
	if h.blockedChannels[channel] {
		return errorx.NewProtocolErr("received repeated barrier for checkpoint %d from channel %d", h.currentCheckpointId, channel)
	}
	h.blockedChannels[channel] = true
	h.numBarriersReceived++
	ctx.GetLogger().Debugf("received barrier %d from channel %d, blocking it", h.currentCheckpointId, channel)
	return nil
}

func (h *BarrierAligner) beginNewAlignment(ctx api.StreamContext, b *model.Record) {
	h.currentCheckpointId = b.CheckpointId
	h.currentTimestamp = b.Timestamp
	h.startOfAlignment = timex.GetNow()
	_, h.span = tracer.GetTracer().Start(ctx, "barrier_alignment")
	h.span.SetAttributes(
		attribute.String(tracer.RuleKey, h.ruleId),
		attribute.String("op", h.opId),
		attribute.Int64("checkpoint", b.CheckpointId),
	)
	h.blockedChannels[b.Channel] = true
	h.numBarriersReceived = 1
	ctx.GetLogger().Debugf("starting stream alignment for checkpoint %d", b.CheckpointId)
}

func (h *BarrierAligner) completeAlignment(ctx api.StreamContext) error {
	meta := CheckpointMeta{
		CheckpointId:             h.currentCheckpointId,
		Timestamp:                h.currentTimestamp,
		BytesBufferedInAlignment: h.store.BytesWritten(),
	}
	if err := h.releaseBlocksAndResetBarriers(ctx); err != nil {
		return err
	}
	meta.AlignmentDurationNanos = h.latestAlignmentDuration.Nanoseconds()
	if h.span != nil {
		h.span.SetAttributes(attribute.Int64("bytes", meta.BytesBufferedInAlignment))
	}
	h.endSpan(true)
	return h.notifyReady(ctx, meta)
}

// releaseBlocksAndResetBarriers unblocks all channels and queues the data spilled so far for replay.
func (h *BarrierAligner) releaseBlocksAndResetBarriers(ctx api.StreamContext) error {
	for i := range h.blockedChannels {
		h.blockedChannels[i] = false
	}
	h.numBarriersReceived = 0
	if !h.startOfAlignment.IsZero() {
		h.latestAlignmentDuration = timex.Since(h.startOfAlignment)
		h.startOfAlignment = time.Time{}
	}
	var (
		seg spill.Segment
		err error
	)
	if h.IsIdle() {
		seg, err = h.store.Seal()
	} else {
		seg, err = h.store.SealWithFreshBuffer()
	}
	if err != nil {
		return err
	}
	if seg != nil {
		ctx.GetLogger().Debugf("queue spill segment %s of %d bytes for replay", seg.Id(), seg.Size())
		h.replayQueue.Enqueue(seg)
		h.updatePending()
	}
	return nil
}

func (h *BarrierAligner) startReplay(ctx api.StreamContext) error {
	seg := h.replayQueue.Dequeue().(spill.Segment)
	// set before open so that cleanup disposes it on failure
	h.currentReplay = seg
	ctx.GetLogger().Debugf("replay spill segment %s", seg.Id())
	if err := seg.Open(); err != nil {
		return err
	}
	r, ok, err := seg.Next()
	if err != nil {
		return err
	}
	if !ok {
		return h.finishReplay(ctx)
	}
	h.replayNext = r
	return nil
}

func (h *BarrierAligner) finishReplay(ctx api.StreamContext) error {
	seg := h.currentReplay
	h.currentReplay = nil
	h.replayNext = nil
	h.updatePending()
	ctx.GetLogger().Debugf("finish replaying spill segment %s", seg.Id())
	return seg.Dispose()
}

func (h *BarrierAligner) updatePending() {
	n := h.replayQueue.Len()
	if h.currentReplay != nil {
		n++
	}
	metrics.SetPendingSegments(h.ruleId, h.opId, n)
}

func (h *BarrierAligner) endSpan(completed bool) {
	if h.span == nil {
		return
	}
	h.span.SetAttributes(attribute.Bool("completed", completed))
	h.span.End()
	h.span = nil
}

func (h *BarrierAligner) IsIdle() bool {
	return h.currentReplay == nil && h.replayQueue.Len() == 0
}

func (h *BarrierAligner) CurrentCheckpointId() int64 {
	return h.currentCheckpointId
}

// AlignmentDuration is the duration of the running alignment, or of the latest one if idle.
func (h *BarrierAligner) AlignmentDuration() time.Duration {
	if !h.startOfAlignment.IsZero() {
		return timex.Since(h.startOfAlignment)
	}
	return h.latestAlignmentDuration
}

func (h *BarrierAligner) Cleanup(ctx api.StreamContext) error {
	if h.cleaned {
		return nil
	}
	h.cleaned = true
	var errs error
	if h.currentReplay != nil {
		errs = errors.Join(errs, h.currentReplay.Dispose())
		h.currentReplay = nil
		h.replayNext = nil
	}
	for h.replayQueue.Len() > 0 {
		seg := h.replayQueue.Dequeue().(spill.Segment)
		errs = errors.Join(errs, seg.Dispose())
	}
	errs = errors.Join(errs, h.store.Close())
	h.endSpan(false)
	metrics.RemoveOpMetrics(h.ruleId, h.opId)
	if errs != nil {
		ctx.GetLogger().Errorf("clean up barrier aligner: %v", errs)
	} else {
		ctx.GetLogger().Infof("barrier aligner cleaned up")
	}
	return errs
}

func durationOf(nanos int64) time.Duration {
	return time.Duration(nanos)
}
