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
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lf-edge/streamalign/contract/api"
	"github.com/lf-edge/streamalign/internal/conf"
	"github.com/lf-edge/streamalign/internal/topo/source"
	"github.com/lf-edge/streamalign/internal/topo/spill"
	mockContext "github.com/lf-edge/streamalign/pkg/mock/context"
	"github.com/lf-edge/streamalign/pkg/model"
)

type event struct {
	ready bool
	id    int64
	meta  CheckpointMeta
	// number of records delivered before the notification
	pos int
}

func (e event) String() string {
	if e.ready {
		return fmt.Sprintf("ready(%d)", e.id)
	}
	return fmt.Sprintf("abort(%d)", e.id)
}

type recordingNotifier struct {
	events    []event
	delivered *int
	err       error
}

func (n *recordingNotifier) OnCheckpointReady(_ api.StreamContext, meta CheckpointMeta) error {
	n.events = append(n.events, event{ready: true, id: meta.CheckpointId, meta: meta, pos: n.pos()})
	return n.err
}

func (n *recordingNotifier) OnCheckpointAborted(_ api.StreamContext, checkpointId int64) error {
	n.events = append(n.events, event{id: checkpointId, pos: n.pos()})
	return n.err
}

func (n *recordingNotifier) pos() int {
	if n.delivered == nil {
		return 0
	}
	return *n.delivered
}

func (n *recordingNotifier) names() []string {
	result := make([]string, 0, len(n.events))
	for _, e := range n.events {
		result = append(result, e.String())
	}
	return result
}

type harness struct {
	ctx       api.StreamContext
	handler   BarrierHandler
	notifier  *recordingNotifier
	delivered []*model.Record
	count     int
}

func newHarness(t *testing.T, qos string, channels int, records []*model.Record) *harness {
	ctx := mockContext.NewMockContext("rule1", "op1")
	c := &conf.SpillConf{Type: conf.SpillTypeFile, Path: t.TempDir()}
	_ = c.Validate()
	cc := &conf.CheckpointConf{Qos: qos}
	h, err := NewBarrierHandler(ctx, cc.GetQos(), source.NewSliceSource(channels, records), c)
	require.NoError(t, err)
	hs := &harness{ctx: ctx, handler: h}
	hs.notifier = &recordingNotifier{delivered: &hs.count}
	h.RegisterNotifier(hs.notifier)
	t.Cleanup(func() { _ = h.Cleanup(ctx) })
	return hs
}

func newAlignerHarness(t *testing.T, channels int, records []*model.Record, store spill.Store) (*harness, *BarrierAligner) {
	ctx := mockContext.NewMockContext("rule1", "op1")
	if store == nil {
		c := &conf.SpillConf{Type: conf.SpillTypeMemory}
		_ = c.Validate()
		var err error
		store, err = spill.NewStore(ctx, c)
		require.NoError(t, err)
	}
	a := NewBarrierAligner(ctx, source.NewSliceSource(channels, records), store)
	hs := &harness{ctx: ctx, handler: a}
	hs.notifier = &recordingNotifier{delivered: &hs.count}
	a.RegisterNotifier(hs.notifier)
	t.Cleanup(func() { _ = a.Cleanup(ctx) })
	return hs, a
}

// next returns the next record, nil at the end.
func (hs *harness) next(t *testing.T) *model.Record {
	r, ok, err := hs.handler.Next(hs.ctx)
	require.NoError(t, err)
	if !ok {
		return nil
	}
	hs.delivered = append(hs.delivered, r)
	hs.count++
	return r
}

func (hs *harness) drain(t *testing.T) []*model.Record {
	for {
		if r := hs.next(t); r == nil {
			return hs.delivered
		}
	}
}

func data(ch int, payload string) *model.Record {
	return model.NewData(ch, []byte(payload))
}

func barrier(ch int, id int64) *model.Record {
	return model.NewBarrier(ch, id, id*1000)
}

func cancelMarker(ch int, id int64) *model.Record {
	return model.NewCancelMarker(ch, id)
}

func closed(ch int) *model.Record {
	return model.NewChannelClosed(ch)
}

func payloads(records []*model.Record) []string {
	result := make([]string, 0, len(records))
	for _, r := range records {
		result = append(result, string(r.Payload))
	}
	return result
}

var errInjected = errors.New("injected")

// faultyStore fails the operations flagged and counts the disposals of its segments.
type faultyStore struct {
	spill.Store
	failAppend bool
	failSeal   bool
	failOpen   bool
	failNext   bool
	closed     int
	segments   []*faultySegment
}

func (s *faultyStore) Append(r *model.Record) error {
	if s.failAppend {
		return errInjected
	}
	return s.Store.Append(r)
}

func (s *faultyStore) Seal() (spill.Segment, error) {
	return s.wrap(s.Store.Seal())
}

func (s *faultyStore) SealWithFreshBuffer() (spill.Segment, error) {
	return s.wrap(s.Store.SealWithFreshBuffer())
}

func (s *faultyStore) wrap(seg spill.Segment, err error) (spill.Segment, error) {
	if s.failSeal {
		return nil, errInjected
	}
	if err != nil || seg == nil {
		return seg, err
	}
	fs := &faultySegment{Segment: seg, store: s}
	s.segments = append(s.segments, fs)
	return fs, nil
}

func (s *faultyStore) Close() error {
	s.closed++
	return s.Store.Close()
}

type faultySegment struct {
	spill.Segment
	store    *faultyStore
	disposed int
}

func (f *faultySegment) Open() error {
	if f.store.failOpen {
		return errInjected
	}
	return f.Segment.Open()
}

func (f *faultySegment) Next() (*model.Record, bool, error) {
	if f.store.failNext {
		return nil, false, errInjected
	}
	return f.Segment.Next()
}

func (f *faultySegment) Dispose() error {
	f.disposed++
	return f.Segment.Dispose()
}

func newFaultyStore(t *testing.T) *faultyStore {
	c := &conf.SpillConf{Type: conf.SpillTypeMemory}
	_ = c.Validate()
	s, err := spill.NewStore(mockContext.NewMockContext("rule1", "op1"), c)
	require.NoError(t, err)
	return &faultyStore{Store: s}
}
