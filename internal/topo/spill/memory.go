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

package spill

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lf-edge/streamalign/contract/api"
	"github.com/lf-edge/streamalign/internal/conf"
	"github.com/lf-edge/streamalign/internal/pkg/store/encoding"
	"github.com/lf-edge/streamalign/pkg/errorx"
	"github.com/lf-edge/streamalign/pkg/model"
)

// memoryStore keeps encoded records on the heap. It is meant for tests and for small
// alignments where losing the buffer on a crash is acceptable.
type memoryStore struct {
	codec  encoding.RecordCodec
	cur    *memorySegment
	closed bool
}

func newMemoryStore(_ api.StreamContext, _ *conf.SpillConf, codec encoding.RecordCodec) (Store, error) {
	return &memoryStore{codec: codec}, nil
}

func (s *memoryStore) Append(r *model.Record) error {
	if s.closed {
		return errorx.NewIOErr("spill store is closed")
	}
	if s.cur == nil {
		s.cur = &memorySegment{id: uuid.New().String(), codec: s.codec}
	}
	payload, err := s.codec.Encode(r)
	if err != nil {
		return fmt.Errorf("encode spill record: %w", err)
	}
	s.cur.data = append(s.cur.data, payload)
	s.cur.size += int64(len(payload) + frameHeaderSize)
	return nil
}

func (s *memoryStore) Seal() (Segment, error) {
	if s.cur == nil {
		return nil, nil
	}
	seg := s.cur
	s.cur = nil
	return seg, nil
}

func (s *memoryStore) SealWithFreshBuffer() (Segment, error) {
	return s.Seal()
}

func (s *memoryStore) BytesWritten() int64 {
	if s.cur == nil {
		return 0
	}
	return s.cur.size
}

func (s *memoryStore) Close() error {
	s.closed = true
	s.cur = nil
	return nil
}

type memorySegment struct {
	id        string
	codec     encoding.RecordCodec
	data      [][]byte
	size      int64
	pos       int
	opened    bool
	exhausted bool
	disposed  bool
}

func (m *memorySegment) Id() string {
	return m.id
}

func (m *memorySegment) Size() int64 {
	return m.size
}

func (m *memorySegment) Open() error {
	if m.disposed {
		return errorx.NewIOErr(fmt.Sprintf("spill segment %s is disposed", m.id))
	}
	m.opened = true
	return nil
}

func (m *memorySegment) Next() (*model.Record, bool, error) {
	if !m.opened || m.disposed {
		return nil, false, errorx.NewIOErr(fmt.Sprintf("spill segment %s is not open", m.id))
	}
	if m.exhausted {
		return nil, false, errorx.NewIOErr(fmt.Sprintf("spill segment %s is exhausted", m.id))
	}
	if m.pos >= len(m.data) {
		m.exhausted = true
		return nil, false, nil
	}
	r := &model.Record{}
	if err := m.codec.Decode(m.data[m.pos], r); err != nil {
		return nil, false, errorx.WrapIOErr(err, "decode spill record from %s", m.id)
	}
	m.data[m.pos] = nil
	m.pos++
	return r, true, nil
}

func (m *memorySegment) Dispose() error {
	m.disposed = true
	m.data = nil
	return nil
}
