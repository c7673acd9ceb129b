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

package source

import (
	"github.com/lf-edge/streamalign/contract/api"
	"github.com/lf-edge/streamalign/pkg/model"
)

// SliceSource replays a fixed sequence of records.
type SliceSource struct {
	channels int
	records  []*model.Record
	pos      int
}

func NewSliceSource(channels int, records []*model.Record) *SliceSource {
	return &SliceSource{channels: channels, records: records}
}

func (s *SliceSource) NumChannels() int {
	return s.channels
}

func (s *SliceSource) Next(ctx api.StreamContext) (*model.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.pos >= len(s.records) {
		return nil, false, nil
	}
	r := s.records[s.pos]
	s.pos++
	return r, true, nil
}

// Remaining is the number of records not read yet.
func (s *SliceSource) Remaining() int {
	return len(s.records) - s.pos
}
