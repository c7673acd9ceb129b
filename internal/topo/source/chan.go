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

// ChanSource reads records from a go channel shared by the producers of all input channels.
// The input is exhausted when the go channel is closed.
type ChanSource struct {
	channels int
	ch       <-chan *model.Record
}

func NewChanSource(channels int, ch <-chan *model.Record) *ChanSource {
	return &ChanSource{channels: channels, ch: ch}
}

func (s *ChanSource) NumChannels() int {
	return s.channels
}

// Next blocks until a record arrives or ctx is done.
func (s *ChanSource) Next(ctx api.StreamContext) (*model.Record, bool, error) {
	select {
	case r, ok := <-s.ch:
		if !ok {
			return nil, false, nil
		}
		return r, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
