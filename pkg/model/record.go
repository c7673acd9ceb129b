// Copyright 2024 EMQ Technologies Co., Ltd.
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

package model

import "fmt"

// RecordKind tags the variant held by a Record.
type RecordKind uint8

const (
	KindData RecordKind = iota
	KindBarrier
	KindCancelMarker
	KindChannelClosed
)

func (k RecordKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindBarrier:
		return "barrier"
	case KindCancelMarker:
		return "cancel"
	case KindChannelClosed:
		return "closed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Record is one element pulled from an input channel. Only the fields of its kind are meaningful:
//   - Data: Payload
//   - Barrier: CheckpointId, Timestamp
//   - CancelMarker: CheckpointId
//   - ChannelClosed: none
type Record struct {
	Kind         RecordKind `json:"kind"`
	Channel      int        `json:"channel"`
	CheckpointId int64      `json:"checkpointId,omitempty"`
	Timestamp    int64      `json:"timestamp,omitempty"`
	Payload      []byte     `json:"payload,omitempty"`
}

func NewData(channel int, payload []byte) *Record {
	return &Record{Kind: KindData, Channel: channel, Payload: payload}
}

func NewBarrier(channel int, checkpointId int64, timestamp int64) *Record {
	return &Record{Kind: KindBarrier, Channel: channel, CheckpointId: checkpointId, Timestamp: timestamp}
}

func NewCancelMarker(channel int, checkpointId int64) *Record {
	return &Record{Kind: KindCancelMarker, Channel: channel, CheckpointId: checkpointId}
}

func NewChannelClosed(channel int) *Record {
	return &Record{Kind: KindChannelClosed, Channel: channel}
}

func (r *Record) IsData() bool {
	return r.Kind == KindData
}

func (r *Record) String() string {
	switch r.Kind {
	case KindData:
		return fmt.Sprintf("data(ch=%d, %q)", r.Channel, r.Payload)
	case KindBarrier:
		return fmt.Sprintf("barrier(ch=%d, id=%d)", r.Channel, r.CheckpointId)
	case KindCancelMarker:
		return fmt.Sprintf("cancel(ch=%d, id=%d)", r.Channel, r.CheckpointId)
	default:
		return fmt.Sprintf("%s(ch=%d)", r.Kind, r.Channel)
	}
}
