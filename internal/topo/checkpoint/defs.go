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
	"github.com/lf-edge/streamalign/pkg/model"
)

// NoCheckpoint is the current checkpoint id before any barrier or cancel marker arrived.
const NoCheckpoint int64 = -1

// ChannelSource multiplexes the input channels of a task into one record stream.
type ChannelSource interface {
	NumChannels() int
	// Next blocks until a record is available. It returns false once all channels are exhausted.
	Next(ctx api.StreamContext) (*model.Record, bool, error)
}

type CheckpointMeta struct {
	CheckpointId int64 `json:"checkpointId"`
	// Timestamp of the first barrier of the checkpoint
	Timestamp                int64 `json:"timestamp"`
	BytesBufferedInAlignment int64 `json:"bytesBufferedInAlignment"`
	AlignmentDurationNanos   int64 `json:"alignmentDurationNanos"`
}

// Notifier is told when the task state is consistent for a checkpoint or when a checkpoint
// can never complete. Errors are returned to the caller of BarrierHandler.Next.
type Notifier interface {
	OnCheckpointReady(ctx api.StreamContext, meta CheckpointMeta) error
	OnCheckpointAborted(ctx api.StreamContext, checkpointId int64) error
}

type Message int

const (
	STOP Message = iota
	ACK
	DEC
)

type Signal struct {
	Message Message
	Barrier
}

type Barrier struct {
	CheckpointId int64
	OpId         string
}
