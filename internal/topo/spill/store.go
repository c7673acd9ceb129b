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

	"github.com/lf-edge/streamalign/contract/api"
	"github.com/lf-edge/streamalign/internal/compressor"
	"github.com/lf-edge/streamalign/internal/conf"
	"github.com/lf-edge/streamalign/internal/pkg/store/encoding"
	"github.com/lf-edge/streamalign/pkg/model"
)

// Store buffers the records of blocked channels during one alignment. Appends go to the
// currently open segment, which is created lazily by the first append.
// Not thread safe!
type Store interface {
	// Append writes one record to the open segment. I/O faults are returned as is, without retry.
	Append(r *model.Record) error
	// Seal closes the open segment for writing and returns it for replay, or nil if nothing
	// was written. The segment shares the store read buffer, so it must only be used when no
	// other sealed segment is pending replay.
	Seal() (Segment, error)
	// SealWithFreshBuffer is Seal for the case that a previously sealed segment is still
	// pending replay. The returned segment gets its own read buffer.
	SealWithFreshBuffer() (Segment, error)
	// BytesWritten is the number of bytes appended to the open segment.
	BytesWritten() int64
	// Close releases all storage of the store including the open segment.
	Close() error
}

// Segment is a sealed, replayable sequence of records.
type Segment interface {
	Id() string
	// Size is the number of bytes written to the segment.
	Size() int64
	// Open acquires the read resources.
	Open() error
	// Next returns the records in append order. It returns false exactly once at the end;
	// calling it again afterwards is an error.
	Next() (*model.Record, bool, error)
	// Dispose deletes the backing storage. It is safe to call more than once and on
	// segments which were never opened.
	Dispose() error
}

type storeBuilder func(ctx api.StreamContext, c *conf.SpillConf, codec encoding.RecordCodec) (Store, error)

var storeBuilders = map[string]storeBuilder{
	conf.SpillTypeFile:   newFileStore,
	conf.SpillTypePebble: newPebbleStore,
	conf.SpillTypeMemory: newMemoryStore,
}

func NewStore(ctx api.StreamContext, c *conf.SpillConf) (Store, error) {
	builder, ok := storeBuilders[c.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported spill type: %s", c.Type)
	}
	codec, err := encoding.GetRecordCodec(c.Codec)
	if err != nil {
		return nil, err
	}
	if !compressor.IsSupported(c.Compression) {
		return nil, fmt.Errorf("unsupported spill compression: %s", c.Compression)
	}
	ctx.GetLogger().Infof("create %s spill store with conf %+v", c.Type, c)
	return builder(ctx, c, codec)
}
