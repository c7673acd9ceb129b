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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lf-edge/streamalign/internal/conf"
	"github.com/lf-edge/streamalign/pkg/errorx"
	mockContext "github.com/lf-edge/streamalign/pkg/mock/context"
	"github.com/lf-edge/streamalign/pkg/model"
)

func testConf(t *testing.T, typ string) *conf.SpillConf {
	c := &conf.SpillConf{Type: typ, Path: t.TempDir()}
	_ = c.Validate()
	return c
}

func newTestStore(t *testing.T, c *conf.SpillConf) Store {
	s, err := NewStore(mockContext.NewMockContext("rule1", "op1"), c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecords(n int, channel int) []*model.Record {
	result := make([]*model.Record, 0, n)
	for i := 0; i < n; i++ {
		result = append(result, model.NewData(channel, []byte(fmt.Sprintf("record-%d", i))))
	}
	return result
}

func drain(t *testing.T, seg Segment) []*model.Record {
	require.NoError(t, seg.Open())
	var result []*model.Record
	for {
		r, ok, err := seg.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		result = append(result, r)
	}
	return result
}

var allTypes = []string{conf.SpillTypeFile, conf.SpillTypePebble, conf.SpillTypeMemory}

func TestReplayOrder(t *testing.T) {
	for _, typ := range allTypes {
		t.Run(typ, func(t *testing.T) {
			s := newTestStore(t, testConf(t, typ))
			records := testRecords(100, 2)
			for _, r := range records {
				require.NoError(t, s.Append(r))
			}
			written := s.BytesWritten()
			assert.Greater(t, written, int64(100*frameHeaderSize))
			seg, err := s.Seal()
			require.NoError(t, err)
			require.NotNil(t, seg)
			assert.Equal(t, written, seg.Size())
			assert.Equal(t, int64(0), s.BytesWritten())
			assert.Equal(t, records, drain(t, seg))
			// end is reported once only
			_, _, err = seg.Next()
			assert.Error(t, err)
			assert.True(t, errorx.IsIOError(err))
			require.NoError(t, seg.Dispose())
			require.NoError(t, seg.Dispose())
		})
	}
}

func TestSealEmpty(t *testing.T) {
	for _, typ := range allTypes {
		t.Run(typ, func(t *testing.T) {
			s := newTestStore(t, testConf(t, typ))
			seg, err := s.Seal()
			require.NoError(t, err)
			assert.Nil(t, seg)
			seg, err = s.SealWithFreshBuffer()
			require.NoError(t, err)
			assert.Nil(t, seg)
		})
	}
}

func TestMultipleSegments(t *testing.T) {
	for _, typ := range allTypes {
		t.Run(typ, func(t *testing.T) {
			s := newTestStore(t, testConf(t, typ))
			first := testRecords(10, 1)
			for _, r := range first {
				require.NoError(t, s.Append(r))
			}
			seg1, err := s.Seal()
			require.NoError(t, err)
			second := []*model.Record{model.NewData(3, []byte("x")), model.NewData(0, []byte("y"))}
			for _, r := range second {
				require.NoError(t, s.Append(r))
			}
			// seg1 is not replayed yet
			seg2, err := s.SealWithFreshBuffer()
			require.NoError(t, err)
			assert.NotEqual(t, seg1.Id(), seg2.Id())

			require.NoError(t, seg1.Open())
			require.NoError(t, seg2.Open())
			// interleaved reads must not disturb each other
			r, ok, err := seg1.Next()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, first[0], r)
			r, ok, err = seg2.Next()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, second[0], r)
			for i := 1; i < len(first); i++ {
				r, ok, err = seg1.Next()
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, first[i], r)
			}
			_, ok, err = seg1.Next()
			require.NoError(t, err)
			assert.False(t, ok)
			r, ok, err = seg2.Next()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, second[1], r)
			require.NoError(t, seg1.Dispose())
			require.NoError(t, seg2.Dispose())
		})
	}
}

func TestCompression(t *testing.T) {
	for _, c := range []string{"", "gzip", "zstd", "flate", "zlib", "lz4"} {
		for _, codec := range []string{"msgpack", "cbor", "gob"} {
			t.Run(c+"_"+codec, func(t *testing.T) {
				cf := testConf(t, conf.SpillTypeFile)
				cf.Compression = c
				cf.Codec = codec
				s := newTestStore(t, cf)
				records := append(testRecords(50, 1), model.NewData(2, []byte{}), model.NewData(0, []byte{0, 1, 2}))
				records[50].Payload = nil
				for _, r := range records {
					require.NoError(t, s.Append(r))
				}
				seg, err := s.Seal()
				require.NoError(t, err)
				assert.Equal(t, records, drain(t, seg))
				require.NoError(t, seg.Dispose())
			})
		}
	}
}

func TestLargeRecordGrowsBuffer(t *testing.T) {
	cf := testConf(t, conf.SpillTypeFile)
	cf.ReadBufferSize = 16
	s := newTestStore(t, cf)
	big := make([]byte, 100*1024)
	for i := range big {
		big[i] = byte(i)
	}
	records := []*model.Record{model.NewData(1, []byte("small")), model.NewData(1, big), model.NewData(1, []byte("tail"))}
	for _, r := range records {
		require.NoError(t, s.Append(r))
	}
	seg, err := s.Seal()
	require.NoError(t, err)
	assert.Equal(t, records, drain(t, seg))
}

func TestFileDispose(t *testing.T) {
	cf := testConf(t, conf.SpillTypeFile)
	s := newTestStore(t, cf)
	require.NoError(t, s.Append(model.NewData(1, []byte("a"))))
	seg, err := s.Seal()
	require.NoError(t, err)
	fs := seg.(*fileSegment)
	_, err = os.Stat(fs.path)
	require.NoError(t, err)
	require.NoError(t, seg.Dispose())
	_, err = os.Stat(fs.path)
	assert.True(t, os.IsNotExist(err))
	// a disposed segment cannot be opened
	assert.Error(t, seg.Open())
}

func TestDisposeUnopened(t *testing.T) {
	for _, typ := range allTypes {
		t.Run(typ, func(t *testing.T) {
			s := newTestStore(t, testConf(t, typ))
			require.NoError(t, s.Append(model.NewData(1, []byte("a"))))
			seg, err := s.SealWithFreshBuffer()
			require.NoError(t, err)
			require.NoError(t, seg.Dispose())
			_, _, err = seg.Next()
			assert.Error(t, err)
		})
	}
}

func TestNextBeforeOpen(t *testing.T) {
	for _, typ := range allTypes {
		t.Run(typ, func(t *testing.T) {
			s := newTestStore(t, testConf(t, typ))
			require.NoError(t, s.Append(model.NewData(1, []byte("a"))))
			seg, err := s.Seal()
			require.NoError(t, err)
			_, _, err = seg.Next()
			assert.Error(t, err)
			require.NoError(t, seg.Dispose())
		})
	}
}

func TestCloseRemovesStorage(t *testing.T) {
	for _, typ := range []string{conf.SpillTypeFile, conf.SpillTypePebble} {
		t.Run(typ, func(t *testing.T) {
			cf := testConf(t, typ)
			s, err := NewStore(mockContext.NewMockContext("rule1", "op1"), cf)
			require.NoError(t, err)
			require.NoError(t, s.Append(model.NewData(1, []byte("a"))))
			seg, err := s.Seal()
			require.NoError(t, err)
			require.NoError(t, seg.Dispose())
			// unsealed data is dropped on close
			require.NoError(t, s.Append(model.NewData(1, []byte("b"))))
			require.NoError(t, s.Close())
			require.NoError(t, s.Close())
			entries, err := os.ReadDir(cf.Path)
			require.NoError(t, err)
			assert.Empty(t, entries)
			err = s.Append(model.NewData(1, []byte("c")))
			assert.True(t, errorx.IsIOError(err))
		})
	}
}

func TestCorruptFrame(t *testing.T) {
	cf := testConf(t, conf.SpillTypeFile)
	s := newTestStore(t, cf)
	for _, r := range testRecords(3, 1) {
		require.NoError(t, s.Append(r))
	}
	seg, err := s.Seal()
	require.NoError(t, err)
	p := seg.(*fileSegment).path
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	b[len(b)-1] ^= 0xff
	require.NoError(t, os.WriteFile(p, b, 0o600))
	require.NoError(t, seg.Open())
	_, ok, err := seg.Next()
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = seg.Next()
	require.NoError(t, err)
	require.True(t, ok)
	_, _, err = seg.Next()
	require.Error(t, err)
	assert.True(t, errorx.IsIOError(err))
	require.NoError(t, seg.Dispose())
}

func TestTruncatedFile(t *testing.T) {
	cf := testConf(t, conf.SpillTypeFile)
	s := newTestStore(t, cf)
	for _, r := range testRecords(2, 1) {
		require.NoError(t, s.Append(r))
	}
	seg, err := s.Seal()
	require.NoError(t, err)
	p := seg.(*fileSegment).path
	info, err := os.Stat(p)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(p, info.Size()-3))
	require.NoError(t, seg.Open())
	_, ok, err := seg.Next()
	require.NoError(t, err)
	require.True(t, ok)
	_, _, err = seg.Next()
	require.Error(t, err)
	assert.True(t, errorx.IsIOError(err))
}

func TestMissingFile(t *testing.T) {
	cf := testConf(t, conf.SpillTypeFile)
	s := newTestStore(t, cf)
	require.NoError(t, s.Append(model.NewData(1, []byte("a"))))
	seg, err := s.Seal()
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Clean(seg.(*fileSegment).path)))
	err = seg.Open()
	assert.True(t, errorx.IsIOError(err))
	require.NoError(t, seg.Dispose())
}

func TestNewStoreErrors(t *testing.T) {
	ctx := mockContext.NewMockContext("rule1", "op1")
	_, err := NewStore(ctx, &conf.SpillConf{Type: "s3", Path: t.TempDir()})
	assert.EqualError(t, err, "unsupported spill type: s3")
	_, err = NewStore(ctx, &conf.SpillConf{Type: conf.SpillTypeMemory, Codec: "xml"})
	assert.EqualError(t, err, "unsupported record codec: xml")
	_, err = NewStore(ctx, &conf.SpillConf{Type: conf.SpillTypeMemory, Compression: "rar"})
	assert.EqualError(t, err, "unsupported spill compression: rar")
}
