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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mockContext "github.com/lf-edge/streamalign/pkg/mock/context"
	"github.com/lf-edge/streamalign/pkg/model"
)

func TestSliceSource(t *testing.T) {
	ctx := mockContext.NewMockContext("rule1", "src")
	records := []*model.Record{model.NewData(0, []byte("a")), model.NewBarrier(1, 1, 10)}
	s := NewSliceSource(2, records)
	assert.Equal(t, 2, s.NumChannels())
	for _, exp := range records {
		r, ok, err := s.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, exp, r)
	}
	assert.Equal(t, 0, s.Remaining())
	_, ok, err := s.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	cctx, cancel := ctx.WithCancel()
	cancel()
	_, _, err = NewSliceSource(1, records).Next(cctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChanSource(t *testing.T) {
	ctx := mockContext.NewMockContext("rule1", "src")
	ch := make(chan *model.Record, 2)
	s := NewChanSource(3, ch)
	assert.Equal(t, 3, s.NumChannels())
	ch <- model.NewData(2, []byte("x"))
	r, ok, err := s.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.NewData(2, []byte("x")), r)

	cctx, cancel := ctx.WithCancel()
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, _, err = s.Next(cctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(ch)
	_, ok, err = s.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScenario(t *testing.T) {
	content := `
channels: 3
records:
  - {channel: 0, data: "a"}
  - {channel: 1, barrier: 7, timestamp: 100}
  - {channel: 2, cancel: 5}
  - {channel: 1, closed: true}
  - {channel: 2, data: ""}
`
	p := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	s, err := LoadScenario(p)
	require.NoError(t, err)
	src, err := s.Source()
	require.NoError(t, err)
	assert.Equal(t, 3, src.NumChannels())
	assert.Equal(t, []*model.Record{
		model.NewData(0, []byte("a")),
		model.NewBarrier(1, 7, 100),
		model.NewCancelMarker(2, 5),
		model.NewChannelClosed(1),
		model.NewData(2, []byte{}),
	}, src.records)
}

func TestScenarioErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     string
	}{
		{
			name:    "no channels",
			content: "records: []",
			err:     "invalid scenario: channels must be positive but got 0",
		},
		{
			name:    "two kinds",
			content: "channels: 1\nrecords:\n  - {channel: 0, data: a, barrier: 1}",
			err:     "record 0: record of channel 0 must have exactly one of data, barrier, cancel or closed",
		},
		{
			name:    "no kind",
			content: "channels: 1\nrecords:\n  - {channel: 0}",
			err:     "record 0: record of channel 0 must have exactly one of data, barrier, cancel or closed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseScenario([]byte(tt.content))
			if err == nil {
				_, err = s.Build()
			}
			assert.EqualError(t, err, tt.err)
		})
	}
	_, err := ParseScenario([]byte("channels: [1"))
	assert.Error(t, err)
	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
