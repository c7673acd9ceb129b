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
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	var b bytes.Buffer
	payloads := [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte("x"), 1000)}
	for _, p := range payloads {
		n, err := writeFrame(&b, p)
		require.NoError(t, err)
		assert.Equal(t, len(p)+frameHeaderSize, n)
	}
	buf := make([]byte, 8)
	for _, exp := range payloads {
		var p []byte
		var err error
		p, buf, err = readFrame(&b, buf)
		require.NoError(t, err)
		assert.Equal(t, exp, p)
	}
	_, _, err := readFrame(&b, buf)
	assert.Equal(t, io.EOF, err)
}

func TestFrameCorrupt(t *testing.T) {
	var b bytes.Buffer
	_, err := writeFrame(&b, []byte("hello"))
	require.NoError(t, err)
	data := b.Bytes()
	data[frameHeaderSize] = 'j'
	_, _, err = readFrame(bytes.NewReader(data), nil)
	assert.True(t, errors.Is(err, errCorrupt))

	// header only partially written
	_, _, err = readFrame(bytes.NewReader(data[:3]), nil)
	assert.Error(t, err)
	assert.NotEqual(t, io.EOF, err)

	// length beyond the limit
	huge := []byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0}
	_, _, err = readFrame(bytes.NewReader(huge), nil)
	assert.True(t, errors.Is(err, errCorrupt))
}
