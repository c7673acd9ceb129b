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

package compressor

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCompressWriter(t *testing.T) {
	testCases := []struct {
		name          string
		compressor    string
		expectedError bool
	}{
		{name: "no compression", compressor: ""},
		{name: "valid compressor zstd", compressor: ZSTD},
		{name: "valid compressor zlib", compressor: ZLIB},
		{name: "valid compressor gzip", compressor: GZIP},
		{name: "valid compressor flate", compressor: FLATE},
		{name: "valid compressor lz4", compressor: LZ4},
		{name: "unsupported compressor", compressor: "invalid", expectedError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := GetCompressWriter(tc.compressor, &buf)
			if tc.expectedError {
				assert.Error(t, err)
				assert.False(t, IsSupported(tc.compressor))
				_, err = GetDecompressReader(tc.compressor, &buf)
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, w)
			assert.True(t, IsSupported(tc.compressor))
		})
	}
}

func TestCompressAndDecompressStream(t *testing.T) {
	testCases := []struct {
		name      string
		inputData []byte
	}{
		{
			name:      "compress/decompress a simple string",
			inputData: []byte("Hello, world!"),
		},
		{
			name:      "compress/decompress a larger data set",
			inputData: bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04}, 10000),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, name := range []string{"", ZLIB, GZIP, FLATE, ZSTD, LZ4} {
				var buf bytes.Buffer
				w, err := GetCompressWriter(name, &buf)
				require.NoError(t, err)
				// written in two chunks like consecutive spill frames
				half := len(tc.inputData) / 2
				_, err = w.Write(tc.inputData[:half])
				require.NoError(t, err)
				_, err = w.Write(tc.inputData[half:])
				require.NoError(t, err)
				require.NoError(t, w.Close())
				require.NotZero(t, buf.Len(), name)

				r, err := GetDecompressReader(name, &buf)
				require.NoError(t, err)
				out, err := io.ReadAll(r)
				require.NoError(t, err, name)
				require.NoError(t, r.Close())
				assert.Equal(t, tc.inputData, out, name)
			}
		})
	}
}
