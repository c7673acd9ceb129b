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

// Package compressor wraps spill files with streaming compression. Spill segments live only
// until they are replayed, so every algorithm runs at its fastest level.
package compressor

import (
	"fmt"
	"io"
)

const (
	ZLIB  = "zlib"
	GZIP  = "gzip"
	FLATE = "flate"
	ZSTD  = "zstd"
	LZ4   = "lz4"
)

type streamCodec struct {
	writer func(w io.Writer) (io.WriteCloser, error)
	reader func(r io.Reader) (io.ReadCloser, error)
}

var codecs = map[string]streamCodec{
	ZLIB:  {writer: newZlibWriter, reader: newZlibReader},
	GZIP:  {writer: newGzipWriter, reader: newGzipReader},
	FLATE: {writer: newFlateWriter, reader: newFlateReader},
	ZSTD:  {writer: newZstdWriter, reader: newZstdReader},
	LZ4:   {writer: newLz4Writer, reader: newLz4Reader},
}

// IsSupported reports whether name is a known algorithm. The empty name means no compression.
func IsSupported(name string) bool {
	if name == "" {
		return true
	}
	_, ok := codecs[name]
	return ok
}

// GetCompressWriter wraps writer with a streaming compressor. Closing the returned writer
// flushes the compressed stream but never closes writer.
func GetCompressWriter(name string, writer io.Writer) (io.WriteCloser, error) {
	if name == "" {
		return nopWriteCloser{writer}, nil
	}
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unsupported compressor: %s", name)
	}
	return c.writer(writer)
}

// GetDecompressReader is the counterpart of GetCompressWriter. Closing the returned reader
// releases the decompressor only.
func GetDecompressReader(name string, reader io.Reader) (io.ReadCloser, error) {
	if name == "" {
		return io.NopCloser(reader), nil
	}
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unsupported decompressor: %s", name)
	}
	return c.reader(reader)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
