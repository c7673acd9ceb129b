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
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

const (
	frameHeaderSize = 8
	maxFrameSize    = 64 << 20
)

var errCorrupt = errors.New("corrupt spill frame")

// writeFrame writes the payload prefixed by its length and crc32, both big endian uint32.
func writeFrame(w io.Writer, payload []byte) (int, error) {
	if len(payload) > maxFrameSize {
		return 0, fmt.Errorf("spill record of %d bytes exceeds the limit %d", len(payload), maxFrameSize)
	}
	var hdr [frameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(hdr[4:8], crc32.ChecksumIEEE(payload))
	n, err := w.Write(hdr[:])
	if err != nil {
		return n, err
	}
	m, err := w.Write(payload)
	return n + m, err
}

// readFrame reads one frame into buf, growing it when needed, and returns the payload and the
// possibly reallocated buffer. io.EOF is only returned on a frame boundary.
func readFrame(r io.Reader, buf []byte) ([]byte, []byte, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, buf, io.EOF
		}
		return nil, buf, fmt.Errorf("truncated frame header: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr[0:4])
	sum := binary.BigEndian.Uint32(hdr[4:8])
	if n > maxFrameSize {
		return nil, buf, fmt.Errorf("%w: length %d", errCorrupt, n)
	}
	if uint32(cap(buf)) < n {
		buf = make([]byte, n)
	}
	payload := buf[:n]
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, buf, fmt.Errorf("truncated frame payload: %w", io.ErrUnexpectedEOF)
	}
	if crc32.ChecksumIEEE(payload) != sum {
		return nil, buf, fmt.Errorf("%w: checksum mismatch", errCorrupt)
	}
	return payload, buf, nil
}
