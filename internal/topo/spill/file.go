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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/lf-edge/streamalign/contract/api"
	"github.com/lf-edge/streamalign/internal/compressor"
	"github.com/lf-edge/streamalign/internal/conf"
	"github.com/lf-edge/streamalign/internal/pkg/store/encoding"
	"github.com/lf-edge/streamalign/pkg/errorx"
	"github.com/lf-edge/streamalign/pkg/model"
)

// fileStore writes every segment to its own file below a store private directory.
type fileStore struct {
	logger          api.Logger
	dir             string
	codec           encoding.RecordCodec
	compression     string
	writeBufferSize int
	readBufferSize  int
	// readBuf is handed to the segments sealed by Seal
	readBuf []byte
	cur     *fileWriter
	closed  bool
}

type fileWriter struct {
	id    string
	path  string
	file  *os.File
	buf   *bufio.Writer
	cw    io.WriteCloser
	bytes int64
}

func newFileStore(ctx api.StreamContext, c *conf.SpillConf, codec encoding.RecordCodec) (Store, error) {
	dir := filepath.Join(c.Path, "spill-"+uuid.New().String())
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, errorx.WrapIOErr(err, "create spill dir %s", dir)
	}
	ctx.GetLogger().Debugf("spill files of %s are written to %s", ctx.GetOpId(), dir)
	return &fileStore{
		logger:          ctx.GetLogger(),
		dir:             dir,
		codec:           codec,
		compression:     c.Compression,
		writeBufferSize: c.WriteBufferSize,
		readBufferSize:  c.ReadBufferSize,
		readBuf:         make([]byte, c.ReadBufferSize),
	}, nil
}

func (s *fileStore) Append(r *model.Record) error {
	if s.closed {
		return errorx.NewIOErr("spill store is closed")
	}
	if s.cur == nil {
		w, err := s.openWriter()
		if err != nil {
			return err
		}
		s.cur = w
	}
	payload, err := s.codec.Encode(r)
	if err != nil {
		return fmt.Errorf("encode spill record: %w", err)
	}
	n, err := writeFrame(s.cur.cw, payload)
	if err != nil {
		return errorx.WrapIOErr(err, "write spill file %s", s.cur.path)
	}
	s.cur.bytes += int64(n)
	return nil
}

func (s *fileStore) openWriter() (*fileWriter, error) {
	id := uuid.New().String()
	p := filepath.Join(s.dir, id+".spill")
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errorx.WrapIOErr(err, "create spill file %s", p)
	}
	buf := bufio.NewWriterSize(f, s.writeBufferSize)
	cw, err := compressor.GetCompressWriter(s.compression, buf)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return nil, err
	}
	s.logger.Debugf("open spill segment %s", id)
	return &fileWriter{id: id, path: p, file: f, buf: buf, cw: cw}, nil
}

func (s *fileStore) Seal() (Segment, error) {
	return s.seal(s.readBuf)
}

func (s *fileStore) SealWithFreshBuffer() (Segment, error) {
	return s.seal(make([]byte, s.readBufferSize))
}

func (s *fileStore) seal(buf []byte) (Segment, error) {
	if s.cur == nil {
		return nil, nil
	}
	w := s.cur
	s.cur = nil
	if err := w.finish(); err != nil {
		_ = os.Remove(w.path)
		return nil, errorx.WrapIOErr(err, "seal spill file %s", w.path)
	}
	s.logger.Debugf("seal spill segment %s with %d bytes", w.id, w.bytes)
	return &fileSegment{
		id:          w.id,
		path:        w.path,
		size:        w.bytes,
		codec:       s.codec,
		compression: s.compression,
		buf:         buf,
	}, nil
}

func (s *fileStore) BytesWritten() int64 {
	if s.cur == nil {
		return 0
	}
	return s.cur.bytes
}

func (s *fileStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs error
	if s.cur != nil {
		errs = errors.Join(errs, s.cur.file.Close())
		s.cur = nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		errs = errors.Join(errs, errorx.WrapIOErr(err, "remove spill dir %s", s.dir))
	}
	s.readBuf = nil
	return errs
}

func (w *fileWriter) finish() error {
	if err := w.cw.Close(); err != nil {
		_ = w.file.Close()
		return err
	}
	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

type fileSegment struct {
	id          string
	path        string
	size        int64
	codec       encoding.RecordCodec
	compression string
	buf         []byte

	file      *os.File
	reader    io.ReadCloser
	opened    bool
	exhausted bool
	disposed  bool
}

func (f *fileSegment) Id() string {
	return f.id
}

func (f *fileSegment) Size() int64 {
	return f.size
}

func (f *fileSegment) Open() error {
	if f.disposed {
		return errorx.NewIOErr(fmt.Sprintf("spill segment %s is disposed", f.id))
	}
	if f.opened {
		return nil
	}
	file, err := os.Open(f.path)
	if err != nil {
		return errorx.WrapIOErr(err, "open spill file %s", f.path)
	}
	r, err := compressor.GetDecompressReader(f.compression, bufio.NewReaderSize(file, len(f.buf)))
	if err != nil {
		_ = file.Close()
		return errorx.WrapIOErr(err, "open spill file %s", f.path)
	}
	f.file = file
	f.reader = r
	f.opened = true
	return nil
}

func (f *fileSegment) Next() (*model.Record, bool, error) {
	if !f.opened || f.disposed {
		return nil, false, errorx.NewIOErr(fmt.Sprintf("spill segment %s is not open", f.id))
	}
	if f.exhausted {
		return nil, false, errorx.NewIOErr(fmt.Sprintf("spill segment %s is exhausted", f.id))
	}
	payload, buf, err := readFrame(f.reader, f.buf)
	f.buf = buf
	if err != nil {
		if err == io.EOF {
			f.exhausted = true
			return nil, false, nil
		}
		return nil, false, errorx.WrapIOErr(err, "read spill file %s", f.path)
	}
	r := &model.Record{}
	if err := f.codec.Decode(payload, r); err != nil {
		return nil, false, errorx.WrapIOErr(err, "decode spill record from %s", f.path)
	}
	return r, true, nil
}

func (f *fileSegment) Dispose() error {
	if f.disposed {
		return nil
	}
	f.disposed = true
	var errs error
	if f.reader != nil {
		errs = errors.Join(errs, f.reader.Close())
	}
	if f.file != nil {
		errs = errors.Join(errs, f.file.Close())
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		errs = errors.Join(errs, errorx.WrapIOErr(err, "remove spill file %s", f.path))
	}
	f.buf = nil
	return errs
}
