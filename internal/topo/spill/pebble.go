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
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/lf-edge/streamalign/contract/api"
	"github.com/lf-edge/streamalign/internal/conf"
	"github.com/lf-edge/streamalign/internal/pkg/store/encoding"
	"github.com/lf-edge/streamalign/pkg/errorx"
	"github.com/lf-edge/streamalign/pkg/model"
)

type kvDatabase struct {
	db   *pebble.DB
	Path string
	mu   sync.Mutex
}

func (d *kvDatabase) Connect() error {
	db, err := pebble.Open(d.Path, &pebble.Options{})
	if err != nil {
		return err
	}
	d.db = db
	return nil
}

func (d *kvDatabase) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func (d *kvDatabase) Apply(f func(db *pebble.DB) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return errorx.NewIOErr("pebble spill database is closed")
	}
	return f(d.db)
}

// pebbleStore keeps all segments of a store in one private pebble database. The keys of a
// segment are its id followed by a big endian sequence number, so a bounded iterator
// replays them in append order.
type pebbleStore struct {
	logger   api.Logger
	database *kvDatabase
	codec    encoding.RecordCodec
	cur      *pebbleWriter
	closed   bool
}

type pebbleWriter struct {
	id    string
	seq   uint64
	bytes int64
}

func newPebbleStore(ctx api.StreamContext, c *conf.SpillConf, codec encoding.RecordCodec) (Store, error) {
	if c.Compression != "" {
		ctx.GetLogger().Debugf("pebble spill store ignores compression %s", c.Compression)
	}
	if err := os.MkdirAll(c.Path, os.ModePerm); err != nil {
		return nil, errorx.WrapIOErr(err, "create spill dir %s", c.Path)
	}
	d := &kvDatabase{Path: filepath.Join(c.Path, "pebble-"+uuid.New().String())}
	if err := d.Connect(); err != nil {
		return nil, errorx.WrapIOErr(err, "open pebble spill database %s", d.Path)
	}
	ctx.GetLogger().Debugf("spill records of %s to pebble %s", ctx.GetOpId(), d.Path)
	return &pebbleStore{
		logger:   ctx.GetLogger(),
		database: d,
		codec:    codec,
	}, nil
}

func segmentBounds(id string) ([]byte, []byte) {
	// '0' directly follows '/'
	return []byte(id + "/"), []byte(id + "0")
}

func segmentKey(id string, seq uint64) []byte {
	k := make([]byte, 0, len(id)+9)
	k = append(k, id...)
	k = append(k, '/')
	return binary.BigEndian.AppendUint64(k, seq)
}

func (s *pebbleStore) Append(r *model.Record) error {
	if s.closed {
		return errorx.NewIOErr("spill store is closed")
	}
	if s.cur == nil {
		s.cur = &pebbleWriter{id: uuid.New().String()}
		s.logger.Debugf("open spill segment %s", s.cur.id)
	}
	payload, err := s.codec.Encode(r)
	if err != nil {
		return fmt.Errorf("encode spill record: %w", err)
	}
	w := s.cur
	err = s.database.Apply(func(db *pebble.DB) error {
		return db.Set(segmentKey(w.id, w.seq), payload, pebble.NoSync)
	})
	if err != nil {
		return errorx.WrapIOErr(err, "write spill segment %s", w.id)
	}
	w.seq++
	w.bytes += int64(len(payload) + frameHeaderSize)
	return nil
}

// Seal and SealWithFreshBuffer are the same here as pebble values are copied out of the iterator.
func (s *pebbleStore) Seal() (Segment, error) {
	return s.seal()
}

func (s *pebbleStore) SealWithFreshBuffer() (Segment, error) {
	return s.seal()
}

func (s *pebbleStore) seal() (Segment, error) {
	if s.cur == nil {
		return nil, nil
	}
	w := s.cur
	s.cur = nil
	lower, upper := segmentBounds(w.id)
	s.logger.Debugf("seal spill segment %s with %d records", w.id, w.seq)
	return &pebbleSegment{
		database: s.database,
		id:       w.id,
		size:     w.bytes,
		codec:    s.codec,
		lower:    lower,
		upper:    upper,
	}, nil
}

func (s *pebbleStore) BytesWritten() int64 {
	if s.cur == nil {
		return 0
	}
	return s.cur.bytes
}

func (s *pebbleStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cur = nil
	var errs error
	if err := s.database.Disconnect(); err != nil {
		errs = errors.Join(errs, errorx.WrapIOErr(err, "close pebble spill database %s", s.database.Path))
	}
	if err := os.RemoveAll(s.database.Path); err != nil {
		errs = errors.Join(errs, errorx.WrapIOErr(err, "remove pebble spill database %s", s.database.Path))
	}
	return errs
}

type pebbleSegment struct {
	database *kvDatabase
	id       string
	size     int64
	codec    encoding.RecordCodec
	lower    []byte
	upper    []byte

	iter       *pebble.Iterator
	positioned bool
	exhausted  bool
	disposed   bool
}

func (p *pebbleSegment) Id() string {
	return p.id
}

func (p *pebbleSegment) Size() int64 {
	return p.size
}

func (p *pebbleSegment) Open() error {
	if p.disposed {
		return errorx.NewIOErr(fmt.Sprintf("spill segment %s is disposed", p.id))
	}
	if p.iter != nil {
		return nil
	}
	return p.database.Apply(func(db *pebble.DB) error {
		iter, err := db.NewIter(&pebble.IterOptions{LowerBound: p.lower, UpperBound: p.upper})
		if err != nil {
			return errorx.WrapIOErr(err, "open spill segment %s", p.id)
		}
		p.iter = iter
		return nil
	})
}

func (p *pebbleSegment) Next() (*model.Record, bool, error) {
	if p.iter == nil || p.disposed {
		return nil, false, errorx.NewIOErr(fmt.Sprintf("spill segment %s is not open", p.id))
	}
	if p.exhausted {
		return nil, false, errorx.NewIOErr(fmt.Sprintf("spill segment %s is exhausted", p.id))
	}
	var (
		r     *model.Record
		found bool
	)
	err := p.database.Apply(func(_ *pebble.DB) error {
		if p.positioned {
			found = p.iter.Next()
		} else {
			found = p.iter.First()
			p.positioned = true
		}
		if !found {
			if err := p.iter.Error(); err != nil {
				return errorx.WrapIOErr(err, "read spill segment %s", p.id)
			}
			return nil
		}
		r = &model.Record{}
		if err := p.codec.Decode(p.iter.Value(), r); err != nil {
			return errorx.WrapIOErr(err, "decode spill record from %s", p.id)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		p.exhausted = true
		return nil, false, nil
	}
	return r, true, nil
}

func (p *pebbleSegment) Dispose() error {
	if p.disposed {
		return nil
	}
	p.disposed = true
	var errs error
	if p.iter != nil {
		errs = errors.Join(errs, p.iter.Close())
		p.iter = nil
	}
	err := p.database.Apply(func(db *pebble.DB) error {
		return db.DeleteRange(p.lower, p.upper, pebble.NoSync)
	})
	// the whole database is gone once the store is closed
	if err != nil && p.database.db != nil {
		errs = errors.Join(errs, errorx.WrapIOErr(err, "dispose spill segment %s", p.id))
	}
	return errs
}
