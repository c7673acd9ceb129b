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

package encoding

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/ugorji/go/codec"

	"github.com/lf-edge/streamalign/pkg/model"
)

const (
	MSGPACK = "msgpack"
	CBOR    = "cbor"
	GOB     = "gob"
)

// RecordCodec serializes one spilled record. Decode must not retain data.
type RecordCodec interface {
	Encode(r *model.Record) ([]byte, error)
	Decode(data []byte, r *model.Record) error
}

func GetRecordCodec(name string) (RecordCodec, error) {
	switch name {
	case MSGPACK, "":
		h := &codec.MsgpackHandle{}
		h.WriteExt = true
		return &msgpackCodec{handle: h}, nil
	case CBOR:
		return cborCodec{}, nil
	case GOB:
		return gobCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported record codec: %s", name)
	}
}

type msgpackCodec struct {
	handle *codec.MsgpackHandle
}

func (c *msgpackCodec) Encode(r *model.Record) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, c.handle).Encode(r); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *msgpackCodec) Decode(data []byte, r *model.Record) error {
	return codec.NewDecoderBytes(data, c.handle).Decode(r)
}

type cborCodec struct{}

func (cborCodec) Encode(r *model.Record) ([]byte, error) {
	return cbor.Marshal(r)
}

func (cborCodec) Decode(data []byte, r *model.Record) error {
	return cbor.Unmarshal(data, r)
}

type gobCodec struct{}

func (gobCodec) Encode(r *model.Record) ([]byte, error) {
	return Encode(r)
}

func (gobCodec) Decode(data []byte, r *model.Record) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(r)
}

func Encode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer
	gob.Register(time.Time{})
	gob.Register(value)
	enc := gob.NewEncoder(&buff)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}
