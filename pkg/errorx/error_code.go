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

package errorx

import (
	"errors"
	"fmt"
)

type ErrorCode int

const (
	Undefined_Err ErrorCode = 1000
	GENERAL_ERR   ErrorCode = 1001
	NOT_FOUND     ErrorCode = 1002
	IOErr         ErrorCode = 1003
	CovnerterErr  ErrorCode = 1004
	EOF           ErrorCode = 1005

	// error code for checkpoint alignment

	ProtocolErr ErrorCode = 6001
	NotifierErr ErrorCode = 6002

	ConfKeyError ErrorCode = 5000
)

var NotFoundErr = NewWithCode(NOT_FOUND, "not found")

func NewIOErr(msg string) error {
	return &Error{
		code: IOErr,
		msg:  msg,
	}
}

func WrapIOErr(cause error, format string, args ...any) error {
	return Wrap(IOErr, cause, format, args...)
}

func NewEOF(msg string) error {
	return &Error{
		code: EOF,
		msg:  msg,
	}
}

// NewProtocolErr reports a violation of the record stream contract by the transport.
// It is never recoverable at the alignment layer.
func NewProtocolErr(format string, args ...any) error {
	return &Error{
		code: ProtocolErr,
		msg:  fmt.Sprintf(format, args...),
	}
}

func WrapNotifierErr(cause error, format string, args ...any) error {
	return Wrap(NotifierErr, cause, format, args...)
}

func IsIOError(err error) bool {
	return hasCode(err, IOErr)
}

func IsProtocolError(err error) bool {
	return hasCode(err, ProtocolErr)
}

func IsEOF(err error) bool {
	return hasCode(err, EOF)
}

func IsUnexpectedErr(err error) bool {
	return err != nil && !IsEOF(err)
}

func GetErrorCode(err error) (ErrorCode, bool) {
	var withCode ErrorWithCode
	if errors.As(err, &withCode) {
		return withCode.Code(), true
	}
	return 0, false
}

func hasCode(err error, code ErrorCode) bool {
	c, ok := GetErrorCode(err)
	return ok && c == code
}
