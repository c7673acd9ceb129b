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

import "fmt"

type Error struct {
	msg   string
	code  ErrorCode
	cause error
}

func New(message string) *Error {
	return &Error{msg: message, code: GENERAL_ERR}
}

func NewWithCode(code ErrorCode, message string) *Error {
	return &Error{msg: message, code: code}
}

// Wrap attaches a code to an underlying error. The cause stays reachable by errors.Is/As.
func Wrap(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		msg:   fmt.Sprintf(format, args...),
		code:  code,
		cause: cause,
	}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Code() ErrorCode {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.cause
}

type ErrorWithCode interface {
	Error() string
	Code() ErrorCode
}
