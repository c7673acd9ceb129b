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

package def

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	AtMostOnce Qos = iota
	AtLeastOnce
	ExactlyOnce
)

// Qos selects how a multi-input task handles checkpoint barriers.
// ExactlyOnce aligns the inputs, AtLeastOnce only tracks barriers and AtMostOnce ignores them.
type Qos int

func (q Qos) String() string {
	switch q {
	case AtMostOnce:
		return "atMostOnce"
	case AtLeastOnce:
		return "atLeastOnce"
	case ExactlyOnce:
		return "exactlyOnce"
	default:
		return fmt.Sprintf("qos(%d)", int(q))
	}
}

// ParseQos accepts both the names and the numeric levels 0, 1 and 2.
func ParseQos(s string) (Qos, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "atmostonce":
		return AtMostOnce, nil
	case "atleastonce":
		return AtLeastOnce, nil
	case "exactlyonce", "":
		return ExactlyOnce, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < int(AtMostOnce) || i > int(ExactlyOnce) {
		return AtMostOnce, fmt.Errorf("invalid qos %s", s)
	}
	return Qos(i), nil
}
