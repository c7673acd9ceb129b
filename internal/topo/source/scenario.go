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

package source

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lf-edge/streamalign/pkg/model"
)

// Scenario is a scripted input, written in yaml as
//
//	channels: 2
//	records:
//	  - {channel: 0, data: "a"}
//	  - {channel: 1, barrier: 7, timestamp: 100}
//	  - {channel: 0, cancel: 7}
//	  - {channel: 1, closed: true}
type Scenario struct {
	Channels int               `yaml:"channels"`
	Records  []*ScenarioRecord `yaml:"records"`
}

type ScenarioRecord struct {
	Channel   int     `yaml:"channel"`
	Data      *string `yaml:"data,omitempty"`
	Barrier   *int64  `yaml:"barrier,omitempty"`
	Timestamp int64   `yaml:"timestamp,omitempty"`
	Cancel    *int64  `yaml:"cancel,omitempty"`
	Closed    bool    `yaml:"closed,omitempty"`
}

func (sr *ScenarioRecord) toRecord() (*model.Record, error) {
	var (
		r     *model.Record
		kinds int
	)
	if sr.Data != nil {
		r = model.NewData(sr.Channel, []byte(*sr.Data))
		kinds++
	}
	if sr.Barrier != nil {
		r = model.NewBarrier(sr.Channel, *sr.Barrier, sr.Timestamp)
		kinds++
	}
	if sr.Cancel != nil {
		r = model.NewCancelMarker(sr.Channel, *sr.Cancel)
		kinds++
	}
	if sr.Closed {
		r = model.NewChannelClosed(sr.Channel)
		kinds++
	}
	if kinds != 1 {
		return nil, fmt.Errorf("record of channel %d must have exactly one of data, barrier, cancel or closed", sr.Channel)
	}
	return r, nil
}

func ParseScenario(b []byte) (*Scenario, error) {
	s := &Scenario{}
	if err := yaml.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if s.Channels <= 0 {
		return nil, fmt.Errorf("invalid scenario: channels must be positive but got %d", s.Channels)
	}
	return s, nil
}

func LoadScenario(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(b)
}

// Build converts the scenario into records. Channels are checked by the barrier handler,
// so a scenario can script protocol violations.
func (s *Scenario) Build() ([]*model.Record, error) {
	result := make([]*model.Record, 0, len(s.Records))
	for i, sr := range s.Records {
		r, err := sr.toRecord()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		result = append(result, r)
	}
	return result, nil
}

func (s *Scenario) Source() (*SliceSource, error) {
	records, err := s.Build()
	if err != nil {
		return nil, err
	}
	return NewSliceSource(s.Channels, records), nil
}
