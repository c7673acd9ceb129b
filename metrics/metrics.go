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

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	LblStatusType = "status"
	LblRuleIDType = "rule"
	LblOpIDType   = "op"

	LblReady   = "ready"
	LblAborted = "aborted"
)

var (
	AlignmentDurationHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamalign",
		Subsystem: "checkpoint",
		Name:      "alignment_duration_seconds",
		Help:      "histogram of the barrier alignment duration",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{LblRuleIDType, LblOpIDType})

	CheckpointCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamalign",
		Subsystem: "checkpoint",
		Name:      "count",
		Help:      "counter of checkpoints by outcome",
	}, []string{LblRuleIDType, LblOpIDType, LblStatusType})

	SpillBytesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamalign",
		Subsystem: "spill",
		Name:      "bytes_total",
		Help:      "counter of bytes spilled during alignments",
	}, []string{LblRuleIDType, LblOpIDType})

	PendingSegmentsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamalign",
		Subsystem: "spill",
		Name:      "pending_segments",
		Help:      "gauge of sealed spill segments waiting for replay",
	}, []string{LblRuleIDType, LblOpIDType})
)

func init() {
	prometheus.MustRegister(AlignmentDurationHist)
	prometheus.MustRegister(CheckpointCounter)
	prometheus.MustRegister(SpillBytesCounter)
	prometheus.MustRegister(PendingSegmentsGauge)
}

func ObserveCheckpointReady(ruleID, opID string, alignment time.Duration, spilled int64) {
	AlignmentDurationHist.WithLabelValues(ruleID, opID).Observe(alignment.Seconds())
	CheckpointCounter.WithLabelValues(ruleID, opID, LblReady).Inc()
	if spilled > 0 {
		SpillBytesCounter.WithLabelValues(ruleID, opID).Add(float64(spilled))
	}
}

func IncCheckpointAborted(ruleID, opID string) {
	CheckpointCounter.WithLabelValues(ruleID, opID, LblAborted).Inc()
}

func SetPendingSegments(ruleID, opID string, count int) {
	PendingSegmentsGauge.WithLabelValues(ruleID, opID).Set(float64(count))
}

// RemoveOpMetrics drops all series of an operator once it is cleaned up.
func RemoveOpMetrics(ruleID, opID string) {
	AlignmentDurationHist.DeleteLabelValues(ruleID, opID)
	CheckpointCounter.DeleteLabelValues(ruleID, opID, LblReady)
	CheckpointCounter.DeleteLabelValues(ruleID, opID, LblAborted)
	SpillBytesCounter.DeleteLabelValues(ruleID, opID)
	PendingSegmentsGauge.DeleteLabelValues(ruleID, opID)
}
