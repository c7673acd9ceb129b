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

package tracer

import (
	"context"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LocalSpanStorage keeps the latest traces in memory so that the alignments of a rule can be
// inspected without a collector.
type LocalSpanStorage struct {
	sync.RWMutex
	queue *Queue
	// traceid -> spanid -> span
	m map[string]map[string]*LocalSpan
	// rule -> traceIDs, may contain duplicates
	ruleTraces map[string][]string
}

func newLocalSpanStorage(capacity int) *LocalSpanStorage {
	return &LocalSpanStorage{
		queue:      NewQueue(capacity),
		ruleTraces: make(map[string][]string),
		m:          map[string]map[string]*LocalSpan{},
	}
}

// ExportSpans implements sdktrace.SpanExporter
func (l *LocalSpanStorage) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	l.Lock()
	defer l.Unlock()
	for _, span := range spans {
		l.saveSpan(FromReadonlySpan(span))
	}
	return nil
}

func (l *LocalSpanStorage) Shutdown(_ context.Context) error {
	return nil
}

func (l *LocalSpanStorage) saveSpan(localSpan *LocalSpan) {
	if dropped := l.queue.Enqueue(localSpan.TraceID); dropped != "" {
		delete(l.m, dropped)
		for rule, ids := range l.ruleTraces {
			kept := ids[:0]
			for _, id := range ids {
				if id != dropped {
					kept = append(kept, id)
				}
			}
			if len(kept) == 0 {
				delete(l.ruleTraces, rule)
			} else {
				l.ruleTraces[rule] = kept
			}
		}
	}
	spanMap, ok := l.m[localSpan.TraceID]
	if !ok {
		spanMap = make(map[string]*LocalSpan)
		l.m[localSpan.TraceID] = spanMap
	}
	if len(localSpan.RuleID) > 0 {
		l.ruleTraces[localSpan.RuleID] = append(l.ruleTraces[localSpan.RuleID], localSpan.TraceID)
	}
	spanMap[localSpan.SpanID] = localSpan
}

func (l *LocalSpanStorage) GetTraceById(traceID string) *LocalSpan {
	l.RLock()
	defer l.RUnlock()
	allSpans := l.m[traceID]
	if len(allSpans) < 1 {
		return nil
	}
	rootSpan := findRootSpan(allSpans)
	if rootSpan == nil {
		return nil
	}
	copySpan := make(map[string]*LocalSpan)
	for k, s := range allSpans {
		copySpan[k] = s
	}
	buildSpanLink(rootSpan, copySpan)
	return rootSpan
}

// GetTraceByRuleID returns the trace ids of a rule, latest first. A limit below 1 returns all.
func (l *LocalSpanStorage) GetTraceByRuleID(ruleID string, limit int) []string {
	l.RLock()
	defer l.RUnlock()
	allTraces := l.ruleTraces[ruleID]
	r := make([]string, 0)
	if limit < 1 {
		limit = len(allTraces)
	}
	traceMap := make(map[string]struct{})
	for i := len(allTraces) - 1; i >= 0 && len(r) < limit; i-- {
		traceID := allTraces[i]
		if _, existed := traceMap[traceID]; existed {
			continue
		}
		traceMap[traceID] = struct{}{}
		r = append(r, traceID)
	}
	return r
}

func findRootSpan(allSpans map[string]*LocalSpan) *LocalSpan {
	for id1, span1 := range allSpans {
		if span1.ParentSpanID == "" {
			return span1
		}
		isRoot := true
		for id2, span2 := range allSpans {
			if id1 == id2 {
				continue
			}
			if span1.ParentSpanID == span2.SpanID {
				isRoot = false
				break
			}
		}
		if isRoot {
			return span1
		}
	}
	return nil
}

func buildSpanLink(cur *LocalSpan, otherSpans map[string]*LocalSpan) {
	if len(cur.ChildSpan) > 0 {
		return
	}
	for k, otherSpan := range otherSpans {
		if cur.SpanID == otherSpan.ParentSpanID {
			cur.ChildSpan = append(cur.ChildSpan, otherSpan)
			delete(otherSpans, k)
		}
	}
	for _, span := range cur.ChildSpan {
		buildSpanLink(span, otherSpans)
	}
}

// Queue is traceID FIFO queue with sized capacity
type Queue struct {
	m        map[string]struct{}
	items    []string
	capacity int
}

func NewQueue(capacity int) *Queue {
	return &Queue{
		m:        make(map[string]struct{}),
		items:    make([]string, 0),
		capacity: capacity,
	}
}

// Enqueue adds a new trace id and returns the evicted one, if any.
func (q *Queue) Enqueue(traceID string) string {
	if _, ok := q.m[traceID]; ok {
		return ""
	}
	dropped := ""
	if len(q.items) >= q.capacity {
		dropped = q.Dequeue()
	}
	q.items = append(q.items, traceID)
	q.m[traceID] = struct{}{}
	return dropped
}

func (q *Queue) Dequeue() string {
	if len(q.items) == 0 {
		return ""
	}
	traceID := q.items[0]
	q.items = q.items[1:]
	delete(q.m, traceID)
	return traceID
}

func (q *Queue) Len() int {
	return len(q.items)
}
