// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package observability

import (
	"context"
	"maps"
	"sync"
)

// MetricPoint is one RecordMetric call captured by MockTracer.
type MetricPoint struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// EventPoint is one RecordEvent call captured by MockTracer.
type EventPoint struct {
	Name       string
	Attributes map[string]interface{}
}

// MockTracer captures ended spans, events and recorded metrics so tests can assert on
// what the bridge and store emitted. Safe for concurrent use.
type MockTracer struct {
	mu      sync.RWMutex
	spans   []*Span
	metrics []MetricPoint
	events  []EventPoint
}

func NewMockTracer() *MockTracer {
	return &MockTracer{}
}

// StartSpan prefixes ids with "trace-" and "span-" so they are easy to tell
// apart from store-generated ids in assertions.
func (m *MockTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	ctx, span := startSpan(ctx, name, opts)
	if span.ParentID == "" {
		span.TraceID = "trace-" + span.TraceID
	}
	span.SpanID = "span-" + span.SpanID
	return ctx, span
}

// EndSpan records the span. Only ended spans are visible to GetSpans.
func (m *MockTracer) EndSpan(span *Span) {
	if !span.finish() {
		return
	}
	m.mu.Lock()
	m.spans = append(m.spans, span)
	m.mu.Unlock()
}

// RecordMetric stores a copy of labels.
func (m *MockTracer) RecordMetric(name string, value float64, labels map[string]string) {
	point := MetricPoint{Name: name, Value: value, Labels: maps.Clone(labels)}
	if point.Labels == nil {
		point.Labels = map[string]string{}
	}
	m.mu.Lock()
	m.metrics = append(m.metrics, point)
	m.mu.Unlock()
}

func (m *MockTracer) RecordEvent(_ context.Context, name string, attributes map[string]interface{}) {
	m.mu.Lock()
	m.events = append(m.events, EventPoint{Name: name, Attributes: maps.Clone(attributes)})
	m.mu.Unlock()
}

// GetEvents returns every event recorded under name.
func (m *MockTracer) GetEvents(name string) []EventPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []EventPoint
	for _, e := range m.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (m *MockTracer) Flush(context.Context) error { return nil }

func (m *MockTracer) GetSpans() []*Span {
	return m.spansWhere(func(*Span) bool { return true })
}

// GetSpansByName returns ended spans named name in end order.
func (m *MockTracer) GetSpansByName(name string) []*Span {
	return m.spansWhere(func(s *Span) bool { return s.Name == name })
}

// GetSpanByName returns the first ended span named name, or nil.
func (m *MockTracer) GetSpanByName(name string) *Span {
	if spans := m.GetSpansByName(name); len(spans) > 0 {
		return spans[0]
	}
	return nil
}

func (m *MockTracer) spansWhere(keep func(*Span) bool) []*Span {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Span, 0, len(m.spans))
	for _, s := range m.spans {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// GetMetrics returns every point recorded under name.
func (m *MockTracer) GetMetrics(name string) []MetricPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []MetricPoint
	for _, p := range m.metrics {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out
}

// SumMetric adds up every value recorded under name. Counters recorded with
// different labels are summed together.
func (m *MockTracer) SumMetric(name string) float64 {
	var total float64
	for _, p := range m.GetMetrics(name) {
		total += p.Value
	}
	return total
}

// Reset drops everything captured so far.
func (m *MockTracer) Reset() {
	m.mu.Lock()
	m.spans, m.metrics, m.events = nil, nil, nil
	m.mu.Unlock()
}

var _ Tracer = (*MockTracer)(nil)
