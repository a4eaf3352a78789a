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

import "context"

// Tracer receives spans, metrics and events from the bridge, the training
// store and the LLM clients. Implementations must be safe for concurrent use.
type Tracer interface {
	// StartSpan opens a span parented to any span already in ctx and returns
	// a context carrying the new one. Pair every call with EndSpan:
	//
	//	ctx, span := tracer.StartSpan(ctx, SpanStoreAddSpan, WithAttribute(AttrRolloutID, id))
	//	defer tracer.EndSpan(span)
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span)

	// EndSpan stamps the duration. A nil span is ignored.
	EndSpan(span *Span)

	// RecordMetric records value under name. Names ending in ".total" are
	// counters; see gaugeMetrics for the gauges.
	RecordMetric(name string, value float64, labels map[string]string)

	// RecordEvent records something that happened outside any span, such as
	// EventGateChanged.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})

	Flush(ctx context.Context) error
}

type spanKey struct{}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

// ContextWithSpan returns a child of ctx carrying span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanKey{}, span)
}
