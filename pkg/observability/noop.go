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

// NoOpTracer creates spans for context propagation but exports nothing.
// It is the default for a bridge or store built without a tracer.
type NoOpTracer struct{}

func NewNoOpTracer() *NoOpTracer { return &NoOpTracer{} }

func (t *NoOpTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	return startSpan(ctx, name, opts)
}

func (t *NoOpTracer) EndSpan(span *Span) { span.finish() }

func (t *NoOpTracer) RecordMetric(string, float64, map[string]string) {}

func (t *NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}

func (t *NoOpTracer) Flush(context.Context) error { return nil }

var _ Tracer = (*NoOpTracer)(nil)
