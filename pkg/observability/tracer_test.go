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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpTracer(t *testing.T) {
	tracer := NewNoOpTracer()

	t.Run("StartSpan applies options and stores span in context", func(t *testing.T) {
		ctx, span := tracer.StartSpan(context.Background(), "test_span",
			WithAttribute("key", "value"),
			WithSpanKind("store"),
		)
		require.NotNil(t, span)
		assert.Equal(t, "test_span", span.Name)
		assert.NotEmpty(t, span.TraceID)
		assert.NotEmpty(t, span.SpanID)
		assert.Equal(t, "value", span.Attributes["key"])
		assert.Equal(t, "store", span.Attributes["span.kind"])
		assert.Same(t, span, SpanFromContext(ctx))
	})

	t.Run("child spans inherit trace id", func(t *testing.T) {
		ctx, parent := tracer.StartSpan(context.Background(), "parent")
		_, child := tracer.StartSpan(ctx, "child")
		assert.Equal(t, parent.TraceID, child.TraceID)
		assert.Equal(t, parent.SpanID, child.ParentID)
	})

	t.Run("EndSpan sets duration", func(t *testing.T) {
		_, span := tracer.StartSpan(context.Background(), "timed")
		time.Sleep(5 * time.Millisecond)
		tracer.EndSpan(span)
		assert.GreaterOrEqual(t, span.Duration, 5*time.Millisecond)
		tracer.EndSpan(nil)
	})

	assert.NoError(t, tracer.Flush(context.Background()))
}

func TestSpanFromContext_Empty(t *testing.T) {
	assert.Nil(t, SpanFromContext(context.Background()))
}

func TestSpan_RecordError(t *testing.T) {
	span := &Span{}
	span.RecordError(nil)
	assert.Equal(t, StatusUnset, span.Status.Code)

	span.RecordError(errors.New("disk full"))
	assert.Equal(t, StatusError, span.Status.Code)
	assert.Equal(t, "disk full", span.Status.Message)
	assert.Equal(t, "disk full", span.Attributes[AttrErrorMessage])
}

func TestMockTracer_CapturesSpansAndMetrics(t *testing.T) {
	tracer := NewMockTracer()

	ctx, parent := tracer.StartSpan(context.Background(), SpanOptimizerUpdate)
	_, child := tracer.StartSpan(ctx, SpanAPOUpdate, WithAttribute(AttrSampleCount, 4))
	tracer.EndSpan(child)
	tracer.EndSpan(parent)

	require.Len(t, tracer.GetSpans(), 2)
	apo := tracer.GetSpanByName(SpanAPOUpdate)
	require.NotNil(t, apo)
	assert.Equal(t, parent.SpanID, apo.ParentID)
	assert.Equal(t, parent.TraceID, apo.TraceID)
	assert.True(t, strings.HasPrefix(apo.TraceID, "trace-"))
	assert.True(t, strings.HasPrefix(apo.SpanID, "span-"))
	assert.Equal(t, 4, apo.Attributes[AttrSampleCount])
	assert.Nil(t, tracer.GetSpanByName("missing"))

	labels := map[string]string{AttrCategory: "qa"}
	tracer.RecordMetric(MetricRolloutsCompleted, 1, labels)
	tracer.RecordMetric(MetricRolloutsCompleted, 1, nil)
	labels[AttrCategory] = "mutated"

	points := tracer.GetMetrics(MetricRolloutsCompleted)
	require.Len(t, points, 2)
	assert.Equal(t, "qa", points[0].Labels[AttrCategory], "labels are copied on record")
	assert.Equal(t, 2.0, tracer.SumMetric(MetricRolloutsCompleted))

	attrs := map[string]interface{}{"to": "hold"}
	tracer.RecordEvent(ctx, EventGateChanged, attrs)
	attrs["to"] = "pass"
	events := tracer.GetEvents(EventGateChanged)
	require.Len(t, events, 1)
	assert.Equal(t, "hold", events[0].Attributes["to"])

	tracer.Reset()
	assert.Empty(t, tracer.GetSpans())
	assert.Empty(t, tracer.GetEvents(EventGateChanged))
	assert.Zero(t, tracer.SumMetric(MetricRolloutsCompleted))
}
