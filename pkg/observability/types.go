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
// Package observability provides tracing and metrics for the live RL bridge.
//
// Store operations, optimizer phases and LLM calls run inside spans; rollout,
// failure and reward counters are recorded as metrics and exported to
// Prometheus by the serve command.
//
// Example usage:
//
//	tracer := observability.NewPrometheusTracer(observability.PrometheusConfig{})
//	ctx, span := tracer.StartSpan(ctx, observability.SpanOptimizerUpdate)
//	defer tracer.EndSpan(span)
//	span.SetAttribute(observability.AttrSampleCount, 12)
package observability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatusCode represents the final status of a span.
type StatusCode int

const (
	// StatusUnset indicates status was not explicitly set.
	StatusUnset StatusCode = iota
	// StatusOK indicates successful completion.
	StatusOK
	// StatusError indicates an error occurred.
	StatusError
)

func (s StatusCode) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Status represents the final status of a span with optional message.
type Status struct {
	Code    StatusCode
	Message string
}

// Span is a unit of work with timing and metadata.
type Span struct {
	TraceID  string
	SpanID   string
	ParentID string // empty for root spans

	Name       string
	Attributes map[string]interface{}

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration // set by EndSpan

	Status Status
}

// startSpan builds a span named name, applies opts and parents it to any span
// already carried by ctx.
func startSpan(ctx context.Context, name string, opts []SpanOption) (context.Context, *Span) {
	span := &Span{
		TraceID:    uuid.NewString(),
		SpanID:     uuid.NewString(),
		Name:       name,
		StartTime:  time.Now(),
		Attributes: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(span)
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	}
	return ContextWithSpan(ctx, span), span
}

// finish stamps the end time. It reports false for a nil span.
func (s *Span) finish() bool {
	if s == nil {
		return false
	}
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	return true
}

// SetAttribute sets a key-value attribute on the span.
func (s *Span) SetAttribute(key string, value interface{}) {
	if s.Attributes == nil {
		s.Attributes = make(map[string]interface{})
	}
	s.Attributes[key] = value
}

// RecordError marks the span failed and stores the error message.
// A nil error is ignored.
func (s *Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.Status = Status{
		Code:    StatusError,
		Message: err.Error(),
	}
	s.SetAttribute(AttrErrorMessage, err.Error())
	s.SetAttribute(AttrErrorType, "error")
}

// SpanOption is a functional option for configuring spans.
type SpanOption func(*Span)

// WithAttribute returns a SpanOption that sets an attribute.
func WithAttribute(key string, value interface{}) SpanOption {
	return func(s *Span) {
		s.SetAttribute(key, value)
	}
}

// WithSpanKind sets the span.kind attribute ("store", "optimizer", "llm", ...).
func WithSpanKind(kind string) SpanOption {
	return func(s *Span) {
		s.SetAttribute("span.kind", kind)
	}
}
