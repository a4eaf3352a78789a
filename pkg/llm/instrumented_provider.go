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
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/teradata-labs/liverl/pkg/observability"
)

// InstrumentedClient wraps any ChatClient with a span per call and the
// llm.calls, llm.latency and llm.errors metrics.
type InstrumentedClient struct {
	inner  ChatClient
	tracer observability.Tracer
}

// NewInstrumentedClient wraps inner. A nil tracer records nothing.
func NewInstrumentedClient(inner ChatClient, tracer observability.Tracer) *InstrumentedClient {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return &InstrumentedClient{inner: inner, tracer: tracer}
}

// Name reports the inner client's provider.
func (c *InstrumentedClient) Name() string {
	name, _ := nameOf(c.inner)
	return name
}

// Model reports the inner client's model.
func (c *InstrumentedClient) Model() string {
	_, model := nameOf(c.inner)
	return model
}

// Complete forwards req and records the outcome.
func (c *InstrumentedClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	provider, model := nameOf(c.inner)
	if req.Model != "" {
		model = req.Model
	}
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanLLMCompletion,
		observability.WithAttribute(observability.AttrLLMProvider, provider),
		observability.WithAttribute(observability.AttrLLMModel, model))
	defer c.tracer.EndSpan(span)

	span.SetAttribute("llm.messages.count", len(req.Messages))
	span.SetAttribute("llm.json_mode", req.JSONMode)
	labels := map[string]string{
		observability.AttrLLMProvider: provider,
		observability.AttrLLMModel:    model,
	}

	start := time.Now()
	resp, err := c.inner.Complete(ctx, req)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		c.tracer.RecordMetric(observability.MetricLLMErrors, 1, map[string]string{
			observability.AttrLLMProvider: provider,
			observability.AttrLLMModel:    model,
			observability.AttrErrorType:   fmt.Sprintf("%T", err),
		})
		return nil, err
	}

	span.Status = observability.Status{Code: observability.StatusOK}
	span.SetAttribute("llm.tokens.input", resp.InputTokens)
	span.SetAttribute("llm.tokens.output", resp.OutputTokens)
	span.SetAttribute("llm.stop_reason", resp.FinishReason)
	span.SetAttribute("llm.content.length", len(resp.Text))

	c.tracer.RecordMetric(observability.MetricLLMCalls, 1, labels)
	c.tracer.RecordMetric(observability.MetricLLMLatency, duration.Seconds(), labels)
	return resp, nil
}

var _ ChatClient = (*InstrumentedClient)(nil)
