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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/liverl/pkg/observability"
)

func scoreRequest() ChatRequest {
	return ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "Score agent system prompts."},
			{Role: RoleUser, Content: "Prompt:\nYou are Tau."},
		},
		JSONMode:    true,
		MaxTokens:   64,
		Temperature: 0,
	}
}

func TestScriptedClient(t *testing.T) {
	client := NewScriptedClient(`{"score":0.4}`, "critique")
	ctx := context.Background()

	for _, want := range []string{`{"score":0.4}`, "critique", ScriptedFallback, ScriptedFallback} {
		resp, err := client.Complete(ctx, ChatRequest{})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Text)
	}
	assert.Len(t, client.Requests(), 4)
	assert.Equal(t, 0, client.Remaining())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := client.Complete(cancelled, ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"score\":0.8}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`)
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"})
	resp, err := client.Complete(context.Background(), scoreRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"score":0.8}`, resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 12, resp.InputTokens)
	assert.Equal(t, 4, resp.OutputTokens)

	assert.Equal(t, DefaultOpenAIModel, got["model"])
	format, ok := got["response_format"].(map[string]any)
	require.True(t, ok, "json mode sets response_format")
	assert.Equal(t, "json_object", format["type"])
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestOpenAIClient_Throttled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`)
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL + "/v1"})
	_, err := client.Complete(context.Background(), scoreRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrThrottled)
}

func TestAnthropicClient_Complete(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "{\"score\":0.7}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 6}
		}`)
	}))
	defer server.Close()

	client := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	resp, err := client.Complete(context.Background(), scoreRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"score":0.7}`, resp.Text)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 20, resp.InputTokens)

	assert.Equal(t, float64(64), got["max_tokens"])
	system, ok := got["system"].([]any)
	require.True(t, ok)
	text := system[0].(map[string]any)["text"].(string)
	assert.Contains(t, text, "Score agent system prompts.")
	assert.Contains(t, text, anthropicJSONInstruction)
	messages := got["messages"].([]any)
	require.Len(t, messages, 1, "system messages travel out of band")
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])
}

func TestAnthropicClient_NoMessages(t *testing.T) {
	client := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	_, err := client.Complete(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleSystem, Content: "only system"}},
	})
	assert.ErrorIs(t, err, ErrNoMessages)
}

type flakyClient struct {
	failures int32
	calls    atomic.Int32
	err      error
}

func (f *flakyClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, f.err
	}
	return &ChatResponse{Text: "ok"}, nil
}

func TestRateLimitedClient_RetriesThrottling(t *testing.T) {
	inner := &flakyClient{failures: 2, err: ErrThrottled}
	client := NewRateLimitedClient(inner, RateLimiterConfig{
		RequestsPerSecond: 1000,
		BurstCapacity:     10,
		MaxRetries:        3,
		RetryBackoff:      time.Millisecond,
		Logger:            zaptest.NewLogger(t),
	})

	resp, err := client.Complete(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, int32(3), inner.calls.Load())

	m := client.Metrics()
	assert.Equal(t, int64(3), m.TotalRequests)
	assert.Equal(t, int64(2), m.ThrottledRequests)
}

func TestRateLimitedClient_GivesUp(t *testing.T) {
	inner := &flakyClient{failures: 100, err: errors.New("HTTP 429 Too Many Requests")}
	client := NewRateLimitedClient(inner, RateLimiterConfig{
		RequestsPerSecond: 1000,
		BurstCapacity:     10,
		MaxRetries:        1,
		RetryBackoff:      time.Millisecond,
	})

	_, err := client.Complete(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestRateLimitedClient_NonRetryableError(t *testing.T) {
	boom := errors.New("bad request")
	inner := &flakyClient{failures: 1, err: boom}
	client := NewRateLimitedClient(inner, RateLimiterConfig{RetryBackoff: time.Millisecond})

	_, err := client.Complete(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestRateLimitedClient_CancelledWhileWaiting(t *testing.T) {
	client := NewRateLimitedClient(NewScriptedClient(), RateLimiterConfig{
		RequestsPerSecond: 0.001,
		BurstCapacity:     1,
	})
	_, err := client.Complete(context.Background(), ChatRequest{})
	require.NoError(t, err, "first call uses the burst token")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Complete(ctx, ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, int64(1), client.Metrics().DroppedRequests)
}

func TestInstrumentedClient(t *testing.T) {
	tracer := observability.NewMockTracer()
	client := NewInstrumentedClient(NewScriptedClient(`{"score":1}`), tracer)

	_, err := client.Complete(context.Background(), scoreRequest())
	require.NoError(t, err)

	span := tracer.GetSpanByName(observability.SpanLLMCompletion)
	require.NotNil(t, span)
	assert.Equal(t, "scripted", span.Attributes[observability.AttrLLMProvider])
	assert.Equal(t, true, span.Attributes["llm.json_mode"])
	assert.Equal(t, 1.0, tracer.SumMetric(observability.MetricLLMCalls))
	assert.Equal(t, "scripted", client.Name())

	failing := NewInstrumentedClient(&flakyClient{failures: 1, err: errors.New("down")}, tracer)
	_, err = failing.Complete(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, 1.0, tracer.SumMetric(observability.MetricLLMErrors))
	assert.Equal(t, "unknown", failing.Name())
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(ProviderConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, client)

	client, err = NewClient(ProviderConfig{Provider: "scripted", Script: []string{"hello"}})
	require.NoError(t, err)
	resp, err := client.Complete(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)

	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err = NewClient(ProviderConfig{Provider: "anthropic"})
	assert.Error(t, err)

	client, err = NewClient(ProviderConfig{Provider: "OpenAI", BaseURL: "http://localhost:11434/v1"})
	require.NoError(t, err)
	named, ok := client.(Named)
	require.True(t, ok)
	assert.Equal(t, "openai", named.Name())
	assert.Equal(t, DefaultOpenAIModel, named.Model())

	_, err = NewClient(ProviderConfig{Provider: "bedrock"})
	assert.Error(t, err)
}
