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

// Package llm is the chat-completion layer used by prompt optimization: a
// minimal ChatClient contract, Anthropic and OpenAI implementations, and
// wrappers for rate limiting and instrumentation.
package llm

import (
	"context"
	"errors"
)

// Role names the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// ChatRequest is a single completion request.
type ChatRequest struct {
	// Model overrides the client's default model when set.
	Model    string
	Messages []Message

	// JSONMode asks the provider for a single JSON object reply.
	JSONMode    bool
	MaxTokens   int
	Temperature float64
}

// ChatResponse is the provider's reply.
type ChatResponse struct {
	Text         string
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// ChatClient completes chat requests.
type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Named is implemented by clients that report a provider and model for
// instrumentation labels.
type Named interface {
	Name() string
	Model() string
}

var (
	// ErrThrottled marks provider rate-limit rejections (HTTP 429).
	ErrThrottled = errors.New("llm request throttled")
	// ErrEmptyResponse is returned when the provider sends no content.
	ErrEmptyResponse = errors.New("llm returned no content")
	// ErrNoMessages is returned for a request without messages.
	ErrNoMessages = errors.New("llm request has no messages")
)

// splitSystem separates system messages from the conversation. Providers that
// take the system prompt out of band receive the joined system text.
func splitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func nameOf(client ChatClient) (string, string) {
	if n, ok := client.(Named); ok {
		return n.Name(), n.Model()
	}
	return "unknown", ""
}
