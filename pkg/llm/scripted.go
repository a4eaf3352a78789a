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
	"sync"
)

// ScriptedFallback is returned once a ScriptedClient runs out of replies.
const ScriptedFallback = "fallback output"

// ScriptedClient replays canned replies in order. It backs tests and the
// offline "scripted" provider.
type ScriptedClient struct {
	mu       sync.Mutex
	replies  []string
	requests []ChatRequest
}

// NewScriptedClient returns a client that answers with replies in order.
func NewScriptedClient(replies ...string) *ScriptedClient {
	return &ScriptedClient{replies: append([]string(nil), replies...)}
}

// Name returns the provider name.
func (c *ScriptedClient) Name() string { return "scripted" }

// Model returns the pseudo model name.
func (c *ScriptedClient) Model() string { return "scripted" }

// Complete pops the next reply.
func (c *ScriptedClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)

	text := ScriptedFallback
	if len(c.replies) > 0 {
		text = c.replies[0]
		c.replies = c.replies[1:]
	}
	return &ChatResponse{Text: text, FinishReason: "stop"}, nil
}

// Requests returns the requests received so far.
func (c *ScriptedClient) Requests() []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatRequest(nil), c.requests...)
}

// Remaining returns the number of unplayed replies.
func (c *ScriptedClient) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.replies)
}

var _ ChatClient = (*ScriptedClient)(nil)
