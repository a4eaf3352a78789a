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
	"fmt"
	"os"
	"strings"

	"github.com/teradata-labs/liverl/pkg/observability"
)

// Provider names accepted by NewClient.
const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderScripted  = "scripted"
)

// ProviderConfig selects and configures a chat provider.
type ProviderConfig struct {
	Provider string
	Model    string

	// APIKey defaults to ANTHROPIC_API_KEY or OPENAI_API_KEY.
	APIKey  string
	BaseURL string

	// Script holds the canned replies of the scripted provider.
	Script []string

	RateLimit RateLimiterConfig
	Tracer    observability.Tracer
}

// NewClient builds the configured provider wrapped in instrumentation and
// rate limiting. The "none" provider (or an empty name) returns nil, nil.
func NewClient(cfg ProviderConfig) (ChatClient, error) {
	var base ChatClient
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderNone:
		return nil, nil
	case ProviderAnthropic:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key (set ANTHROPIC_API_KEY)")
		}
		base = NewAnthropicClient(AnthropicConfig{APIKey: key, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case ProviderOpenAI:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai provider requires an API key (set OPENAI_API_KEY) or a base URL")
		}
		base = NewOpenAIClient(OpenAIConfig{APIKey: key, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case ProviderScripted:
		// no rate limit for canned replies
		return NewInstrumentedClient(NewScriptedClient(cfg.Script...), cfg.Tracer), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q (supported: none, anthropic, openai, scripted)", cfg.Provider)
	}
	return NewRateLimitedClient(NewInstrumentedClient(base, cfg.Tracer), cfg.RateLimit), nil
}
