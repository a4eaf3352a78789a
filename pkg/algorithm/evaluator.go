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
package algorithm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/teradata-labs/liverl/pkg/llm"
	"github.com/teradata-labs/liverl/pkg/observability"
)

// PromptExample is a training or validation example for prompt search.
type PromptExample struct {
	Input    string  `json:"input"`
	Expected string  `json:"expected"`
	Reward   float64 `json:"reward"`
}

// PromptEvaluator scores a system prompt against a dataset in [0, 1].
type PromptEvaluator interface {
	ScorePrompt(ctx context.Context, prompt string, dataset []PromptExample) (float64, error)
}

const (
	scorerSystemPrompt = `Score agent system prompts for expected task quality. Return JSON: {"score": <0..1>} only.`
	scorerMaxExamples  = 8
	scorerMaxTokens    = 64
)

// LLMPromptEvaluator asks a chat model for a JSON score. Failed calls and
// unparsable replies fall back to FallbackPromptScore, so ScorePrompt never
// returns an error.
type LLMPromptEvaluator struct {
	Client llm.ChatClient
	Model  string
	Tracer observability.Tracer
	Logger *zap.Logger
}

// NewLLMPromptEvaluator creates an evaluator for client.
func NewLLMPromptEvaluator(client llm.ChatClient, model string) *LLMPromptEvaluator {
	return &LLMPromptEvaluator{Client: client, Model: model}
}

// ScorePrompt implements PromptEvaluator.
func (e *LLMPromptEvaluator) ScorePrompt(ctx context.Context, prompt string, dataset []PromptExample) (float64, error) {
	tracer := e.Tracer
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, span := tracer.StartSpan(ctx, observability.SpanPromptScore)
	defer tracer.EndSpan(span)

	req := llm.ChatRequest{
		Model: e.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: scorerSystemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Prompt:\n%s\n\nExamples:\n%s\n\nReturn JSON score.", prompt, renderExamples(dataset))},
		},
		JSONMode:    true,
		MaxTokens:   scorerMaxTokens,
		Temperature: 0,
	}

	if e.Client != nil {
		resp, err := e.Client.Complete(ctx, req)
		if err == nil {
			if score, ok := ParseScoreFromText(resp.Text); ok {
				span.SetAttribute("score.source", "llm")
				span.SetAttribute("score", score)
				return score, nil
			}
			logger.Debug("unparsable prompt score, using fallback", zap.String("reply", resp.Text))
		} else {
			logger.Debug("prompt score call failed, using fallback", zap.Error(err))
		}
	}

	score := FallbackPromptScore(prompt, dataset)
	span.SetAttribute("score.source", "fallback")
	span.SetAttribute("score", score)
	return score, nil
}

func renderExamples(dataset []PromptExample) string {
	if len(dataset) == 0 {
		return "(no examples)"
	}
	n := min(len(dataset), scorerMaxExamples)
	lines := make([]string, n)
	for i := 0; i < n; i++ {
		lines[i] = fmt.Sprintf("%d. input=%s expected=%s", i+1, dataset[i].Input, dataset[i].Expected)
	}
	return strings.Join(lines, "\n")
}

// ParseScoreFromText extracts a score from a model reply: a JSON object's
// "score" field, else the whole text as a number, else the first numeric
// token. Scores are clamped to [0, 1].
func ParseScoreFromText(text string) (float64, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		if score, ok := obj["score"].(float64); ok {
			return clampUnit(score), true
		}
	}

	if score, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(score) {
		return clampUnit(score), true
	}

	tokens := strings.FieldsFunc(trimmed, func(r rune) bool {
		return !(r >= '0' && r <= '9' || r == '.' || r == '-')
	})
	for _, token := range tokens {
		if token == "-" || token == "." {
			continue
		}
		if score, err := strconv.ParseFloat(token, 64); err == nil {
			return clampUnit(score), true
		}
	}
	return 0, false
}

var promptKeywords = []string{"verify", "deterministic", "concise", "safe", "error", "tool", "plan"}

// FallbackPromptScore is a heuristic used when no model score is available:
// 0.3 + 0.4·keyword coverage + 0.2·length (saturating at 300 chars) + 0.1·
// dataset size (saturating at 8 examples).
func FallbackPromptScore(prompt string, dataset []PromptExample) float64 {
	lower := strings.ToLower(prompt)
	hits := 0
	for _, kw := range promptKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	keywordScore := clampUnit(float64(hits) / float64(len(promptKeywords)))
	lengthScore := clampUnit(float64(utf8.RuneCountInString(prompt)) / 300)
	datasetScore := clampUnit(float64(len(dataset)) / 8)
	return clampUnit(0.3 + 0.4*keywordScore + 0.2*lengthScore + 0.1*datasetScore)
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
