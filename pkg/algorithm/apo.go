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
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/liverl/pkg/llm"
	"github.com/teradata-labs/liverl/pkg/observability"
	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

// SeedVersion labels the unmodified seed prompt.
const SeedVersion = "seed"

// ErrMissingSeedPrompt is returned when Run has no seed prompt.
var ErrMissingSeedPrompt = errors.New("apo requires a non-empty seed prompt")

// APOConfig bounds the prompt search.
type APOConfig struct {
	Rounds              int
	BeamWidth           int
	CandidatesPerParent int
	Temperature         float64
	MaxTokens           int
	// CritiqueExamples caps the low-reward examples shown to the critic.
	CritiqueExamples int
	GradientModel    string
	EditModel        string
}

// DefaultAPOConfig returns a small search: 2 rounds, beam 2, 2 candidates.
func DefaultAPOConfig() APOConfig {
	return APOConfig{
		Rounds:              2,
		BeamWidth:           2,
		CandidatesPerParent: 2,
		Temperature:         0.7,
		MaxTokens:           512,
		CritiqueExamples:    4,
	}
}

// AlgorithmContext is the input of a prompt-search run.
type AlgorithmContext struct {
	// Store receives one resources record per round. May be nil.
	Store      trainingstore.Store
	SeedPrompt string
	Train      []PromptExample
	Validation []PromptExample
}

// BestPrompt is a scored prompt. As AlgorithmSummary.BestPrompt it is the
// highest-scoring generated candidate; the seed never qualifies.
type BestPrompt struct {
	Prompt  string  `json:"prompt"`
	Version string  `json:"version"`
	Score   float64 `json:"score"`
}

// RoundSummary records the beam after one round.
type RoundSummary struct {
	Round      int          `json:"round"`
	Candidates int          `json:"candidates"`
	Beam       []BestPrompt `json:"beam"`
}

// AlgorithmSummary is the result of APO.Run.
type AlgorithmSummary struct {
	// BestPrompt is nil when no round produced a candidate.
	BestPrompt  *BestPrompt    `json:"best_prompt,omitempty"`
	Rounds      []RoundSummary `json:"rounds"`
	Evaluations int            `json:"evaluations"`
}

// APO searches for a better system prompt with textual gradients: a critic
// model explains what the parent prompt gets wrong on low-reward examples,
// an editor model rewrites the prompt from that critique, and the evaluator
// keeps the top BeamWidth prompts each round.
type APO struct {
	Config    APOConfig
	Client    llm.ChatClient
	Evaluator PromptEvaluator
	Tracer    observability.Tracer
	Logger    *zap.Logger
}

type scoredPrompt struct {
	BestPrompt
	scored bool
}

// Run executes Config.Rounds rounds starting from actx.SeedPrompt. Within a
// round the model is called in the order: score unscored beam prompts, then
// per candidate a critique followed by an edit, then score the candidates.
// Empty rewrites and rewrites identical to their parent are dropped.
func (a *APO) Run(ctx context.Context, actx AlgorithmContext) (*AlgorithmSummary, error) {
	if strings.TrimSpace(actx.SeedPrompt) == "" {
		return nil, ErrMissingSeedPrompt
	}
	if a.Client == nil {
		return nil, errors.New("apo requires a chat client")
	}
	if a.Evaluator == nil {
		return nil, errors.New("apo requires a prompt evaluator")
	}
	cfg := a.Config
	if cfg.BeamWidth <= 0 {
		cfg.BeamWidth = 1
	}
	if cfg.CandidatesPerParent <= 0 {
		cfg.CandidatesPerParent = 1
	}
	if cfg.CritiqueExamples <= 0 {
		cfg.CritiqueExamples = 4
	}
	tracer := a.Tracer
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	logger := a.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	summary := &AlgorithmSummary{}
	beam := []scoredPrompt{{BestPrompt: BestPrompt{Prompt: actx.SeedPrompt, Version: SeedVersion}}}
	var best *BestPrompt

	for round := 1; round <= cfg.Rounds; round++ {
		roundCtx, span := tracer.StartSpan(ctx, observability.SpanAPORound,
			observability.WithAttribute("round", round))

		err := a.scoreAll(roundCtx, beam, actx.Validation, summary)
		if err != nil {
			span.RecordError(err)
			tracer.EndSpan(span)
			return nil, err
		}

		var candidates []scoredPrompt
		for _, parent := range beam {
			for c := 0; c < cfg.CandidatesPerParent; c++ {
				prompt, err := a.propose(roundCtx, cfg, parent.Prompt, actx.Train)
				if err != nil {
					span.RecordError(err)
					tracer.EndSpan(span)
					return nil, err
				}
				if prompt == "" || prompt == parent.Prompt {
					continue
				}
				candidates = append(candidates, scoredPrompt{BestPrompt: BestPrompt{
					Prompt:  prompt,
					Version: fmt.Sprintf("apo-r%d-c%d", round, len(candidates)+1),
				}})
			}
		}

		if err := a.scoreAll(roundCtx, candidates, actx.Validation, summary); err != nil {
			span.RecordError(err)
			tracer.EndSpan(span)
			return nil, err
		}

		pool := append(beam, candidates...)
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].Score > pool[j].Score })
		if len(pool) > cfg.BeamWidth {
			pool = pool[:cfg.BeamWidth]
		}
		beam = pool

		top := beam[0].BestPrompt
		for _, c := range candidates {
			if best == nil || c.Score > best.Score {
				found := c.BestPrompt
				best = &found
			}
		}

		rs := RoundSummary{Round: round, Candidates: len(candidates)}
		for _, p := range beam {
			rs.Beam = append(rs.Beam, p.BestPrompt)
		}
		summary.Rounds = append(summary.Rounds, rs)

		if actx.Store != nil {
			if _, err := actx.Store.UpdateResources(roundCtx, map[string]any{
				"system_prompt":         top.Prompt,
				"system_prompt_version": top.Version,
				"score":                 top.Score,
				"algorithm":             "apo",
				"apo_round":             round,
			}); err != nil {
				span.RecordError(err)
				tracer.EndSpan(span)
				return nil, fmt.Errorf("failed to record apo round %d: %w", round, err)
			}
		}

		span.SetAttribute("best_version", top.Version)
		span.SetAttribute("best_score", top.Score)
		tracer.EndSpan(span)
		logger.Debug("apo round complete",
			zap.Int("round", round),
			zap.Int("candidates", len(candidates)),
			zap.String("best_version", top.Version),
			zap.Float64("best_score", top.Score))
	}

	summary.BestPrompt = best
	return summary, nil
}

func (a *APO) scoreAll(ctx context.Context, prompts []scoredPrompt, dataset []PromptExample, summary *AlgorithmSummary) error {
	for i := range prompts {
		if prompts[i].scored {
			continue
		}
		score, err := a.Evaluator.ScorePrompt(ctx, prompts[i].Prompt, dataset)
		if err != nil {
			return fmt.Errorf("failed to score prompt %s: %w", prompts[i].Version, err)
		}
		prompts[i].Score = clampUnit(score)
		prompts[i].scored = true
		summary.Evaluations++
	}
	return nil
}

// propose asks for a critique of parent and then for a rewrite following it.
func (a *APO) propose(ctx context.Context, cfg APOConfig, parent string, train []PromptExample) (string, error) {
	critique, err := a.Client.Complete(ctx, llm.ChatRequest{
		Model: cfg.GradientModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You review agent system prompts. Name the single most important change that would raise task rewards."},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Prompt:\n%s\n\nLowest-reward examples:\n%s\n\nReturn the critique only.",
				parent, renderExamples(lowestReward(train, cfg.CritiqueExamples)))},
		},
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("apo critique failed: %w", err)
	}

	edit, err := a.Client.Complete(ctx, llm.ChatRequest{
		Model: cfg.EditModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You rewrite agent system prompts. Return only the rewritten prompt."},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Prompt:\n%s\n\nCritique:\n%s\n\nRewritten prompt:",
				parent, strings.TrimSpace(critique.Text))},
		},
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("apo edit failed: %w", err)
	}
	return strings.TrimSpace(edit.Text), nil
}

func lowestReward(examples []PromptExample, n int) []PromptExample {
	sorted := append([]PromptExample(nil), examples...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Reward < sorted[j].Reward })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
