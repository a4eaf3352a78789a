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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/liverl/pkg/llm"
	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

func TestParseScoreFromText(t *testing.T) {
	tests := []struct {
		text  string
		score float64
		ok    bool
	}{
		{`{"score":0.42}`, 0.42, true},
		{` {"score": 1.7} `, 1, true},
		{`{"score":-3}`, 0, true},
		{"0.8", 0.8, true},
		{"score is 0.65 overall", 0.65, true},
		{"rating: -0.2", 0, true},
		{"- . 0.3", 0.3, true},
		{`{"quality":0.9}`, 0.9, true},
		{"no digits here", 0, false},
		{"", 0, false},
		{"   ", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			score, ok := ParseScoreFromText(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.score, score, 1e-12)
		})
	}
}

func TestFallbackPromptScore(t *testing.T) {
	assert.InDelta(t, 0.3+0.2*2.0/300, FallbackPromptScore("hi", nil), 1e-12)

	prompt := "Verify results, stay deterministic and concise, be safe, handle every error, use each tool, plan first."
	chars := float64(len(prompt))
	examples := make([]PromptExample, 4)
	want := 0.3 + 0.4 + 0.2*chars/300 + 0.1*0.5
	assert.InDelta(t, want, FallbackPromptScore(prompt, examples), 1e-12)

	long := strings.Repeat("x", 600)
	assert.InDelta(t, 0.5+0.1, FallbackPromptScore(long, make([]PromptExample, 20)), 1e-12)
}

func TestLLMPromptEvaluator(t *testing.T) {
	ctx := context.Background()
	dataset := []PromptExample{{Input: "sample_0: status", Expected: "reward=0.7500; assistant_response=ok"}}

	client := llm.NewScriptedClient(`{"score":0.91}`, "not a number")
	evaluator := NewLLMPromptEvaluator(client, "judge-model")

	score, err := evaluator.ScorePrompt(ctx, "You are Tau.", dataset)
	require.NoError(t, err)
	assert.Equal(t, 0.91, score)

	req := client.Requests()[0]
	assert.Equal(t, "judge-model", req.Model)
	assert.True(t, req.JSONMode)
	assert.Equal(t, 64, req.MaxTokens)
	assert.Zero(t, req.Temperature)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, scorerSystemPrompt, req.Messages[0].Content)
	assert.Equal(t,
		"Prompt:\nYou are Tau.\n\nExamples:\n1. input=sample_0: status expected=reward=0.7500; assistant_response=ok\n\nReturn JSON score.",
		req.Messages[1].Content)

	score, err = evaluator.ScorePrompt(ctx, "You are Tau.", nil)
	require.NoError(t, err)
	assert.Equal(t, FallbackPromptScore("You are Tau.", nil), score)
	assert.Contains(t, client.Requests()[1].Messages[1].Content, "(no examples)")

	offline := &LLMPromptEvaluator{}
	score, err = offline.ScorePrompt(ctx, "plan", nil)
	require.NoError(t, err)
	assert.Equal(t, FallbackPromptScore("plan", nil), score)
}

func TestRenderExamples_CapsAtEight(t *testing.T) {
	examples := make([]PromptExample, 12)
	rendered := renderExamples(examples)
	assert.Equal(t, 8, strings.Count(rendered, "input="))
	assert.True(t, strings.HasPrefix(rendered, "1. input="))
}

type staticEvaluator map[string]float64

func (s staticEvaluator) ScorePrompt(ctx context.Context, prompt string, dataset []PromptExample) (float64, error) {
	return s[prompt], nil
}

func TestAPO_SingleRoundCallOrder(t *testing.T) {
	ctx := context.Background()
	client := llm.NewScriptedClient(
		`{"score":0.12}`,
		"Add deterministic verification and concise plan-first structure.",
		"You are Tau. Verify outcomes, be concise, and include deterministic checks.",
		`{"score":0.95}`,
	)
	store := trainingstore.NewMemoryStore(nil)
	apo := &APO{
		Config:    APOConfig{Rounds: 1, BeamWidth: 1, CandidatesPerParent: 1, MaxTokens: 256},
		Client:    client,
		Evaluator: NewLLMPromptEvaluator(client, ""),
	}

	summary, err := apo.Run(ctx, AlgorithmContext{
		Store:      store,
		SeedPrompt: "You are Tau.",
		Train:      []PromptExample{{Input: "sample_0: status", Expected: "reward=1.0000; assistant_response=ok", Reward: 1}},
	})
	require.NoError(t, err)
	require.NotNil(t, summary.BestPrompt)
	assert.Equal(t, "apo-r1-c1", summary.BestPrompt.Version)
	assert.Equal(t, 0.95, summary.BestPrompt.Score)
	assert.Contains(t, summary.BestPrompt.Prompt, "deterministic checks")
	assert.Equal(t, 2, summary.Evaluations)
	assert.Equal(t, 0, client.Remaining())

	requests := client.Requests()
	require.Len(t, requests, 4)
	assert.True(t, requests[0].JSONMode, "seed score")
	assert.Contains(t, requests[1].Messages[1].Content, "Lowest-reward examples", "critique")
	assert.Contains(t, requests[2].Messages[1].Content, "Critique:\nAdd deterministic verification", "edit")
	assert.Equal(t, 256, requests[2].MaxTokens)
	assert.True(t, requests[3].JSONMode, "candidate score")

	latest, err := store.GetLatestResources(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "apo-r1-c1", latest.Resources["system_prompt_version"])
}

func TestAPO_SeedKeepsBeamOnTiesButIsNeverBest(t *testing.T) {
	client := llm.NewScriptedClient("critique", "You are Tau, v2.")
	apo := &APO{
		Config:    APOConfig{Rounds: 1, BeamWidth: 1, CandidatesPerParent: 1},
		Client:    client,
		Evaluator: staticEvaluator{"You are Tau.": 0.53, "You are Tau, v2.": 0.53},
	}
	summary, err := apo.Run(context.Background(), AlgorithmContext{SeedPrompt: "You are Tau."})
	require.NoError(t, err)
	require.Len(t, summary.Rounds, 1)
	assert.Equal(t, SeedVersion, summary.Rounds[0].Beam[0].Version)
	require.NotNil(t, summary.BestPrompt)
	assert.Equal(t, "apo-r1-c1", summary.BestPrompt.Version)
	assert.Equal(t, 0.53, summary.BestPrompt.Score)
}

func TestAPO_NoCandidateMeansNoBestPrompt(t *testing.T) {
	tests := []struct {
		name string
		edit string
	}{
		{name: "empty rewrite", edit: "   "},
		{name: "rewrite equals seed", edit: "You are Tau."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apo := &APO{
				Config:    APOConfig{Rounds: 1, BeamWidth: 1, CandidatesPerParent: 1},
				Client:    llm.NewScriptedClient("critique", tt.edit),
				Evaluator: staticEvaluator{"You are Tau.": 0.95},
			}
			summary, err := apo.Run(context.Background(), AlgorithmContext{SeedPrompt: "You are Tau."})
			require.NoError(t, err)
			assert.Nil(t, summary.BestPrompt)
			require.Len(t, summary.Rounds, 1)
			assert.Zero(t, summary.Rounds[0].Candidates)
			assert.Equal(t, 1, summary.Evaluations)
		})
	}
}

func TestAPO_MultiRoundBeam(t *testing.T) {
	// every edit returns the fallback text once the script runs out
	client := llm.NewScriptedClient("c1", "p1", "c2", "p2")
	apo := &APO{
		Config:    APOConfig{Rounds: 2, BeamWidth: 2, CandidatesPerParent: 1},
		Client:    client,
		Evaluator: staticEvaluator{"seed": 0.2, "p1": 0.6, "p2": 0.4, llm.ScriptedFallback: 0.1},
	}
	summary, err := apo.Run(context.Background(), AlgorithmContext{SeedPrompt: "seed"})
	require.NoError(t, err)
	require.Len(t, summary.Rounds, 2)

	// round 1: seed -> p1
	assert.Equal(t, []BestPrompt{
		{Prompt: "p1", Version: "apo-r1-c1", Score: 0.6},
		{Prompt: "seed", Version: SeedVersion, Score: 0.2},
	}, summary.Rounds[0].Beam)
	// round 2: p1 -> p2, seed -> fallback
	assert.Equal(t, 2, summary.Rounds[1].Candidates)
	assert.Equal(t, "p1", summary.Rounds[1].Beam[0].Prompt)
	assert.Equal(t, "p2", summary.Rounds[1].Beam[1].Prompt)
	assert.Equal(t, "p1", summary.BestPrompt.Prompt)
	assert.Equal(t, 4, summary.Evaluations)
}

type erroringClient struct{}

func (erroringClient) Complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("upstream unavailable")
}

func TestAPO_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := (&APO{Client: llm.NewScriptedClient(), Evaluator: staticEvaluator{}}).Run(ctx, AlgorithmContext{})
	assert.True(t, errors.Is(err, ErrMissingSeedPrompt))

	_, err = (&APO{Evaluator: staticEvaluator{}}).Run(ctx, AlgorithmContext{SeedPrompt: "x"})
	assert.Error(t, err)

	apo := &APO{Config: APOConfig{Rounds: 1}, Client: erroringClient{}, Evaluator: staticEvaluator{}}
	_, err = apo.Run(ctx, AlgorithmContext{SeedPrompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apo critique failed")

	summary, err := (&APO{Client: llm.NewScriptedClient(), Evaluator: staticEvaluator{}}).Run(ctx, AlgorithmContext{SeedPrompt: "x"})
	require.NoError(t, err)
	assert.Nil(t, summary.BestPrompt, "zero rounds finds nothing")
}
