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

// Package rewards turns the observable signals of one agent run into a
// deterministic, multi-component reward.
//
// Every component is bounded and the composite lives in [-1, 1]:
//
//	completion          0.5 when the run produced a reply
//	session_completion  0 when the session completed, else -0.25
//	reliability         -0.125 per tool error, capped at 4 errors
//	efficiency          0.5 for <= 2 turns, 0.25 for <= 4 turns
//	token_efficiency    reply/prompt length ratio in [-0.25, 0.25]
//	safety              -1 when a safety policy blocked the run
//
// The composite sums completion, session_completion, reliability and
// efficiency. token_efficiency is reported for analysis only and never moves
// the composite. A blocked run always scores -1 regardless of the other
// components.
package rewards

import "math"

// Input holds the signals of one finished run.
type Input struct {
	HasCompletion        bool
	HasSessionCompletion bool
	ToolErrors           int
	SafetyBlocked        bool
	Turns                int
	PromptChars          int
	ReplyChars           int
}

// Breakdown is the reward of one run split into named components.
type Breakdown struct {
	Composite         float64
	Completion        float64
	SessionCompletion float64
	Reliability       float64
	Safety            float64
	Efficiency        float64
	TokenEfficiency   float64
	Confidence        float64
}

// Attributes returns the breakdown keyed by the attribute names used on
// decision records.
func (b Breakdown) Attributes() map[string]any {
	return map[string]any{
		"reward":                    b.Composite,
		"reward_completion":         b.Completion,
		"reward_session_completion": b.SessionCompletion,
		"reward_reliability":        b.Reliability,
		"reward_safety":             b.Safety,
		"reward_efficiency":         b.Efficiency,
		"reward_token_efficiency":   b.TokenEfficiency,
		"reward_confidence":         b.Confidence,
	}
}

// RewardInference scores a run. Implementations must be pure.
type RewardInference interface {
	Infer(in Input) Breakdown
}

const (
	completionReward       = 0.5
	missingSessionPenalty  = -0.25
	toolErrorPenalty       = -0.125
	maxPenalizedToolErrors = 4
	tokenEfficiencyBound   = 0.25
	// Reply/prompt ratio at which token efficiency turns neutral.
	neutralLengthRatio = 2.0
	lengthRatioSpan    = 14.0
)

// TraceBasedRewardInference is the production reward function.
type TraceBasedRewardInference struct{}

// NewTraceBasedRewardInference returns the production reward function.
func NewTraceBasedRewardInference() TraceBasedRewardInference {
	return TraceBasedRewardInference{}
}

// Infer computes the reward breakdown for in.
func (TraceBasedRewardInference) Infer(in Input) Breakdown {
	var b Breakdown

	if in.HasCompletion {
		b.Completion = completionReward
	}
	if !in.HasSessionCompletion {
		b.SessionCompletion = missingSessionPenalty
	}

	errs := in.ToolErrors
	if errs < 0 {
		errs = 0
	}
	if errs > maxPenalizedToolErrors {
		errs = maxPenalizedToolErrors
	}
	b.Reliability = toolErrorPenalty * float64(errs)

	switch {
	case in.Turns <= 2:
		b.Efficiency = 0.5
	case in.Turns <= 4:
		b.Efficiency = 0.25
	}

	if in.HasCompletion {
		b.TokenEfficiency = tokenEfficiency(in.PromptChars, in.ReplyChars)
	}

	if in.SafetyBlocked {
		b.Safety = -1
	}

	if in.SafetyBlocked {
		b.Composite = -1
	} else {
		sum := b.Completion + b.SessionCompletion + b.Reliability + b.Efficiency
		b.Composite = clamp(sum, -1, 1)
	}

	confidence := 0.5
	if in.HasCompletion {
		confidence += 0.25
	}
	if in.Turns > 0 || in.HasCompletion {
		confidence += 0.25
	}
	b.Confidence = clamp(confidence, 0, 1)

	return b
}

// tokenEfficiency rewards replies up to twice the prompt length and
// penalizes replies that balloon past it.
func tokenEfficiency(promptChars, replyChars int) float64 {
	prompt := promptChars
	if prompt < 1 {
		prompt = 1
	}
	ratio := float64(replyChars) / float64(prompt)
	score := tokenEfficiencyBound - 2*tokenEfficiencyBound*(ratio-neutralLengthRatio)/lengthRatioSpan
	return clamp(score, -tokenEfficiencyBound, tokenEfficiencyBound)
}

// Fixed returns the same breakdown for every input.
type Fixed struct {
	Breakdown Breakdown
}

// Infer returns f.Breakdown.
func (f Fixed) Infer(Input) Breakdown {
	return f.Breakdown
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

var (
	_ RewardInference = TraceBasedRewardInference{}
	_ RewardInference = Fixed{}
)
