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
package liverl

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/liverl/pkg/algorithm"
	"github.com/teradata-labs/liverl/pkg/metacognition"
	"github.com/teradata-labs/liverl/pkg/observability"
)

// Resource keys written on prompt adoption.
const (
	ResourceSystemPrompt        = "system_prompt"
	ResourceSystemPromptVersion = "system_prompt_version"
	resourceAlgorithm           = "algorithm"
	resourceScore               = "score"
	resourceAlpha               = "apo_significance_alpha"
	resourceDeltaCILow          = "apo_significance_delta_ci_low"
	resourceDeltaCIHigh         = "apo_significance_delta_ci_high"
	resourceSamples             = "apo_samples"
	resourceFocusCategory       = "apo_curriculum_focus_category"
	resourceFocusMeanReward     = "apo_curriculum_focus_mean_reward"

	apoAlgorithmName = "apo_live_runtime"
	apoMaxTokens     = 256
)

// runLiveAPOUpdate runs one prompt-search round over the decisions of
// rolloutIDs and adopts the best prompt only if it is a significant
// improvement. Expected outcomes are reported, not returned as errors.
func (b *Bridge) runLiveAPOUpdate(ctx context.Context, rolloutIDs []string) (*APOReport, error) {
	ctx, span := b.tracer.StartSpan(ctx, observability.SpanAPOUpdate,
		observability.WithAttribute("rollouts", len(rolloutIDs)))
	defer b.tracer.EndSpan(span)

	report, err := b.liveAPO(ctx, rolloutIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttribute(observability.AttrReasonCode, report.ReasonCode)
	span.SetAttribute(observability.AttrSampleCount, report.SampleCount)
	if report.CurriculumFocusCategory != "" {
		span.SetAttribute(observability.AttrCategory, report.CurriculumFocusCategory)
	}
	if report.Adopted {
		b.tracer.RecordMetric(observability.MetricAPOAdopted, 1, nil)
	} else {
		b.tracer.RecordMetric(observability.MetricAPOSkipped, 1, map[string]string{
			observability.AttrReasonCode: reasonLabel(report.ReasonCode),
		})
	}
	b.logger.Info("live APO round finished",
		zap.Bool("executed", report.Executed),
		zap.Bool("adopted", report.Adopted),
		zap.Int("sample_count", report.SampleCount),
		zap.String("reason_code", report.ReasonCode),
		zap.String("curriculum_focus_category", report.CurriculumFocusCategory))
	return report, nil
}

func (b *Bridge) liveAPO(ctx context.Context, rolloutIDs []string) (*APOReport, error) {
	if b.apo == nil || b.apo.Client == nil {
		return SkippedAPO(ReasonAPOMissingRuntime, 0), nil
	}

	collected, err := b.collectLiveAPOSamples(ctx, rolloutIDs)
	if err != nil {
		return nil, err
	}
	latest, err := b.store.GetLatestResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest resources for APO: %w", err)
	}
	var resources map[string]any
	if latest != nil {
		resources = latest.Resources
	}

	samples, focus := SelectCurriculumSamples(collected, b.cfg.APOMaxSamples, curriculumWeights(resources))
	n := len(samples)
	if n < b.cfg.APOMinSamples || n < 2 {
		return SkippedAPOWithCurriculum(ReasonAPOInsufficientSamples, n, focus), nil
	}

	examples := make([]algorithm.PromptExample, n)
	baseline := make([]float64, n)
	for i, s := range samples {
		examples[i] = algorithm.PromptExample{
			Input:    fmt.Sprintf("sample_%d: %s", i+1, s.Prompt),
			Expected: fmt.Sprintf("reward=%.4f; assistant_response=%s", s.Reward, s.Response),
			Reward:   s.Reward,
		}
		baseline[i] = metacognition.NormalizeRewardToQuality(s.Reward)
	}

	evaluator := algorithm.NewLLMPromptEvaluator(b.apo.Client, b.apo.Model)
	evaluator.Tracer = b.tracer
	evaluator.Logger = b.logger
	search := &algorithm.APO{
		Config: algorithm.APOConfig{
			Rounds:              1,
			BeamWidth:           1,
			CandidatesPerParent: 1,
			Temperature:         0,
			MaxTokens:           apoMaxTokens,
			GradientModel:       b.apo.Model,
			EditModel:           b.apo.Model,
		},
		Client:    b.apo.Client,
		Evaluator: evaluator,
		Tracer:    b.tracer,
		Logger:    b.logger,
	}
	summary, err := search.Run(ctx, algorithm.AlgorithmContext{
		Store:      NewNoResourceWriteStore(b.store),
		SeedPrompt: seedPrompt(resources, b.apo.SeedPrompt),
		Train:      examples,
		Validation: examples,
	})
	if err != nil {
		return SkippedAPOWithCurriculum(fmt.Sprintf("%s:%v", reasonAPORunFailed, err), n, focus), nil
	}
	if summary.BestPrompt == nil {
		return SkippedAPOWithCurriculum(ReasonAPONoBestPrompt, n, focus), nil
	}
	best := *summary.BestPrompt
	score := clampUnit(best.Score)

	baselineMean := metacognition.Mean(baseline)
	delta := score - baselineMean
	candidate := make([]float64, n)
	for i, q := range baseline {
		candidate[i] = clampUnit(q + delta)
	}
	candidateMean := metacognition.Mean(candidate)

	sig, err := b.comparer.Compare(baseline, candidate, b.cfg.APOSignificanceAlpha)
	if err != nil {
		return SkippedAPOWithCurriculum(fmt.Sprintf("%s:%v", reasonAPOSignificanceFailed, err), n, focus), nil
	}

	report := &APOReport{
		Executed:            true,
		SampleCount:         n,
		BaselineMeanReward:  ptr(baselineMean),
		CandidateMeanReward: ptr(candidateMean),
		BestPromptVersion:   best.Version,
		BestPromptScore:     ptr(score),
	}
	report.applyFocus(focus)
	if !sig.IsSignificantImprovement || sig.MeanDelta <= 0 {
		report.ReasonCode = ReasonAPONoSignificantImprovement
		return report, nil
	}

	adoption := map[string]any{
		ResourceSystemPrompt:        best.Prompt,
		ResourceSystemPromptVersion: best.Version,
		resourceAlgorithm:           apoAlgorithmName,
		resourceScore:               score,
		resourceAlpha:               b.cfg.APOSignificanceAlpha,
		resourceDeltaCILow:          sig.DeltaCILow,
		resourceDeltaCIHigh:         sig.DeltaCIHigh,
		resourceSamples:             n,
	}
	if focus.Valid {
		adoption[resourceFocusCategory] = focus.Category
		adoption[resourceFocusMeanReward] = focus.MeanReward
	}
	if _, err := b.store.UpdateResources(ctx, mergeResources(resources, adoption)); err != nil {
		return nil, fmt.Errorf("failed to persist live APO prompt adoption: %w", err)
	}
	report.Adopted = true
	report.ReasonCode = ReasonAPOAdopted
	return report, nil
}

// collectLiveAPOSamples reads the latest decision of each rollout. Records
// without a prompt, a response or a finite reward are skipped.
func (b *Bridge) collectLiveAPOSamples(ctx context.Context, rolloutIDs []string) ([]LiveAPOSample, error) {
	var samples []LiveAPOSample
	for _, id := range rolloutIDs {
		decision, ok, err := latestDecisionSpan(ctx, b.store, id)
		if err != nil {
			return nil, fmt.Errorf("failed to collect APO samples: %w", err)
		}
		if !ok {
			continue
		}
		prompt, _ := decision.String(attrPrompt)
		response, _ := decision.String(attrAssistantText)
		prompt, response = strings.TrimSpace(prompt), strings.TrimSpace(response)
		reward, _ := decision.Float(attrReward)
		if prompt == "" || response == "" || math.IsNaN(reward) || math.IsInf(reward, 0) {
			continue
		}
		samples = append(samples, LiveAPOSample{
			Prompt:   prompt,
			Response: response,
			Reward:   reward,
			Category: spanCategory(decision),
		})
	}
	return samples, nil
}

// seedPrompt prefers the adopted system prompt over the fallback.
func seedPrompt(resources map[string]any, fallback string) string {
	if p, ok := resources[ResourceSystemPrompt].(string); ok && strings.TrimSpace(p) != "" {
		return strings.TrimSpace(p)
	}
	return fallback
}

// reasonLabel strips the error text from prefixed reason codes so metric
// labels stay low-cardinality.
func reasonLabel(code string) string {
	if i := strings.IndexByte(code, ':'); i >= 0 {
		return code[:i]
	}
	return code
}
