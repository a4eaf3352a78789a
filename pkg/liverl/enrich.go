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
	"sort"
	"strings"

	"github.com/teradata-labs/liverl/pkg/metacognition"
	"github.com/teradata-labs/liverl/pkg/observability"
	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

// historyWindow bounds how many recent rollouts feed category diagnostics.
const historyWindow = 32

// enrichDecisionSpan fills the history dependent fields of a decision record
// from recent decisions in the same task category.
func (b *Bridge) enrichDecisionSpan(ctx context.Context, span *trainingstore.Span) error {
	ctx, tspan := b.tracer.StartSpan(ctx, observability.SpanBridgeEnrich,
		observability.WithAttribute(observability.AttrRolloutID, span.RolloutID))
	defer b.tracer.EndSpan(tspan)

	category := spanCategory(*span)
	span.Attributes[attrTaskCategory] = category
	tspan.SetAttribute(observability.AttrCategory, category)

	history, err := b.recentCategoryOutcomes(ctx, category, historyWindow)
	if err != nil {
		tspan.RecordError(err)
		return err
	}

	trend := metacognition.ClassifyLearningTrend(metacognition.Rewards(history))
	span.Attributes[attrLearningTrend] = trend
	span.Attributes[attrHistoricalSamples] = len(history)
	tspan.SetAttribute(observability.AttrSampleCount, len(history))
	if len(history) == 0 {
		return nil
	}

	rate := metacognition.SuccessRate(history)
	span.Attributes[attrHistoricalSuccessRate] = rate
	span.Attributes[attrHistoricalCalibrationError] = metacognition.MeanCalibrationError(history)
	span.Attributes[attrAskForHelp] = metacognition.ShouldAskForHelp(len(history), rate, trend)
	return nil
}

// recentCategoryOutcomes returns the outcomes of the last limit live
// rollouts whose decision record falls in category, oldest first.
func (b *Bridge) recentCategoryOutcomes(ctx context.Context, category string, limit int) ([]metacognition.Outcome, error) {
	ids, err := recentLiveRolloutIDs(ctx, b.store, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query succeeded rollouts for category outcomes: %w", err)
	}
	var outcomes []metacognition.Outcome
	for _, id := range ids {
		decision, ok, err := latestDecisionSpan(ctx, b.store, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		outcome, ok := parseCategoryOutcome(decision)
		if ok && outcome.Category == category {
			outcomes = append(outcomes, outcome)
		}
	}
	return outcomes, nil
}

// RecentOutcomes reads the newest limit live decision records in store,
// oldest first. limit <= 0 reads all of them.
func RecentOutcomes(ctx context.Context, store trainingstore.Store, limit int) ([]metacognition.Outcome, error) {
	ids, err := recentLiveRolloutIDs(ctx, store, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query succeeded live rollouts: %w", err)
	}
	outcomes := make([]metacognition.Outcome, 0, len(ids))
	for _, id := range ids {
		decision, ok, err := latestDecisionSpan(ctx, store, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if outcome, ok := parseCategoryOutcome(decision); ok {
			outcomes = append(outcomes, outcome)
		}
	}
	return outcomes, nil
}

// recentLiveRolloutIDs returns the newest limit succeeded rollouts created by
// a bridge, in chronological order.
func recentLiveRolloutIDs(ctx context.Context, store trainingstore.Store, limit int) ([]string, error) {
	rollouts, err := store.QueryRollouts(ctx, trainingstore.RolloutQuery{
		Statuses: []trainingstore.RolloutStatus{trainingstore.StatusSucceeded},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rollouts))
	for _, r := range rollouts {
		if strings.HasPrefix(r.RolloutID, RolloutIDPrefix) {
			ids = append(ids, r.RolloutID)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	return ids, nil
}

// latestDecisionSpan returns the decision record with the highest sequence id.
func latestDecisionSpan(ctx context.Context, store trainingstore.Store, rolloutID string) (trainingstore.Span, bool, error) {
	spans, err := store.QuerySpans(ctx, rolloutID, "")
	if err != nil {
		return trainingstore.Span{}, false, fmt.Errorf("failed to query spans for rollout %q: %w", rolloutID, err)
	}
	var (
		latest trainingstore.Span
		found  bool
	)
	for _, s := range spans {
		if s.Name != DecisionSpanName {
			continue
		}
		if !found || s.SequenceID >= latest.SequenceID {
			latest, found = s, true
		}
	}
	return latest, found, nil
}

// spanCategory returns the canonical task category of a decision record,
// inferring it from the prompt when the attribute is missing.
func spanCategory(span trainingstore.Span) string {
	if raw, ok := span.String(attrTaskCategory); ok && strings.TrimSpace(raw) != "" {
		return metacognition.CanonicalizeCategory(raw)
	}
	prompt, _ := span.String(attrPrompt)
	return metacognition.InferTaskCategory(strings.TrimSpace(prompt))
}

// parseCategoryOutcome reads a past decision. Records without a finite
// reward are skipped.
func parseCategoryOutcome(span trainingstore.Span) (metacognition.Outcome, bool) {
	reward, ok := span.Float(attrReward)
	if !ok || math.IsNaN(reward) || math.IsInf(reward, 0) {
		return metacognition.Outcome{}, false
	}

	predicted, ok := span.Float(attrPredictedSuccess)
	if !ok {
		predicted, ok = span.Float(attrRewardConfidence)
	}
	if !ok {
		predicted = metacognition.NormalizeRewardToQuality(reward)
	}

	actual, ok := span.Bool(attrActualSuccess)
	if !ok {
		actual = reward > 0
	}

	return metacognition.Outcome{
		Category:                    spanCategory(span),
		Reward:                      reward,
		PredictedSuccessProbability: clampUnit(predicted),
		ActualSuccess:               actual,
	}, true
}
