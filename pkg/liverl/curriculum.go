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

	"github.com/teradata-labs/liverl/pkg/metacognition"
	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

// Resource keys holding curriculum aggregates.
const (
	ResourceCurriculumStats   = "curriculum_category_stats"
	ResourceCurriculumWeights = "curriculum_category_weights"
	ResourceCurriculumUpdated = "curriculum_updated_rollout"
)

const (
	minCurriculumWeight  = 0.05
	baseCurriculumWeight = 0.5
)

// LiveAPOSample is one past decision usable as a prompt-search example.
type LiveAPOSample struct {
	Prompt   string  `json:"prompt"`
	Response string  `json:"response"`
	Reward   float64 `json:"reward"`
	Category string  `json:"category"`
}

// CurriculumFocus is the category the selection is weighted towards.
type CurriculumFocus struct {
	Category   string
	MeanReward float64
	Valid      bool
}

type categoryRank struct {
	name       string
	mean       float64
	difficulty float64
	samples    []LiveAPOSample
}

// SelectCurriculumSamples picks at most maxSamples samples biased towards the
// categories the agent currently does worst on.
//
// Categories are ranked by weighted difficulty (1 - quality(mean reward))
// times max(weight, 0.05), weight defaulting to 1; ties go to the lower mean
// reward, then the name. When everything fits, all samples are returned in
// rank order. Otherwise every category first contributes its newest sample,
// then ranked sweeps take ceil(2*difficulty) newer-first samples per category
// until the cap is reached, and the selection is returned oldest first.
func SelectCurriculumSamples(samples []LiveAPOSample, maxSamples int, weights map[string]float64) ([]LiveAPOSample, CurriculumFocus) {
	if len(samples) == 0 || maxSamples <= 0 {
		return nil, CurriculumFocus{}
	}

	byCategory := make(map[string]*categoryRank)
	var ranks []*categoryRank
	for _, s := range samples {
		r, ok := byCategory[s.Category]
		if !ok {
			r = &categoryRank{name: s.Category}
			byCategory[s.Category] = r
			ranks = append(ranks, r)
		}
		r.samples = append(r.samples, s)
	}
	for _, r := range ranks {
		rewards := make([]float64, len(r.samples))
		for i, s := range r.samples {
			rewards[i] = s.Reward
		}
		r.mean = metacognition.Mean(rewards)
		weight, ok := weights[r.name]
		if !ok || math.IsNaN(weight) {
			weight = 1
		}
		r.difficulty = (1 - metacognition.NormalizeRewardToQuality(r.mean)) * math.Max(weight, minCurriculumWeight)
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		a, b := ranks[i], ranks[j]
		if a.difficulty != b.difficulty {
			return a.difficulty > b.difficulty
		}
		if a.mean != b.mean {
			return a.mean < b.mean
		}
		return a.name < b.name
	})
	focus := CurriculumFocus{Category: ranks[0].name, MeanReward: ranks[0].mean, Valid: true}

	if len(samples) <= maxSamples {
		out := make([]LiveAPOSample, 0, len(samples))
		for _, r := range ranks {
			out = append(out, r.samples...)
		}
		return out, focus
	}

	out := make([]LiveAPOSample, 0, maxSamples)
	take := func(r *categoryRank, n int) {
		for ; n > 0 && len(r.samples) > 0 && len(out) < maxSamples; n-- {
			last := len(r.samples) - 1
			out = append(out, r.samples[last])
			r.samples = r.samples[:last]
		}
	}
	for _, r := range ranks {
		take(r, 1)
	}
	for len(out) < maxSamples {
		before := len(out)
		for _, r := range ranks {
			take(r, max(1, int(math.Ceil(r.difficulty*2))))
		}
		if len(out) == before {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, focus
}

// curriculumStats is the persisted aggregate of one category.
type curriculumStats struct {
	Samples     int
	MeanReward  float64
	SuccessRate float64
}

func (s curriculumStats) weight() float64 {
	return baseCurriculumWeight + (1 - s.SuccessRate)
}

func (s curriculumStats) toResource() map[string]any {
	return map[string]any{
		"samples":      s.Samples,
		"mean_reward":  s.MeanReward,
		"success_rate": s.SuccessRate,
	}
}

// persistCurriculum merges a finalized decision into the per-category
// aggregates of the resources document.
func (b *Bridge) persistCurriculum(ctx context.Context, record trainingstore.Span) error {
	outcome, ok := parseCategoryOutcome(record)
	if !ok {
		return nil
	}
	latest, err := b.store.GetLatestResources(ctx)
	if err != nil {
		return fmt.Errorf("failed to read resources for curriculum update: %w", err)
	}
	var current map[string]any
	if latest != nil {
		current = latest.Resources
	}

	stats := decodeCurriculumStats(current[ResourceCurriculumStats])
	prev := stats[outcome.Category]
	n := float64(prev.Samples)
	stats[outcome.Category] = curriculumStats{
		Samples:     prev.Samples + 1,
		MeanReward:  (prev.MeanReward*n + outcome.Reward) / (n + 1),
		SuccessRate: (prev.SuccessRate*n + boolToFloat(outcome.ActualSuccess)) / (n + 1),
	}

	statsDoc := make(map[string]any, len(stats))
	weightsDoc := make(map[string]any, len(stats))
	for name, s := range stats {
		statsDoc[name] = s.toResource()
		weightsDoc[name] = s.weight()
	}
	_, err = b.store.UpdateResources(ctx, mergeResources(current, map[string]any{
		ResourceCurriculumStats:   statsDoc,
		ResourceCurriculumWeights: weightsDoc,
		ResourceCurriculumUpdated: record.RolloutID,
	}))
	if err != nil {
		return fmt.Errorf("failed to persist curriculum aggregates: %w", err)
	}
	return nil
}

// curriculumWeights reads the persisted per-category weights.
func curriculumWeights(resources map[string]any) map[string]float64 {
	raw, _ := resources[ResourceCurriculumWeights].(map[string]any)
	out := make(map[string]float64, len(raw))
	for name, v := range raw {
		if w, ok := trainingstore.AsFloat(v); ok {
			out[name] = w
		}
	}
	return out
}

func decodeCurriculumStats(v any) map[string]curriculumStats {
	out := make(map[string]curriculumStats)
	raw, _ := v.(map[string]any)
	for name, entry := range raw {
		fields, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		var s curriculumStats
		if n, ok := trainingstore.AsFloat(fields["samples"]); ok && n > 0 {
			s.Samples = int(n)
		}
		s.MeanReward, _ = trainingstore.AsFloat(fields["mean_reward"])
		s.SuccessRate, _ = trainingstore.AsFloat(fields["success_rate"])
		out[name] = s
	}
	return out
}

// mergeResources overlays updates on a copy of base.
func mergeResources(base, updates map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(updates))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range updates {
		out[k] = v
	}
	return out
}
