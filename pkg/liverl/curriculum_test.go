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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(category string, reward float64) LiveAPOSample {
	return LiveAPOSample{Prompt: category + " prompt", Response: "response", Reward: reward, Category: category}
}

func rewardsOf(samples []LiveAPOSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Reward
	}
	return out
}

func TestSelectCurriculumSamples_Empty(t *testing.T) {
	out, focus := SelectCurriculumSamples(nil, 8, nil)
	assert.Empty(t, out)
	assert.False(t, focus.Valid)

	out, focus = SelectCurriculumSamples([]LiveAPOSample{sample("qa", 0.5)}, 0, nil)
	assert.Empty(t, out)
	assert.False(t, focus.Valid)
}

func TestSelectCurriculumSamples_AllFitInRankOrder(t *testing.T) {
	samples := []LiveAPOSample{
		sample("qa", 0.6),
		sample("debugging", -0.5),
		sample("qa", 0.2),
		sample("debugging", -0.7),
	}

	out, focus := SelectCurriculumSamples(samples, 10, nil)
	require.Len(t, out, 4)
	assert.Equal(t, []float64{-0.5, -0.7, 0.6, 0.2}, rewardsOf(out))
	assert.True(t, focus.Valid)
	assert.Equal(t, "debugging", focus.Category)
	assert.InDelta(t, -0.6, focus.MeanReward, 1e-9)
}

func TestSelectCurriculumSamples_FocusesHardestCategory(t *testing.T) {
	samples := []LiveAPOSample{
		sample("debugging", -0.9),
		sample("qa", 0.3),
		sample("debugging", -1.0),
		sample("qa", -0.1),
		sample("qa", -0.2),
	}

	out, focus := SelectCurriculumSamples(samples, 4, nil)
	require.Len(t, out, 4)
	// newest of each category first, then a weighted sweep, oldest first
	assert.Equal(t, []float64{-0.1, -0.9, -0.2, -1.0}, rewardsOf(out))
	assert.Equal(t, "debugging", focus.Category)
	assert.InDelta(t, -0.95, focus.MeanReward, 1e-9)
}

func TestSelectCurriculumSamples_WeightsShiftFocus(t *testing.T) {
	samples := []LiveAPOSample{
		sample("debugging", -0.9),
		sample("qa", 0.0),
	}

	_, focus := SelectCurriculumSamples(samples, 4, map[string]float64{"debugging": 0.1})
	assert.Equal(t, "qa", focus.Category)

	// weights below the floor still count
	_, focus = SelectCurriculumSamples(samples, 4, map[string]float64{"debugging": 0, "qa": 0})
	assert.Equal(t, "debugging", focus.Category)
}

func TestSelectCurriculumSamples_TiesBreakByName(t *testing.T) {
	samples := []LiveAPOSample{sample("qa", 0.2), sample("planning", 0.2)}
	out, focus := SelectCurriculumSamples(samples, 4, nil)
	assert.Equal(t, "planning", focus.Category)
	assert.Equal(t, "planning", out[0].Category)
}

func TestCurriculumStatsRoundTrip(t *testing.T) {
	stats := curriculumStats{Samples: 3, MeanReward: 0.25, SuccessRate: 2.0 / 3.0}
	assert.InDelta(t, 0.5+1.0/3.0, stats.weight(), 1e-9)

	decoded := decodeCurriculumStats(map[string]any{
		"qa":     stats.toResource(),
		"broken": "not a map",
		"json": map[string]any{
			"samples":      float64(7),
			"mean_reward":  -0.5,
			"success_rate": 0.0,
		},
	})
	assert.Equal(t, stats, decoded["qa"])
	assert.Equal(t, curriculumStats{Samples: 7, MeanReward: -0.5}, decoded["json"])
	assert.NotContains(t, decoded, "broken")
	assert.Empty(t, decodeCurriculumStats(nil))
}

func TestCurriculumWeights(t *testing.T) {
	weights := curriculumWeights(map[string]any{
		ResourceCurriculumWeights: map[string]any{"qa": 1.5, "debugging": 2, "bad": "x"},
	})
	assert.Equal(t, map[string]float64{"qa": 1.5, "debugging": 2}, weights)
	assert.Empty(t, curriculumWeights(nil))
}

func TestMergeResourcesDoesNotMutateBase(t *testing.T) {
	base := map[string]any{"system_prompt": "a", "score": 0.1}
	merged := mergeResources(base, map[string]any{"score": 0.9, "algorithm": "apo_live_runtime"})

	assert.Equal(t, map[string]any{"system_prompt": "a", "score": 0.9, "algorithm": "apo_live_runtime"}, merged)
	assert.Equal(t, 0.1, base["score"])
	assert.Equal(t, map[string]any{"k": 1}, mergeResources(nil, map[string]any{"k": 1}))
}
